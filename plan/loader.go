// Package plan discovers execution trees from YAML plan files. Each file
// describes one suite of test cases made of steps, plus hooks attached to
// test cases or steps by tag.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/scope"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

const (
	// CurrentVersion is the plan schema version written by this release
	CurrentVersion = "1.0.0"

	// supportedMajor is the only schema major version accepted
	supportedMajor = "v1"

	// AttributeTags holds the tags of a test case node
	AttributeTags = "tags"
	// AttributeSource holds the plan file a suite was loaded from
	AttributeSource = "source"
)

// Config contains loader configuration
type Config struct {
	Log            log.Logger
	DefaultTimeout time.Duration  // applied to steps when neither the step nor the plan sets one
	Hooks          HookProvider   // optional hooks added to those declared in the plans
	Scopes         *scope.Manager // optional, enables exported values between steps
}

// Loader builds execution trees from plan files
type Loader struct {
	config Config
	log    log.Logger
}

// NewLoader creates a loader
func NewLoader(cfg Config) *Loader {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Loader{config: cfg, log: cfg.Log.New("component", "plan")}
}

// LoadAll loads every plan in paths. The returned statistic accumulates the
// discovered test cases and steps of all plans.
func (l *Loader) LoadAll(paths []string) ([]*types.Node, *types.Statistic, error) {
	stats := types.NewStatistic()
	roots := make([]*types.Node, 0, len(paths))
	for _, path := range paths {
		root, planStats, err := l.Load(path)
		if err != nil {
			return nil, nil, err
		}
		stats.Accumulate(planStats)
		roots = append(roots, root)
	}
	return roots, stats, nil
}

// Load reads the plan at path and builds its tree
func (l *Loader) Load(path string) (*types.Node, *types.Statistic, error) {
	l.log.Debug("Reading plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading plan file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}

	root, err := l.Build(&file, filepath.Dir(path))
	if err != nil {
		return nil, nil, fmt.Errorf("plan %s: %w", path, err)
	}
	root.Attributes[AttributeSource] = path

	stats := types.NewStatistic()
	stats.CountDiscovered(root)
	l.log.Debug("Plan loaded", "path", path, "suite", root.Name,
		"tests", stats.Discovered(types.StageTest), "steps", stats.Discovered(types.StageStep))
	return root, stats, nil
}

// Build turns a parsed plan into a tree. Commands run in dir.
func (l *Loader) Build(file *File, dir string) (*types.Node, error) {
	if err := CheckVersion(file.Version); err != nil {
		return nil, err
	}
	if file.Name == "" {
		return nil, fmt.Errorf("plan has no name")
	}

	suiteModes := types.BypassAll
	if len(file.Bypass) > 0 {
		modes, err := types.ParseBypassModes(file.Bypass)
		if err != nil {
			return nil, fmt.Errorf("suite %q: %w", file.Name, err)
		}
		suiteModes = modes
	}

	defaultTimeout := l.config.DefaultTimeout
	if file.DefaultTimeout != nil {
		defaultTimeout = *file.DefaultTimeout
	}

	declared := NewHookRegistry()
	for _, hook := range file.Hooks {
		action, err := buildAction(hook.StepConfig, defaultTimeout, dir, l.config.Scopes)
		if err != nil {
			return nil, fmt.Errorf("hook: %w", err)
		}
		if err := declared.Register(hook.Style, HookDefinition{
			Spec: types.NodeSpec{Name: hook.Name, Action: action},
			Tags: hook.Tags,
		}); err != nil {
			return nil, fmt.Errorf("hook %q: %w", hook.Name, err)
		}
	}
	hooks := multiProvider{declared, l.config.Hooks}

	root := types.CreateRoot(file.Name, suiteModes)
	root.Description = file.Description

	seen := make(map[string]bool)
	for _, test := range file.Tests {
		if test.Name == "" {
			return nil, fmt.Errorf("suite %q: test without a name", file.Name)
		}
		if seen[test.Name] {
			return nil, fmt.Errorf("suite %q: duplicate test %q", file.Name, test.Name)
		}
		seen[test.Name] = true
		if err := l.addTest(root, test, hooks, defaultTimeout, dir); err != nil {
			return nil, fmt.Errorf("test %q: %w", test.Name, err)
		}
	}
	return root, nil
}

func (l *Loader) addTest(root *types.Node, test TestConfig, hooks HookProvider, defaultTimeout time.Duration, dir string) error {
	spec := types.NodeSpec{
		Name:        test.Name,
		Role:        types.RoleTestCase,
		Description: test.Description,
		HistoryID:   test.HistoryID,
		Attributes:  make(map[string]any, len(test.Attributes)+1),
	}
	for k, v := range test.Attributes {
		spec.Attributes[k] = v
	}
	spec.Attributes[AttributeTags] = append([]string(nil), test.Tags...)
	if len(test.Bypass) > 0 {
		modes, err := types.ParseBypassModes(test.Bypass)
		if err != nil {
			return err
		}
		spec.Bypass = types.Bypass(modes)
	}

	tc := root.AddChild(spec)
	match := MatchTags(test.Tags)
	for _, hook := range hooks.Hooks(BeforeTest, match) {
		tc.AddBefore(hook)
	}
	for i, step := range test.Steps {
		if step.Name == "" {
			step.Name = fmt.Sprintf("step %d", i+1)
		}
		action, err := buildAction(step, defaultTimeout, dir, l.config.Scopes)
		if err != nil {
			return err
		}
		node := tc.AddChild(types.NodeSpec{Name: step.Name, Role: types.RoleStep, Action: action})
		for _, hook := range hooks.Hooks(BeforeStep, match) {
			node.AddBefore(hook)
		}
		for _, hook := range hooks.Hooks(AfterStep, match) {
			node.AddAfter(hook)
		}
	}
	for _, hook := range hooks.Hooks(AfterTest, match) {
		tc.AddAfter(hook)
	}
	return nil
}

// CheckVersion accepts an empty version (read as CurrentVersion) and any
// semantic version sharing the supported major
func CheckVersion(version string) error {
	if version == "" {
		version = CurrentVersion
	}
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid plan version %q", version)
	}
	if semver.Major(v) != supportedMajor {
		return fmt.Errorf("unsupported plan version %q, expected %s.x", version, strings.TrimPrefix(supportedMajor, "v"))
	}
	return nil
}
