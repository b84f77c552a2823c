package plan

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

// HookStyle selects where a hook is attached
type HookStyle string

const (
	BeforeTest HookStyle = "beforeTest"
	AfterTest  HookStyle = "afterTest"
	BeforeStep HookStyle = "beforeStep"
	AfterStep  HookStyle = "afterStep"
)

var hookStyles = []HookStyle{BeforeTest, AfterTest, BeforeStep, AfterStep}

// Validate returns an error for unknown styles
func (s HookStyle) Validate() error {
	if !slices.Contains(hookStyles, s) {
		return fmt.Errorf("unknown hook style %q, expected one of %v", s, hookStyles)
	}
	return nil
}

// TagPredicate decides whether a hook carrying tags applies
type TagPredicate func(tags []string) bool

// MatchTags returns a predicate accepting hooks without tags and hooks
// sharing at least one tag with testTags
func MatchTags(testTags []string) TagPredicate {
	return func(tags []string) bool {
		if len(tags) == 0 {
			return true
		}
		for _, tag := range tags {
			if slices.Contains(testTags, tag) {
				return true
			}
		}
		return false
	}
}

// HookProvider supplies the hooks of a given style that match a predicate
type HookProvider interface {
	Hooks(style HookStyle, match TagPredicate) []types.NodeSpec
}

// HookDefinition is a registered hook
type HookDefinition struct {
	Spec types.NodeSpec
	Tags []string
}

// HookRegistry is an in-memory HookProvider. Safe for concurrent use.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[HookStyle][]HookDefinition
}

var _ HookProvider = (*HookRegistry)(nil)

// NewHookRegistry creates an empty registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookStyle][]HookDefinition)}
}

// Register adds a hook of the given style
func (r *HookRegistry) Register(style HookStyle, def HookDefinition) error {
	if err := style.Validate(); err != nil {
		return err
	}
	if def.Spec.Action == nil {
		return fmt.Errorf("hook %q has no action", def.Spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[style] = append(r.hooks[style], def)
	return nil
}

// Hooks implements HookProvider, in registration order
func (r *HookRegistry) Hooks(style HookStyle, match TagPredicate) []types.NodeSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var specs []types.NodeSpec
	for _, def := range r.hooks[style] {
		if match == nil || match(def.Tags) {
			specs = append(specs, def.Spec)
		}
	}
	return specs
}

// Len returns the number of registered hooks
func (r *HookRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, defs := range r.hooks {
		n += len(defs)
	}
	return n
}

// multiProvider concatenates the hooks of several providers
type multiProvider []HookProvider

func (m multiProvider) Hooks(style HookStyle, match TagPredicate) []types.NodeSpec {
	var specs []types.NodeSpec
	for _, p := range m {
		if p != nil {
			specs = append(specs, p.Hooks(style, match)...)
		}
	}
	return specs
}
