package plan

import "time"

// File is the YAML document describing one suite
type File struct {
	Version        string         `yaml:"version"`
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description,omitempty"`
	Bypass         []string       `yaml:"bypass,omitempty"`
	DefaultTimeout *time.Duration `yaml:"default_timeout,omitempty"`
	Hooks          []HookConfig   `yaml:"hooks,omitempty"`
	Tests          []TestConfig   `yaml:"tests"`
}

// HookConfig describes a hook attached to every test case or step whose
// test case carries one of Tags. A hook without tags applies everywhere.
type HookConfig struct {
	StepConfig `yaml:",inline"`

	Style HookStyle `yaml:"style"`
	Tags  []string  `yaml:"tags,omitempty"`
}

// TestConfig describes one test case
type TestConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	HistoryID   string         `yaml:"history_id,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"`
	Attributes  map[string]any `yaml:"attributes,omitempty"`
	Bypass      []string       `yaml:"bypass,omitempty"` // empty inherits the suite modes
	Steps       []StepConfig   `yaml:"steps"`
}

// StepConfig describes a step. At most one of Run, Sleep and Fail may be
// set; a step with none of them passes.
type StepConfig struct {
	Name    string         `yaml:"name"`
	Run     string         `yaml:"run,omitempty"`
	Sleep   *time.Duration `yaml:"sleep,omitempty"`
	Fail    string         `yaml:"fail,omitempty"`
	Timeout *time.Duration `yaml:"timeout,omitempty"`
	Export  string         `yaml:"export,omitempty"` // scope key receiving the trimmed stdout of Run
}
