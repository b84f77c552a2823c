package types

import (
	"sort"
	"sync"
)

// StageCount holds the counters of one statistic stage
type StageCount struct {
	Discovered int
	Executed   int
}

// Statistic is a counter table keyed by stage name ("test", "step", ...).
// Discovery sources add to the discovered counts, the executor increments
// the executed counts as nodes complete. Safe for concurrent use.
type Statistic struct {
	mu     sync.RWMutex
	stages map[string]*StageCount
}

// NewStatistic creates an empty statistic
func NewStatistic() *Statistic {
	return &Statistic{stages: make(map[string]*StageCount)}
}

func (s *Statistic) stage(name string) *StageCount {
	c, ok := s.stages[name]
	if !ok {
		c = &StageCount{}
		s.stages[name] = c
	}
	return c
}

// AddDiscovered adds n to the discovered count of stage
func (s *Statistic) AddDiscovered(stage string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage(stage).Discovered += n
}

// IncExecuted increments the executed count of stage
func (s *Statistic) IncExecuted(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage(stage).Executed++
}

// Accumulate adds every counter of other into s
func (s *Statistic) Accumulate(other *Statistic) {
	if other == nil || other == s {
		return
	}
	snapshot := other.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range snapshot {
		dst := s.stage(name)
		dst.Discovered += c.Discovered
		dst.Executed += c.Executed
	}
}

// Discovered returns the discovered count of stage
func (s *Statistic) Discovered(stage string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.stages[stage]; ok {
		return c.Discovered
	}
	return 0
}

// Executed returns the executed count of stage
func (s *Statistic) Executed(stage string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.stages[stage]; ok {
		return c.Executed
	}
	return 0
}

// Snapshot returns a copy of the counter table
func (s *Statistic) Snapshot() map[string]StageCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StageCount, len(s.stages))
	for name, c := range s.stages {
		out[name] = *c
	}
	return out
}

// Stages returns the stage names in sorted order
func (s *Statistic) Stages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stages))
	for name := range s.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountDiscovered walks root and adds every counted node to the discovered
// counts of its stage.
func (s *Statistic) CountDiscovered(root *Node) {
	counts := make(map[string]int)
	root.Walk(func(n *Node) bool {
		if stage := n.Role.Stage(); stage != "" {
			counts[stage]++
		}
		return true
	})
	for stage, n := range counts {
		s.AddDiscovered(stage, n)
	}
}
