package e2e

import (
	"context"
	"sync"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
)

// ScriptedTier is a delivery.Tier under test control: availability and
// failure behavior can be flipped mid-test, and every delivery attempt
// is recorded.
type ScriptedTier struct {
	name     string
	priority int

	mu        sync.Mutex
	available bool
	failWith  error
	targets   []delivery.Target
	prompts   []string
}

// NewScriptedTier creates an available, always-succeeding tier.
func NewScriptedTier(name string, priority int) *ScriptedTier {
	return &ScriptedTier{name: name, priority: priority, available: true}
}

func (s *ScriptedTier) Name() string { return s.name }

func (s *ScriptedTier) Priority() int { return s.priority }

// SetAvailable flips the availability probe.
func (s *ScriptedTier) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = ok
}

// FailWith makes every Deliver return err. Pass nil to heal the tier.
func (s *ScriptedTier) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *ScriptedTier) Available(_ context.Context, _ delivery.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Deliver records the attempt, then succeeds or fails per the script.
func (s *ScriptedTier) Deliver(_ context.Context, target delivery.Target, keys []delivery.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target)
	for _, k := range keys {
		if k.Name == delivery.KeyText {
			s.prompts = append(s.prompts, k.Text)
		}
	}
	return s.failWith
}

// Deliveries returns the targets of every Deliver call, in order.
func (s *ScriptedTier) Deliveries() []delivery.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery.Target(nil), s.targets...)
}

// Prompts returns the text payloads sent so far, in order.
func (s *ScriptedTier) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
