package engine

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// RulesetStore manages ruleset persistence and retrieval
type RulesetStore interface {
	// Add a new ruleset
	Add(r *RulesetRecord) error

	// Get a ruleset by ID
	Get(id string) (*RulesetRecord, error)

	// List all active rulesets, oldest first
	ListActive() ([]*RulesetRecord, error)

	// Update an existing ruleset
	Update(r *RulesetRecord) error

	// Delete a ruleset
	Delete(id string) error
}

// InMemoryRulesetStore implements RulesetStore using an in-memory map.
// Safe for concurrent use.
type InMemoryRulesetStore struct {
	rulesets map[string]*RulesetRecord
	mu       sync.RWMutex
}

// NewInMemoryRulesetStore creates a new in-memory ruleset store
func NewInMemoryRulesetStore() *InMemoryRulesetStore {
	return &InMemoryRulesetStore{
		rulesets: make(map[string]*RulesetRecord),
	}
}

// Add stores r, setting both timestamps.
func (s *InMemoryRulesetStore) Add(r *RulesetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rulesets[r.ID]; exists {
		return fmt.Errorf("ruleset %s: %w", r.ID, ErrAlreadyExists)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	stored := *r
	s.rulesets[r.ID] = &stored
	return nil
}

// Get retrieves a ruleset by ID
func (s *InMemoryRulesetStore) Get(id string) (*RulesetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rulesets[id]
	if !exists {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}
	found := *r
	return &found, nil
}

// ListActive returns all active rulesets, oldest first
func (s *InMemoryRulesetStore) ListActive() ([]*RulesetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*RulesetRecord
	for _, r := range s.rulesets {
		if r.Active {
			found := *r
			active = append(active, &found)
		}
	}
	slices.SortFunc(active, func(a, b *RulesetRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return active, nil
}

// Update replaces an existing ruleset, preserving CreatedAt.
func (s *InMemoryRulesetStore) Update(r *RulesetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rulesets[r.ID]
	if !exists {
		return fmt.Errorf("ruleset %s: %w", r.ID, ErrNotFound)
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	stored := *r
	s.rulesets[r.ID] = &stored
	return nil
}

// Delete removes a ruleset from the store
func (s *InMemoryRulesetStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rulesets[id]; !exists {
		return fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}

	delete(s.rulesets, id)
	return nil
}
