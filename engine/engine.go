package engine

import (
	"fmt"
	"sync"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/rules"
	"github.com/liamcoop/rulecheck/validation"
)

// Engine compiles stored rulesets and evaluates documents against them.
// Safe for concurrent use.
type Engine struct {
	store    RulesetStore
	cache    RulesetCache
	ruleOpts []rules.Option
	compiled map[string]compiledRuleset // ruleset ID -> compiled ruleset
	mu       sync.RWMutex
}

// compiledRuleset remembers the definition a ruleset was compiled from, so a
// record changed by another engine on the same store can be detected.
type compiledRuleset struct {
	ruleset    *rules.Ruleset
	definition string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache replaces the default in-memory cache of active rulesets.
func WithCache(cache RulesetCache) Option {
	return func(en *Engine) {
		if cache != nil {
			en.cache = cache
		}
	}
}

// WithRuleOptions passes options to every rule the engine compiles.
func WithRuleOptions(opts ...rules.Option) Option {
	return func(en *Engine) {
		en.ruleOpts = append(en.ruleOpts, opts...)
	}
}

// NewEngine creates an engine and compiles every active ruleset in store.
func NewEngine(store RulesetStore, opts ...Option) (*Engine, error) {
	en := &Engine{
		store:    store,
		cache:    NewInMemoryRulesetCache(DefaultCacheConfig()),
		compiled: make(map[string]compiledRuleset),
	}
	for _, opt := range opts {
		opt(en)
	}

	if err := en.CompileAllRulesets(); err != nil {
		return nil, fmt.Errorf("failed to compile rulesets: %w", err)
	}

	return en, nil
}

// CompileRuleset parses definition and keeps the result under id.
func (en *Engine) CompileRuleset(id, definition string) error {
	rs, err := rules.Parse(definition, en.ruleOpts...)
	if err != nil {
		return fmt.Errorf("compile error: %w", err)
	}

	en.mu.Lock()
	en.compiled[id] = compiledRuleset{ruleset: rs, definition: definition}
	en.mu.Unlock()

	logger.Debug("ruleset compiled", "ruleset", id, "rules", rs.Len())
	return nil
}

// CompileAllRulesets compiles all active rulesets from the store and
// primes the cache.
func (en *Engine) CompileAllRulesets() error {
	records, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, r := range records {
		if err := en.CompileRuleset(r.ID, r.Definition); err != nil {
			return fmt.Errorf("failed to compile ruleset %s: %w", r.ID, err)
		}
	}

	en.cache.Set(records)
	return nil
}

// Ruleset returns the compiled ruleset for id.
func (en *Engine) Ruleset(id string) (*rules.Ruleset, error) {
	en.mu.RLock()
	c, ok := en.compiled[id]
	en.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrNotCompiled)
	}
	return c.ruleset, nil
}

// rulesetFor returns the compiled ruleset for r, compiling it from the record
// when it was added or changed through another engine sharing the store.
func (en *Engine) rulesetFor(r *RulesetRecord) (*rules.Ruleset, error) {
	en.mu.RLock()
	c, ok := en.compiled[r.ID]
	en.mu.RUnlock()

	if ok && c.definition == r.Definition {
		return c.ruleset, nil
	}
	if err := en.CompileRuleset(r.ID, r.Definition); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", r.ID, err)
	}
	return en.Ruleset(r.ID)
}

// AddRuleset validates that r compiles, then stores it. A store failure
// drops the compiled ruleset again.
func (en *Engine) AddRuleset(r *RulesetRecord) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("ruleset %s: %w", r.ID, ErrAlreadyExists)
	}

	if err := en.CompileRuleset(r.ID, r.Definition); err != nil {
		return fmt.Errorf("ruleset validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.compiled, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRuleset recompiles and stores r. The previously compiled ruleset
// stays in place if either step fails.
func (en *Engine) UpdateRuleset(r *RulesetRecord) error {
	rs, err := rules.Parse(r.Definition, en.ruleOpts...)
	if err != nil {
		return fmt.Errorf("ruleset validation failed: compile error: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.compiled[r.ID] = compiledRuleset{ruleset: rs, definition: r.Definition}
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// DeleteRuleset removes a ruleset from the store and the engine
func (en *Engine) DeleteRuleset(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.compiled, id)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Evaluate checks doc against a single ruleset.
func (en *Engine) Evaluate(id string, doc document.Document) (*Result, error) {
	record, err := en.store.Get(id)
	if err != nil {
		return nil, err
	}

	rs, err := en.rulesetFor(record)
	if err != nil {
		return &Result{RulesetID: id, RulesetName: record.Name, Error: err}, err
	}

	return &Result{
		RulesetID:   id,
		RulesetName: record.Name,
		Log:         rs.Evaluate(doc),
	}, nil
}

// activeRecords reads the active list through the cache.
func (en *Engine) activeRecords() ([]*RulesetRecord, error) {
	records := en.cache.Get()
	if records != nil {
		return records, nil
	}

	records, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(records)
	return records, nil
}

// EvaluateAll checks doc against every active ruleset. A ruleset that does
// not compile is reported in its Result and does not stop the others.
func (en *Engine) EvaluateAll(doc document.Document) ([]*Result, error) {
	records, err := en.activeRecords()
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(records))
	for _, r := range records {
		rs, err := en.rulesetFor(r)
		if err != nil {
			results = append(results, &Result{RulesetID: r.ID, RulesetName: r.Name, Error: err})
			continue
		}
		results = append(results, &Result{
			RulesetID:   r.ID,
			RulesetName: r.Name,
			Log:         rs.Evaluate(doc),
		})
	}
	return results, nil
}

// EvaluateSelected checks doc against the listed rulesets in order.
func (en *Engine) EvaluateSelected(ids []string, doc document.Document) ([]*Result, error) {
	results := make([]*Result, 0, len(ids))
	for _, id := range ids {
		res, err := en.Evaluate(id, doc)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// MergeLogs concatenates the logs of results in order. Each ruleset keeps
// its own aggregate failure entry.
func MergeLogs(results []*Result) *validation.Log {
	merged := validation.NewLog()
	for _, res := range results {
		if res.Log != nil {
			merged.Extend(res.Log.All())
		}
	}
	return merged
}
