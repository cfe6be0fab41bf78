package multitenantengine

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/rulecheck/engine"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/policy"
	"github.com/liamcoop/rulecheck/rules"
)

// ErrTenantNotFound is returned for tenants that are not loaded.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantEngine wraps an engine.Engine with the tenant's conformance policy
type TenantEngine struct {
	TenantID string
	Policy   *policy.Policy
	Engine   *engine.Engine
}

// MultiTenantEngineManager manages engines for all tenants
type MultiTenantEngineManager struct {
	engines     map[string]*TenantEngine
	db          *sql.DB
	redis       redis.UniversalClient
	cacheConfig engine.CacheConfig
	ruleOpts    []rules.Option
	mu          sync.RWMutex
}

// Option configures a MultiTenantEngineManager.
type Option func(*MultiTenantEngineManager)

// WithRedis shares each tenant's active ruleset list through Redis.
func WithRedis(client redis.UniversalClient) Option {
	return func(m *MultiTenantEngineManager) {
		m.redis = client
	}
}

// WithCacheConfig sets the cache configuration used for every tenant.
func WithCacheConfig(config engine.CacheConfig) Option {
	return func(m *MultiTenantEngineManager) {
		m.cacheConfig = config
	}
}

// WithRuleOptions passes options to every rule compiled for any tenant.
func WithRuleOptions(opts ...rules.Option) Option {
	return func(m *MultiTenantEngineManager) {
		m.ruleOpts = append(m.ruleOpts, opts...)
	}
}

// NewMultiTenantEngineManager creates a new manager instance
func NewMultiTenantEngineManager(db *sql.DB, opts ...Option) *MultiTenantEngineManager {
	m := &MultiTenantEngineManager{
		engines:     make(map[string]*TenantEngine),
		db:          db,
		cacheConfig: engine.DefaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MultiTenantEngineManager) cacheFor(tenantID string) engine.RulesetCache {
	if m.redis == nil {
		return engine.NewInMemoryRulesetCache(m.cacheConfig)
	}
	return engine.NewRedisRulesetCache(m.redis, "rulecheck:"+tenantID+":rulesets", m.cacheConfig)
}

// LoadAllTenants loads all tenants from the database and initializes their engines
func (m *MultiTenantEngineManager) LoadAllTenants() error {
	rows, err := m.db.Query(`SELECT id, policy FROM tenants ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	type row struct{ id, policy string }
	var tenants []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.policy); err != nil {
			return fmt.Errorf("failed to scan tenant row: %w", err)
		}
		tenants = append(tenants, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tenant rows: %w", err)
	}

	for _, r := range tenants {
		if err := m.CreateTenant(r.id, r.policy); err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", r.id, err)
		}
	}

	logger.Info("tenants loaded", "count", len(tenants))
	return nil
}

// CreateTenant builds the engine for a tenant whose row already exists and
// registers it under tenantID. An empty expression uses the default policy.
func (m *MultiTenantEngineManager) CreateTenant(tenantID, policyExpr string) error {
	if policyExpr == "" {
		policyExpr = policy.DefaultExpression
	}
	p, err := policy.Compile(policyExpr)
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	store := engine.NewPostgresRulesetStore(m.db, tenantID)
	en, err := engine.NewEngine(store,
		engine.WithCache(m.cacheFor(tenantID)),
		engine.WithRuleOptions(m.ruleOpts...),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{
		TenantID: tenantID,
		Policy:   p,
		Engine:   en,
	}
	m.mu.Unlock()

	return nil
}

func (m *MultiTenantEngineManager) tenant(tenantID string) (*TenantEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	return te, nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *MultiTenantEngineManager) GetEngine(tenantID string) (*engine.Engine, error) {
	te, err := m.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine, nil
}

// GetPolicy retrieves the conformance policy for a specific tenant
func (m *MultiTenantEngineManager) GetPolicy(tenantID string) (*policy.Policy, error) {
	te, err := m.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Policy, nil
}

// UpdateTenantPolicy validates and stores a new policy expression, then
// swaps it in. Evaluations already running keep the policy they started
// with; the tenant's engine is reused.
func (m *MultiTenantEngineManager) UpdateTenantPolicy(tenantID, expr string) error {
	if err := ValidatePolicyExpression(expr); err != nil {
		return err
	}
	p, err := policy.Compile(expr)
	if err != nil {
		return err
	}

	existing, err := m.tenant(tenantID)
	if err != nil {
		return err
	}

	if _, err := m.db.Exec(`
		UPDATE tenants
		SET policy = $1, updated_at = NOW()
		WHERE id = $2
	`, expr, tenantID); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{
		TenantID: tenantID,
		Policy:   p,
		Engine:   existing.Engine,
	}
	m.mu.Unlock()

	logger.Info("tenant policy updated", "tenant", tenantID, "policy", expr)
	return nil
}

// ListTenants returns all loaded tenant IDs in sorted order
func (m *MultiTenantEngineManager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.engines))
	for tenantID := range m.engines {
		tenants = append(tenants, tenantID)
	}
	slices.Sort(tenants)
	return tenants
}

// DeleteTenant removes a tenant's engine from memory.
// The tenant's rows are left in the database.
func (m *MultiTenantEngineManager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}

	delete(m.engines, tenantID)
	return nil
}
