//go:build integration

package multitenantengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/rulecheck/engine"
)

const titleRuleset = `{"//activity": {"atleast_one": {"cases": [{"paths": ["title"]}]}}}`

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

// insertTenant creates a tenant row with an optional ruleset
func insertTenant(t *testing.T, db *sql.DB, tenantID, policyExpr, definition string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO tenants (id, name, policy, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, tenantID, tenantID+"-name", policyExpr)
	if err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}

	if definition == "" {
		return
	}
	_, err = db.Exec(`
		INSERT INTO rulesets (id, tenant_id, name, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW(), NOW())
	`, uuid.NewString(), tenantID, "initial", definition)
	if err != nil {
		t.Fatalf("Failed to create ruleset: %v", err)
	}
}

func TestLoadAllTenants(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	insertTenant(t, db, "acme", "errors == 0", titleRuleset)
	insertTenant(t, db, "globex", "warnings < 5", "")

	m := NewMultiTenantEngineManager(db)
	if err := m.LoadAllTenants(); err != nil {
		t.Fatalf("LoadAllTenants() failed: %v", err)
	}

	tenants := m.ListTenants()
	if len(tenants) != 2 || tenants[0] != "acme" || tenants[1] != "globex" {
		t.Fatalf("ListTenants() = %v, want [acme globex]", tenants)
	}

	p, err := m.GetPolicy("globex")
	if err != nil {
		t.Fatalf("GetPolicy() failed: %v", err)
	}
	if p.String() != "warnings < 5" {
		t.Errorf("GetPolicy() = %q, want the stored expression", p.String())
	}

	en, _ := m.GetEngine("acme")
	log, err := en.Validate([]byte(`<r><activity/></r>`), nil)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	allowed, err := p.Allows(log)
	if err != nil {
		t.Fatalf("Allows() failed: %v", err)
	}
	if !allowed {
		t.Errorf("globex policy should allow a log without warnings")
	}
}

func TestLoadAllTenantsRejectsBrokenPolicy(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	insertTenant(t, db, "broken", "errors ==", "")

	m := NewMultiTenantEngineManager(db)
	if err := m.LoadAllTenants(); err == nil {
		t.Fatal("LoadAllTenants() should fail for an uncompilable policy")
	}
}

func TestGetEngineUnknownTenant(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	m := NewMultiTenantEngineManager(db)
	if _, err := m.GetEngine("nobody"); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("GetEngine() error = %v, want ErrTenantNotFound", err)
	}
	if err := m.DeleteTenant("nobody"); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("DeleteTenant() error = %v, want ErrTenantNotFound", err)
	}
}

func TestUpdateTenantPolicy(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	insertTenant(t, db, "acme", "errors == 0", titleRuleset)
	m := NewMultiTenantEngineManager(db)
	if err := m.LoadAllTenants(); err != nil {
		t.Fatalf("LoadAllTenants() failed: %v", err)
	}
	before, _ := m.GetEngine("acme")

	if err := m.UpdateTenantPolicy("acme", "errors <= 2"); err != nil {
		t.Fatalf("UpdateTenantPolicy() failed: %v", err)
	}

	p, _ := m.GetPolicy("acme")
	if p.String() != "errors <= 2" {
		t.Errorf("policy after update = %q, want errors <= 2", p.String())
	}
	after, _ := m.GetEngine("acme")
	if before != after {
		t.Errorf("UpdateTenantPolicy() should keep the tenant's engine")
	}

	var stored string
	if err := db.QueryRow(`SELECT policy FROM tenants WHERE id = $1`, "acme").Scan(&stored); err != nil {
		t.Fatalf("Failed to read stored policy: %v", err)
	}
	if stored != "errors <= 2" {
		t.Errorf("stored policy = %q, want errors <= 2", stored)
	}

	if err := m.UpdateTenantPolicy("acme", "errors +"); err == nil {
		t.Error("UpdateTenantPolicy() should reject an invalid expression")
	}
	p, _ = m.GetPolicy("acme")
	if p.String() != "errors <= 2" {
		t.Errorf("rejected update replaced the policy")
	}
}

// TestConcurrentPolicySwap checks that evaluation keeps working while the
// policy is swapped underneath it.
func TestConcurrentPolicySwap(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	insertTenant(t, db, "acme", "errors == 0", titleRuleset)
	m := NewMultiTenantEngineManager(db)
	if err := m.LoadAllTenants(); err != nil {
		t.Fatalf("LoadAllTenants() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				en, err := m.GetEngine("acme")
				if err != nil {
					t.Errorf("GetEngine() failed: %v", err)
					return
				}
				p, _ := m.GetPolicy("acme")
				log, err := en.Validate([]byte(`<r><activity><title/></activity></r>`), nil)
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
					return
				}
				if _, err := p.Allows(log); err != nil {
					t.Errorf("Allows() failed: %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		if err := m.UpdateTenantPolicy("acme", fmt.Sprintf("errors <= %d", i)); err != nil {
			t.Errorf("UpdateTenantPolicy() failed: %v", err)
		}
	}
	wg.Wait()
}

func TestCreateTenantAddsRulesets(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	insertTenant(t, db, "acme", "errors == 0", "")
	m := NewMultiTenantEngineManager(db, WithCacheConfig(engine.CacheConfig{TTL: time.Minute}))
	if err := m.CreateTenant("acme", ""); err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}

	en, _ := m.GetEngine("acme")
	if err := en.AddRuleset(&engine.RulesetRecord{ID: "title", Name: "Title", Definition: titleRuleset, Active: true}); err != nil {
		t.Fatalf("AddRuleset() failed: %v", err)
	}

	log, err := en.Validate([]byte(`<r><activity/></r>`), nil)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !log.ContainsErrorCalled("err-rule-at-least-one-conformance-fail") {
		t.Errorf("tenant ruleset was not evaluated")
	}

	if err := m.DeleteTenant("acme"); err != nil {
		t.Fatalf("DeleteTenant() failed: %v", err)
	}
	if len(m.ListTenants()) != 0 {
		t.Errorf("ListTenants() should be empty after delete")
	}
}
