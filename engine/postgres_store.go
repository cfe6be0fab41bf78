package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRulesetStore implements RulesetStore backed by PostgreSQL
type PostgresRulesetStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresRulesetStore creates a PostgreSQL-backed RulesetStore scoped to
// one tenant
func NewPostgresRulesetStore(db *sql.DB, tenantID string) *PostgresRulesetStore {
	return &PostgresRulesetStore{
		db:       db,
		tenantID: tenantID,
	}
}

// Add inserts a new ruleset into the database
func (s *PostgresRulesetStore) Add(r *RulesetRecord) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rulesets WHERE id = $1 AND tenant_id = $2)
	`, r.ID, s.tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ruleset existence: %w", err)
	}
	if exists {
		return fmt.Errorf("ruleset %s: %w", r.ID, ErrAlreadyExists)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO rulesets (id, tenant_id, name, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, s.tenantID, r.Name, r.Definition, r.Active, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ruleset: %w", err)
	}

	return nil
}

// Get retrieves a ruleset by ID
func (s *PostgresRulesetStore) Get(id string) (*RulesetRecord, error) {
	var r RulesetRecord
	err := s.db.QueryRow(`
		SELECT id, name, definition, active, created_at, updated_at
		FROM rulesets
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID).Scan(
		&r.ID,
		&r.Name,
		&r.Definition,
		&r.Active,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ruleset: %w", err)
	}

	return &r, nil
}

// ListActive returns all active rulesets for the tenant
func (s *PostgresRulesetStore) ListActive() ([]*RulesetRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, definition, active, created_at, updated_at
		FROM rulesets
		WHERE tenant_id = $1 AND active = true
		ORDER BY created_at ASC, id ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rulesets: %w", err)
	}
	defer rows.Close()

	var list []*RulesetRecord
	for rows.Next() {
		var r RulesetRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Definition, &r.Active,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ruleset: %w", err)
		}
		list = append(list, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rulesets: %w", err)
	}

	return list, nil
}

// Update modifies an existing ruleset
func (s *PostgresRulesetStore) Update(r *RulesetRecord) error {
	existing, err := s.Get(r.ID)
	if err != nil {
		return err
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE rulesets
		SET name = $1, definition = $2, active = $3, updated_at = $4
		WHERE id = $5 AND tenant_id = $6
	`, r.Name, r.Definition, r.Active, r.UpdatedAt, r.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update ruleset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ruleset %s: %w", r.ID, ErrNotFound)
	}

	return nil
}

// Delete removes a ruleset from the database
func (s *PostgresRulesetStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rulesets
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ruleset %s: %w", id, ErrNotFound)
	}

	return nil
}
