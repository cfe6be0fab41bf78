package main

import (
	"time"

	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/validation"
)

// API request and response models

// CreateTenantRequest is the body for creating a tenant. ID is generated
// when empty; Policy falls back to the server's default policy.
type CreateTenantRequest struct {
	ID     string `json:"id,omitempty" example:"acme"`
	Name   string `json:"name" example:"Acme Corp"`
	Policy string `json:"policy,omitempty" example:"errors == 0"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID        string    `json:"id" example:"acme"`
	Name      string    `json:"name" example:"Acme Corp"`
	Policy    string    `json:"policy" example:"errors == 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantsListResponse represents the response for listing tenants
type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// PolicyRequest is the body for replacing a tenant's policy
type PolicyRequest struct {
	Policy string `json:"policy" example:"errors == 0 && warnings < 10"`
}

// PolicyResponse reports a tenant's active policy
type PolicyResponse struct {
	TenantID string `json:"tenantId"`
	Policy   string `json:"policy"`
}

// RulesetRequest is the body for creating or replacing a ruleset.
// Definition is either a ruleset JSON object or a string holding one.
type RulesetRequest struct {
	ID         string        `json:"id,omitempty" example:"iati-activity"`
	Name       string        `json:"name" example:"IATI activity rules"`
	Definition rawDefinition `json:"definition"`
	Active     *bool         `json:"active,omitempty" example:"true"`
}

// RulesetResponse represents a ruleset in API responses
type RulesetResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Definition string    `json:"definition"`
	Active     bool      `json:"active"`
	Rules      int       `json:"rules"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RulesetsListResponse represents the response for listing rulesets
type RulesetsListResponse struct {
	Rulesets []RulesetResponse `json:"rulesets"`
}

// ValidateRequest is the body for validating a document. Rulesets limits
// evaluation to the listed IDs; all active rulesets are used when empty.
type ValidateRequest struct {
	TenantID string   `json:"tenantId" example:"acme"`
	Document string   `json:"document" example:"<iati-activities>...</iati-activities>"`
	Rulesets []string `json:"rulesets,omitempty"`
}

// ValidateResponse reports a document's findings and the policy verdict
type ValidateResponse struct {
	Conformant     bool                `json:"conformant"`
	Policy         string              `json:"policy"`
	Summary        validation.Summary  `json:"summary"`
	Errors         []*validation.Error `json:"errors"`
	EvaluationTime string              `json:"evaluationTime" example:"2.3ms"`
}

// RuleKindResponse lists the case parameters of one rule kind
type RuleKindResponse struct {
	Kind     string   `json:"kind"`
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string       `json:"status"`
	Error         string       `json:"error,omitempty"`
	TenantsLoaded int          `json:"tenantsLoaded"`
	Stats         logger.Stats `json:"stats"`
}
