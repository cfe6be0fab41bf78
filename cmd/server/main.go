package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/rulecheck/engine"
	"github.com/liamcoop/rulecheck/errs"
	"github.com/liamcoop/rulecheck/internal/config"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/multitenantengine"
	"github.com/liamcoop/rulecheck/policy"
	"github.com/liamcoop/rulecheck/rules"
)

// maxDocumentBytes bounds request bodies on the validate endpoint.
const maxDocumentBytes = 32 << 20

type Server struct {
	db            *sql.DB
	redis         *redis.Client
	engineManager *multitenantengine.MultiTenantEngineManager
	defaultPolicy string
	router        *chi.Mux
}

func NewServer(cfg config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var client *redis.Client
	if cfg.RedisURL != "" {
		client, err = engine.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("shared ruleset cache enabled")
	}

	return newServer(db, client, cfg)
}

// NewServerWithDB builds a server over an open database with default
// settings and no Redis cache.
func NewServerWithDB(db *sql.DB) (*Server, error) {
	return newServer(db, nil, config.Config{DefaultPolicy: policy.DefaultExpression})
}

func newServer(db *sql.DB, client *redis.Client, cfg config.Config) (*Server, error) {
	if err := multitenantengine.ValidatePolicyExpression(cfg.DefaultPolicy); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_POLICY: %w", err)
	}

	opts := []multitenantengine.Option{
		multitenantengine.WithCacheConfig(engine.CacheConfig{TTL: cfg.RulesetCacheTTL}),
	}
	if client != nil {
		opts = append(opts, multitenantengine.WithRedis(client))
	}
	if cfg.RegexTimeout > 0 {
		opts = append(opts, multitenantengine.WithRuleOptions(rules.WithRegexTimeout(cfg.RegexTimeout)))
	}
	engineManager := multitenantengine.NewMultiTenantEngineManager(db, opts...)

	logger.Info("loading tenants from database")
	if err := engineManager.LoadAllTenants(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	s := &Server{
		db:            db,
		redis:         client,
		engineManager: engineManager,
		defaultPolicy: cfg.DefaultPolicy,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/rule-kinds", s.handleRuleKinds)

	r.Post("/api/v1/validate", s.handleValidate)

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Get("/policy", s.handleGetPolicy)
			r.Put("/policy", s.handleUpdatePolicy)

			r.Post("/rulesets", s.handleCreateRuleset)
			r.Get("/rulesets", s.handleListRulesets)
			r.Get("/rulesets/{rulesetId}", s.handleGetRuleset)
			r.Put("/rulesets/{rulesetId}", s.handleUpdateRuleset)
			r.Delete("/rulesets/{rulesetId}", s.handleDeleteRuleset)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		TenantsLoaded: len(s.engineManager.ListTenants()),
		Stats:         logger.Snapshot(),
	}
	if err := s.db.PingContext(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := make([]RuleKindResponse, 0, len(rules.Kinds))
	for _, kind := range rules.Kinds {
		required, optional, err := rules.CaseParameters(kind)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read rule schema", err)
			return
		}
		kinds = append(kinds, RuleKindResponse{Kind: string(kind), Required: required, Optional: optional})
	}
	respondJSON(w, http.StatusOK, map[string]any{"kinds": kinds})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	}

	en, err := s.engineManager.GetEngine(req.TenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	p, err := s.engineManager.GetPolicy(req.TenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	startTime := time.Now()

	log, err := en.Validate([]byte(req.Document), req.Rulesets)
	if err != nil {
		respondError(w, statusFor(err), "validation failed", err)
		return
	}

	conformant, err := p.Allows(log)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "policy evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Conformant:     conformant,
		Policy:         p.String(),
		Summary:        log.Summarize(),
		Errors:         log.Entries(),
		EvaluationTime: time.Since(startTime).String(),
	})
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, policy, created_at, updated_at
		FROM tenants
		ORDER BY created_at DESC
	`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}
	defer rows.Close()

	tenants := []TenantResponse{}
	for rows.Next() {
		var t TenantResponse
		if err := rows.Scan(&t.ID, &t.Name, &t.Policy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan tenant", err)
			return
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}

	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: tenants})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if err := multitenantengine.ValidateRulesetName(req.ID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid tenant id", err)
		return
	}
	if req.Policy == "" {
		req.Policy = s.defaultPolicy
	}
	if err := multitenantengine.ValidatePolicyExpression(req.Policy); err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy", err)
		return
	}

	var t TenantResponse
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO tenants (id, name, policy, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING id, name, policy, created_at, updated_at
	`, req.ID, req.Name, req.Policy).Scan(&t.ID, &t.Name, &t.Policy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusConflict, "tenant already exists", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	if err := s.engineManager.CreateTenant(t.ID, t.Policy); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize tenant", err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	p, err := s.engineManager.GetPolicy(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	respondJSON(w, http.StatusOK, PolicyResponse{TenantID: tenantID, Policy: p.String()})
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err := s.engineManager.UpdateTenantPolicy(tenantID, req.Policy)
	if errors.Is(err, multitenantengine.ErrTenantNotFound) {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to update policy", err)
		return
	}

	respondJSON(w, http.StatusOK, PolicyResponse{TenantID: tenantID, Policy: req.Policy})
}

func (s *Server) handleCreateRuleset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req RulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Definition.String() == "" {
		respondError(w, http.StatusBadRequest, "name and definition are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if err := multitenantengine.ValidateRulesetName(req.ID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid ruleset id", err)
		return
	}

	en, err := s.engineManager.GetEngine(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	record := &engine.RulesetRecord{
		ID:         req.ID,
		Name:       req.Name,
		Definition: req.Definition.String(),
		Active:     req.Active == nil || *req.Active,
	}

	// AddRuleset compiles the definition before storing it
	if err := en.AddRuleset(record); err != nil {
		respondError(w, statusFor(err), "failed to add ruleset", err)
		return
	}

	respondJSON(w, http.StatusCreated, s.rulesetResponse(en, record))
}

func (s *Server) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	en, err := s.engineManager.GetEngine(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, definition, active, created_at, updated_at
		FROM rulesets
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rulesets", err)
		return
	}
	defer rows.Close()

	list := []RulesetResponse{}
	for rows.Next() {
		var rec engine.RulesetRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Definition, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan ruleset", err)
			return
		}
		list = append(list, s.rulesetResponse(en, &rec))
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rulesets", err)
		return
	}

	respondJSON(w, http.StatusOK, RulesetsListResponse{Rulesets: list})
}

func (s *Server) handleGetRuleset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	rulesetID := chi.URLParam(r, "rulesetId")

	en, err := s.engineManager.GetEngine(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	record, err := engine.NewPostgresRulesetStore(s.db, tenantID).Get(rulesetID)
	if err != nil {
		respondError(w, statusFor(err), "ruleset not found", err)
		return
	}

	respondJSON(w, http.StatusOK, s.rulesetResponse(en, record))
}

func (s *Server) handleUpdateRuleset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	rulesetID := chi.URLParam(r, "rulesetId")

	var req RulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	en, err := s.engineManager.GetEngine(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	record := &engine.RulesetRecord{
		ID:         rulesetID,
		Name:       req.Name,
		Definition: req.Definition.String(),
		Active:     req.Active == nil || *req.Active,
	}

	if err := en.UpdateRuleset(record); err != nil {
		respondError(w, statusFor(err), "failed to update ruleset", err)
		return
	}

	respondJSON(w, http.StatusOK, s.rulesetResponse(en, record))
}

func (s *Server) handleDeleteRuleset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	rulesetID := chi.URLParam(r, "rulesetId")

	en, err := s.engineManager.GetEngine(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	if err := en.DeleteRuleset(rulesetID); err != nil {
		respondError(w, statusFor(err), "failed to delete ruleset", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rulesetResponse(en *engine.Engine, rec *engine.RulesetRecord) RulesetResponse {
	resp := RulesetResponse{
		ID:         rec.ID,
		Name:       rec.Name,
		Definition: rec.Definition,
		Active:     rec.Active,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rs, err := en.Ruleset(rec.ID); err == nil {
		resp.Rules = rs.Len()
	}
	return resp
}

// rawDefinition keeps a ruleset definition as the client sent it. A JSON
// string is unquoted; any other JSON value is kept byte for byte so key
// order and repeated keys reach the ruleset parser.
type rawDefinition []byte

func (d *rawDefinition) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*d = rawDefinition(text)
		return nil
	}
	*d = append((*d)[:0], trimmed...)
	return nil
}

func (d rawDefinition) String() string {
	if bytes.Equal(d, []byte("null")) {
		return ""
	}
	return string(d)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, multitenantengine.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyExists):
		return http.StatusConflict
	case errs.IsConfiguration(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorHttp5xx()
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.WarnHttp4xx()
		logger.Debug(message, "status", status, "error", err)
	}

	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()
	if server.redis != nil {
		defer server.redis.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
