package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/config"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// DefaultIngestTimeout bounds one ingestion when no timeout is configured.
const DefaultIngestTimeout = 2 * time.Minute

// Service provides the core business logic for fiscal documents.
type Service struct {
	store    store.Store
	trail    *audit.Trail
	detector *fiscal.Detector
	limiter  *IngestLimiter

	maxFileSize      int64
	ingestTimeout    time.Duration
	defaultCompanyID int64
	defaultUserID    int64
}

// NewService wires a service to its store and audit trail. Limits and
// defaults come from cfg.
func NewService(st store.Store, trail *audit.Trail, cfg *config.Config) *Service {
	s := &Service{
		store:            st,
		trail:            trail,
		detector:         fiscal.NewDetector(),
		limiter:          NewIngestLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		maxFileSize:      cfg.Upload.MaxFileSize,
		ingestTimeout:    cfg.Upload.Timeout,
		defaultCompanyID: cfg.Ingest.DefaultCompanyID,
		defaultUserID:    cfg.Ingest.DefaultUserID,
	}
	if s.ingestTimeout <= 0 {
		s.ingestTimeout = DefaultIngestTimeout
	}
	return s
}

// WaitForIngests blocks until in-flight ingestions finish or ctx is done.
func (s *Service) WaitForIngests(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// HealthStatus is reported by GET /api/health.
type HealthStatus struct {
	Database     string        `json:"database"`
	Dialect      string        `json:"dialect"`
	AuditBackend string        `json:"audit_backend"`
	Ingest       LimiterStatus `json:"ingest"`
}

// Healthy reports whether every dependency answered.
func (h HealthStatus) Healthy() bool {
	return h.Database == "ok"
}

// Health pings the store and reports the active audit backend.
func (s *Service) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{
		Database:     "ok",
		Dialect:      s.store.Dialect(),
		AuditBackend: s.trail.ActiveBackend(),
		Ingest:       s.limiter.Status(),
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Database = "unavailable"
	}
	return h
}
