package services

import (
	"context"
	"log"
	"net/http"

	goahttp "goa.design/goa/v3/http"
	"gorm.io/gorm"

	"envelope/internal/database"
)

// HealthResult is the body of GET /health.
type HealthResult struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database"`
}

// HealthService implements the health service
type HealthService struct {
	db      *gorm.DB
	service string
	version string
}

// NewHealthService creates a new health service
func NewHealthService(db *gorm.DB, service, version string) *HealthService {
	return &HealthService{db: db, service: service, version: version}
}

// Mount registers GET /health.
func (s *HealthService) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodGet, "/health", s.handle)
}

// Check reports service status; a failing database ping marks it unhealthy.
func (s *HealthService) Check(ctx context.Context) *HealthResult {
	res := &HealthResult{Status: "healthy", Service: s.service, Version: s.version, Database: "ok"}
	if err := database.HealthCheck(ctx, s.db); err != nil {
		log.Printf("[HEALTH] Database check failed: %v", err)
		res.Status = "unhealthy"
		res.Database = "error"
	}
	return res
}

func (s *HealthService) handle(w http.ResponseWriter, r *http.Request) {
	res := s.Check(r.Context())
	status := http.StatusOK
	if res.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, res)
}
