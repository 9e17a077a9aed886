package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lexatlas/lexrag/internal/api"
	"github.com/lexatlas/lexrag/internal/service"
)

const (
	serviceName    = "RAG Legal API"
	serviceVersion = "1.0.0"
)

type SystemService interface {
	Stats(ctx context.Context) (*service.SystemStats, error)
}

type SystemHandler struct {
	svc SystemService
}

func NewSystemHandler(svc SystemService) *SystemHandler {
	return &SystemHandler{svc: svc}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type SystemInfoResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Features    []string          `json:"features"`
	Endpoints   map[string]string `json:"endpoints"`
}

type SystemStatsResponse struct {
	TotalQueries     int64  `json:"total_queries"`
	TotalDocuments   int64  `json:"total_documents"`
	IndexedDocuments int64  `json:"indexed_documents"`
	FailedDocuments  int64  `json:"failed_documents"`
	TotalChunks      int64  `json:"total_chunks"`
	Uptime           string `json:"uptime"`
	LastQuery        string `json:"last_query,omitempty"`
	SystemStatus     string `json:"system_status"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Version:   serviceVersion,
		Service:   serviceName,
	})
}

func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, SystemInfoResponse{
		Name:        serviceName,
		Description: "API REST para sistema RAG de documentos legales",
		Version:     serviceVersion,
		Features: []string{
			"Consultas semánticas",
			"Historial de consultas",
			"Metadatos de documentos",
			"Filtros avanzados",
		},
		Endpoints: map[string]string{
			"queries":  "/api/v1/queries",
			"history":  "/api/v1/queries/history",
			"metadata": "/api/v1/metadata",
			"system":   "/api/v1/system",
		},
	})
}

func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SystemStatsResponse{
		TotalQueries:     stats.TotalQueries,
		TotalDocuments:   stats.TotalDocuments,
		IndexedDocuments: stats.IndexedDocuments,
		FailedDocuments:  stats.FailedDocuments,
		TotalChunks:      stats.TotalChunks,
		Uptime:           formatUptime(stats.Uptime),
		SystemStatus:     "operational",
	}
	if stats.LastQueryAt != nil {
		resp.LastQuery = stats.LastQueryAt.Format("2006-01-02T15:04:05Z")
	}

	api.Success(w, http.StatusOK, resp)
}

// formatUptime renders a duration as H:MM:SS
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
