package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/whisper/public-chat/internal/report"
)

const (
	defaultReportLimit  = 20
	maxReportLimit      = 100
	defaultReportWindow = time.Hour
)

// ReportViewer reads the moderation audit trail. report.Store satisfies it.
type ReportViewer interface {
	Recent(ctx context.Context, target string, limit int) ([]report.Report, error)
	CountRecent(ctx context.Context, target string, window time.Duration) (int, error)
}

// SetReportViewer enables the /reports endpoint. It must be called before
// Serve.
func (s *Server) SetReportViewer(v ReportViewer) {
	s.reports = v
}

type reportEntry struct {
	Reporter  string    `json:"reporter"`
	Count     int       `json:"count"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

type reportsResponse struct {
	User        string        `json:"user"`
	Window      string        `json:"window"`
	RecentCount int           `json:"recent_count"`
	Reports     []reportEntry `json:"reports"`
}

// handleReports returns the latest reports filed against ?user=, plus how
// many were filed within ?window= (a Go duration, default 1h).
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		http.Error(w, "report store not configured", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	limit := defaultReportLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxReportLimit)
	}

	window := defaultReportWindow
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rows, err := s.reports.Recent(ctx, user, limit)
	if err != nil {
		log.Printf("server: reports for %q: %v", user, err)
		http.Error(w, "report lookup failed", http.StatusInternalServerError)
		return
	}
	count, err := s.reports.CountRecent(ctx, user, window)
	if err != nil {
		log.Printf("server: report count for %q: %v", user, err)
		http.Error(w, "report lookup failed", http.StatusInternalServerError)
		return
	}

	resp := reportsResponse{
		User:        user,
		Window:      window.String(),
		RecentCount: count,
		Reports:     make([]reportEntry, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Reports = append(resp.Reports, reportEntry{
			Reporter:  row.Reporter,
			Count:     row.Count,
			Banned:    row.Banned,
			CreatedAt: row.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
