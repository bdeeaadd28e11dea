package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	History     int    `json:"history"`
	Uptime      string `json:"uptime"`
}

// handleHealth responds with the server's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Connections: s.sessions.Count(),
		Users:       s.hub.Registry().Count(),
		History:     s.hub.History().Len(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	})
}
