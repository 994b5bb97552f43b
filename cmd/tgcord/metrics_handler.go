package main

import (
	"encoding/json"
	"net/http"

	"tgcord/internal/metrics"
	"tgcord/internal/service"
	"tgcord/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics refreshes the mapping gauges and serves the registry as JSON
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := tracing.GetRequestID(r.Context())

		if s.opts.Store != nil {
			total, deleted, err := s.opts.Store.CountMappings(r.Context())
			if err != nil {
				s.logger.WithError(err).WithField(service.LogFieldRequestID, requestID).Warn("Failed to count mappings for metrics")
			} else {
				metrics.SetGauge("mappings_total", float64(total), nil, "Stored message mappings")
				metrics.SetGauge("mappings_deleted", float64(deleted), nil, "Mappings whose source message was deleted")
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(metrics.GetSnapshot()); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestID,
				"error":                   err,
			}).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
