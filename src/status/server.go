// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package status publishes the latest diagnostic results over HTTP.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server keeps the latest record per diagnostic kind and serves them.
// Record may be called from any goroutine.
type Server struct {
	logger  *zap.Logger
	store   Store
	metrics *Metrics
}

// NewServer returns a server over store. A nil logger is replaced with a
// no-op one.
func NewServer(l *zap.Logger, store Store, m *Metrics) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if m == nil {
		m = NewMetrics()
	}
	return &Server{logger: l, store: store, metrics: m}
}

// Record publishes rec as the latest result of its kind.
func (s *Server) Record(rec report.Record) {
	s.store.Set(string(rec.Kind), rec)
	s.metrics.Observe(rec)
	s.logger.Info("status_recorded",
		zap.String("kind", string(rec.Kind)),
		zap.String("target", rec.Target),
		zap.String("result", rec.Result),
		zap.Bool("success", rec.Success),
		zap.Duration("took", rec.Duration),
	)
}

// Router returns the HTTP handler:
//
//	GET /healthz            liveness
//	GET /api/status         every live record
//	GET /api/status/{kind}  the latest record of one kind
//	GET /metrics            Prometheus metrics
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/status", s.handleList)
	r.Get("/api/status/{kind}", s.handleGet)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	rec, ok := s.store.Get(kind)
	if !ok {
		http.Error(w, "no result", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
