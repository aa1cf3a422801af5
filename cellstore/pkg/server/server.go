// Package server exposes health, metrics and a read-only view of the tablesets over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/catalog"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/metrics"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

type Server struct {
	log     *slog.Logger
	cfg     Config
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

// Handler returns the router of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeText(w, http.StatusOK, "ok\n")
	})
	r.Get("/readyz", s.readyzHandler)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tablesets", s.listTableSets)
		r.Get("/tablesets/{name}", s.getTableSet)
		r.Get("/schemas/{name}", s.getSchema)
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.DB.Ping(r.Context()); err != nil {
		s.log.Debug("readyz: database not reachable", "error", err)
		s.writeText(w, http.StatusServiceUnavailable, "database not reachable\n")
		return
	}
	s.writeText(w, http.StatusOK, "ok\n")
}

// TableSetResponse describes one tableset found in the database.
type TableSetResponse struct {
	Name                 string            `json:"name"`
	BaseResolutions      []int             `json:"base_resolutions"`
	CompactedResolutions []int             `json:"compacted_resolutions"`
	Columns              map[string]string `json:"columns"`
}

func tableSetResponse(ts *tableset.TableSet) TableSetResponse {
	return TableSetResponse{
		Name:                 ts.Basename,
		BaseResolutions:      resolutions(ts.BaseResolutions()),
		CompactedResolutions: resolutions(ts.CompactedResolutions()),
		Columns:              ts.Columns,
	}
}

// resolutions widens rs, encoding/json writes a []uint8 as base64.
func resolutions(rs []uint8) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = int(r)
	}
	return out
}

func (s *Server) listTableSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.cfg.Catalog.TableSets(r.Context())
	if err != nil {
		s.log.Error("failed to list tablesets", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tablesets")
		return
	}
	out := make([]TableSetResponse, 0, len(sets))
	for _, name := range slices.Sorted(maps.Keys(sets)) {
		out = append(out, tableSetResponse(sets[name]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTableSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sets, err := s.cfg.Catalog.TableSets(r.Context())
	if err != nil {
		s.log.Error("failed to list tablesets", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tablesets")
		return
	}
	ts, ok := sets[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("tableset %s not found", name))
		return
	}
	s.writeJSON(w, http.StatusOK, tableSetResponse(ts))
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sch, err := s.cfg.Catalog.GetSchema(r.Context(), name)
	if errors.Is(err, catalog.ErrSchemaNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("schema %s not found", name))
		return
	}
	if err != nil {
		s.log.Error("failed to get schema", "schema", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get schema")
		return
	}
	s.writeJSON(w, http.StatusOK, sch)
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
