// Package api exposes the pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"quotescraper/internal/pipeline"
	"quotescraper/internal/registry"
	"quotescraper/internal/utils"
	"quotescraper/internal/writer"
	"quotescraper/models"
)

type Server struct {
	pipeline *pipeline.Pipeline
	logger   *utils.Logger
	router   *mux.Router
}

func NewServer(p *pipeline.Pipeline, logger *utils.Logger) *Server {
	s := &Server{pipeline: p, logger: logger, router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.RunHandler).Methods("POST")
	api.HandleFunc("/quotes/{symbol}", s.QuoteHandler).Methods("GET")
	api.HandleFunc("/blacklist", s.BlacklistHandler).Methods("GET")
	api.HandleFunc("/artifacts", s.ArtifactsHandler).Methods("GET")
	api.HandleFunc("/artifacts/{name}", s.ArtifactHandler).Methods("GET")

	dataFs := http.FileServer(http.Dir(p.Writer().Dir()))
	s.router.PathPrefix("/data/").Handler(http.StripPrefix("/data/", dataFs))
	return s
}

// Router exposes the route table so callers can mount extra handlers.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler is the router wrapped with panic recovery.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.router)
}

type runRequest struct {
	Tickers []string `json:"tickers"`
	Workers int      `json:"workers"`
}

type runResponse struct {
	RunID    string        `json:"runId"`
	Counts   models.Counts `json:"counts"`
	Artifact string        `json:"artifact,omitempty"`
	Elapsed  string        `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

type quoteResponse struct {
	Symbol       string           `json:"symbol"`
	Price        decimal.Decimal  `json:"price"`
	Variation    decimal.Decimal  `json:"variation"`
	VariationPct decimal.Decimal  `json:"variation_pct"`
	Direction    models.Direction `json:"direction"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

type failureResponse struct {
	Symbol string               `json:"symbol"`
	Reason models.FailureReason `json:"reason"`
	Detail string               `json:"detail"`
}

// RunHandler starts a batch. An empty ticker list runs the configured universe.
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Workers < 0 || req.Workers > utils.MaxWorkers {
		http.Error(w, "Invalid workers parameter", http.StatusBadRequest)
		return
	}

	var (
		report *pipeline.Report
		err    error
	)
	if len(req.Tickers) == 0 {
		report, err = s.pipeline.Run(r.Context())
	} else {
		report, err = s.pipeline.RunTickers(r.Context(), req.Tickers, req.Workers)
	}

	switch {
	case errors.Is(err, registry.ErrUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil && report == nil:
		s.logger.Error("API run failed: %v", err)
		http.Error(w, "Error running batch: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := runResponse{
		RunID:    report.RunID,
		Counts:   report.Counts,
		Artifact: filepath.Base(report.Artifact),
		Elapsed:  report.Elapsed.Round(time.Millisecond).String(),
	}
	status := http.StatusOK
	if err != nil {
		s.logger.Error("API run %s finished without an artifact: %v", report.RunID, err)
		resp.Artifact = ""
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// QuoteHandler fetches one symbol live.
func (s *Server) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	if symbol == "" {
		http.Error(w, "Symbol parameter is required", http.StatusBadRequest)
		return
	}

	outcome, err := s.pipeline.Quote(r.Context(), symbol)
	if errors.Is(err, pipeline.ErrBlacklisted) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !outcome.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, failureResponse{
			Symbol: outcome.Symbol,
			Reason: outcome.Failure.Reason,
			Detail: outcome.Failure.Detail,
		})
		return
	}
	q := outcome.Quote
	writeJSON(w, http.StatusOK, quoteResponse{
		Symbol:       q.Symbol,
		Price:        q.Price,
		Variation:    q.Variation,
		VariationPct: q.VariationPct,
		Direction:    q.Direction,
		FetchedAt:    q.FetchedAt,
	})
}

func (s *Server) BlacklistHandler(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.pipeline.Store().Symbols(r.Context())
	if err != nil {
		http.Error(w, "Error reading blacklist: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (s *Server) ArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := writer.List(s.pipeline.Writer().Dir())
	if err != nil {
		http.Error(w, "Error listing artifacts: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) ArtifactHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !writer.IsArtifactName(name) {
		http.Error(w, "Invalid artifact name", http.StatusBadRequest)
		return
	}

	records, err := writer.ReadRecords(filepath.Join(s.pipeline.Writer().Dir(), name))
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Error reading artifact: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
