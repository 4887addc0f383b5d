// Package server exposes evaluation triggers, health and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/evaluation"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/scheduler"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

type Evaluator interface {
	Evaluate(ctx context.Context, bundleIDs []string) (*evaluation.Result, error)
}

type ScheduleStatus interface {
	Status() []scheduler.TaskStatus
}

type Options struct {
	Gatherer  prometheus.Gatherer
	Schedules ScheduleStatus
	Logger    log.FieldLogger
}

type Handler struct {
	evaluator Evaluator
	schedules ScheduleStatus
	gatherer  prometheus.Gatherer
	logger    log.FieldLogger
}

func NewHandler(evaluator Evaluator, opts Options) *Handler {
	return &Handler{
		evaluator: evaluator,
		schedules: opts.Schedules,
		gatherer:  opts.Gatherer,
		logger:    logging.OrDefault(opts.Logger, "server"),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /evaluations", h.Evaluate)
	mux.HandleFunc("GET /schedules", h.Schedules)
	mux.HandleFunc("GET /healthz", h.Health)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type EvaluationRequest struct {
	RuleBundleIDs []string `json:"ruleBundleIds"`
}

type RuleOutcome struct {
	ID             string            `json:"id"`
	Status         domain.RuleStatus `json:"status"`
	Version        int64             `json:"version"`
	FailureReasons []string          `json:"failureReasons,omitempty"`
}

type EvaluationResponse struct {
	RunID        string        `json:"runId"`
	RuleGroupArn string        `json:"ruleGroupArn"`
	DenyAll      bool          `json:"denyAll"`
	Active       int           `json:"active"`
	Failed       int           `json:"failed"`
	Pending      int           `json:"pending"`
	Rules        []RuleOutcome `json:"rules"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Code: status, Message: message})
}

// Evaluate runs one pass synchronously and reports its status class.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), req.RuleBundleIDs)
	if err != nil {
		status := domain.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).Error("evaluation request failed")
		}
		writeError(w, status, err.Error())
		return
	}

	resp := EvaluationResponse{
		RunID:        result.RunID,
		RuleGroupArn: result.RuleGroupArn,
		DenyAll:      result.DenyAll,
		Active:       result.Count(domain.RuleStatusActive),
		Failed:       result.Count(domain.RuleStatusFailed),
		Pending:      result.Count(domain.RuleStatusPending),
		Rules:        make([]RuleOutcome, 0, len(result.Rules)),
	}
	for _, rule := range result.Rules {
		resp.Rules = append(resp.Rules, RuleOutcome{
			ID:             rule.ID,
			Status:         rule.Status,
			Version:        rule.Version,
			FailureReasons: rule.FailureReasons,
		})
	}
	writeJSON(w, http.StatusOK, Response{Code: http.StatusOK, Data: resp})
}

func (h *Handler) Schedules(w http.ResponseWriter, r *http.Request) {
	statuses := []scheduler.TaskStatus{}
	if h.schedules != nil {
		statuses = h.schedules.Status()
	}
	writeJSON(w, http.StatusOK, Response{Code: http.StatusOK, Data: statuses})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Code: http.StatusOK, Message: "ok"})
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger log.FieldLogger) error {
	logger = logging.OrDefault(logger, "server")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
