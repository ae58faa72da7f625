package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokenwarden/tokenwarden/internal/ctxkey"
	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
	"github.com/tokenwarden/tokenwarden/internal/domain/auth"
	"github.com/tokenwarden/tokenwarden/internal/service"
)

// Server serves the decision API: POST /v1/authorize plus health and
// metrics endpoints.
type Server struct {
	addr    string
	svc     *service.AuthorizationService
	auditor *service.AuditService
	keyring *auth.Keyring
	metrics *Metrics
	logger  *slog.Logger

	registry   *prometheus.Registry
	httpServer *http.Server
}

// NewServer wires the decision API. The auditor may be nil when decision
// logging is synchronous; when set, its drop counter feeds the
// audit_drops_total metric and its channel depth feeds /healthz.
func NewServer(addr string, svc *service.AuthorizationService, auditor *service.AuditService, keyring *auth.Keyring, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	s := &Server{
		addr:     addr,
		svc:      svc,
		auditor:  auditor,
		keyring:  keyring,
		metrics:  NewMetrics(registry),
		logger:   logger,
		registry: registry,
	}
	if auditor != nil {
		auditor.OnDrop(s.metrics.AuditDropsTotal.Inc)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("POST /v1/authorize", s.requireAPIKey(http.HandlerFunc(s.handleAuthorize)))
	return mux
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("decision API listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.auditor != nil {
		depth := s.auditor.ChannelDepth()
		capacity := s.auditor.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}
		if percentFull > 90 {
			// Past 90% the decision log is under backpressure.
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}
		if drops := s.auditor.DroppedRecords(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "synchronous"
	}

	status := http.StatusOK
	body := map[string]any{"status": "ok", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

// requireAPIKey authenticates requests against the configured keyring.
// An empty keyring disables authentication (development mode).
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keyring.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := r.Header.Get("X-Api-Key")
		if rawKey == "" {
			const prefix = "Bearer "
			if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
				rawKey = h[len(prefix):]
			}
		}
		if rawKey == "" {
			s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, "401").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			return
		}

		name, err := s.keyring.Validate(rawKey)
		if err != nil {
			s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, "401").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxkey.APIKeyName, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var dto AuthorizeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, "400").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	req, err := decodeAuthorizeRequest(dto)
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, "400").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	decision := s.svc.Authorize(r.Context(), req)

	s.metrics.AuthorizationsTotal.WithLabelValues(decision.Outcome).Inc()
	s.metrics.AuthorizationDuration.Observe(time.Since(start).Seconds())
	if decision.FactCount > 0 {
		s.metrics.DerivedFacts.Observe(float64(decision.FactCount))
	}

	status := statusForOutcome(decision.Outcome)
	s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()

	if keyName, ok := r.Context().Value(ctxkey.APIKeyName).(string); ok {
		s.logger.Debug("decision served", "request_id", decision.RequestID, "api_key", keyName, "outcome", decision.Outcome)
	}

	writeJSON(w, status, buildResponse(decision))
}

func decodeAuthorizeRequest(dto AuthorizeRequestDTO) (service.AuthorizeRequest, error) {
	authority, err := decodeSignedBlock(dto.Authority)
	if err != nil {
		return service.AuthorizeRequest{}, err
	}
	req := service.AuthorizeRequest{Authority: authority}
	for _, bd := range dto.Blocks {
		b, err := decodeSignedBlock(bd)
		if err != nil {
			return service.AuthorizeRequest{}, err
		}
		req.Blocks = append(req.Blocks, b)
	}
	req.Authorizer, err = decodeAuthorizer(dto.Authorizer)
	if err != nil {
		return service.AuthorizeRequest{}, err
	}
	return req, nil
}

// statusForOutcome maps decision outcomes to HTTP statuses: allowed is
// 200, refusals are 403, and resource exhaustion is 422 since the inputs
// were understood but not computable under the limits.
func statusForOutcome(outcome string) int {
	switch outcome {
	case audit.OutcomeAllowed:
		return http.StatusOK
	case audit.OutcomeTimeout, audit.OutcomeTooManyFacts, audit.OutcomeTooManyIterations, audit.OutcomeBlockProgramDenied:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusForbidden
	}
}

func buildResponse(d service.Decision) AuthorizeResponseDTO {
	resp := AuthorizeResponseDTO{
		RequestID:    d.RequestID,
		Allowed:      d.Allowed,
		Outcome:      d.Outcome,
		PolicyIndex:  d.PolicyIndex,
		FailedChecks: d.FailedChecks,
		FactCount:    d.FactCount,
		LatencyMs:    d.LatencyMs,
		Cached:       d.Cached,
	}
	if d.Success != nil {
		for _, b := range d.Success.MatchedAllow.Bindings {
			rendered := make(map[string]string, len(b))
			for name, v := range b {
				rendered[name] = v.String()
			}
			resp.Bindings = append(resp.Bindings, rendered)
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
