// Package service contains application services.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
	"github.com/tokenwarden/tokenwarden/internal/domain/authz"
	"github.com/tokenwarden/tokenwarden/internal/domain/token"
)

const defaultCacheSize = 1024

// AuthorizeRequest is one authorization call: the parsed token blocks and
// the verifier-side program.
type AuthorizeRequest struct {
	Authority  token.SignedBlock
	Blocks     []token.SignedBlock
	Authorizer token.Authorizer
}

// Decision is the service-level outcome: the executor result plus request
// tracking. Allowed decisions carry the Success for post-hoc queries.
type Decision struct {
	RequestID    string
	Allowed      bool
	Outcome      string
	PolicyIndex  int
	FailedChecks []string
	FactCount    int
	LatencyMs    int64
	Cached       bool

	// Success is non-nil iff Allowed.
	Success *authz.Success
	// Err is the executor error for non-allowed outcomes.
	Err error
}

// AuthorizationService wraps the executor with request IDs, decision
// caching, structured logging, tracing, and decision-log emission.
type AuthorizationService struct {
	limits authz.Limits
	store  audit.Store
	logger *slog.Logger
	tracer trace.Tracer
	cache  *resultCache
}

// NewAuthorizationService creates a service deciding under the given
// limits and appending every decision to the store.
func NewAuthorizationService(limits authz.Limits, store audit.Store, logger *slog.Logger) *AuthorizationService {
	return &AuthorizationService{
		limits: limits,
		store:  store,
		logger: logger,
		tracer: otel.Tracer("tokenwarden/authorization"),
		cache:  newResultCache(defaultCacheSize),
	}
}

// Authorize runs one authorization. Authorization is pure, so
// byte-identical requests are served from the LRU cache with a fresh
// request ID.
func (s *AuthorizationService) Authorize(ctx context.Context, req AuthorizeRequest) Decision {
	requestID := uuid.New().String()
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "authorize",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	key := requestKey(req, s.limits)
	if cached, ok := s.cache.Get(key); ok {
		cached.RequestID = requestID
		cached.Cached = true
		cached.LatencyMs = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.Bool("cached", true), attribute.String("outcome", cached.Outcome))
		s.record(ctx, cached, len(req.Blocks))
		return cached
	}

	success, err := authz.Authorize(req.Authority, req.Blocks, req.Authorizer, s.limits)
	decision := buildDecision(requestID, success, err)
	decision.LatencyMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Bool("cached", false),
		attribute.String("outcome", decision.Outcome),
		attribute.Int("fact_count", decision.FactCount),
	)

	// Timeouts depend on machine load, not on the inputs; replay every
	// other outcome.
	if decision.Outcome != audit.OutcomeTimeout {
		s.cache.Put(key, decision)
	}
	s.record(ctx, decision, len(req.Blocks))

	s.logger.Debug("authorization completed",
		"request_id", requestID,
		"outcome", decision.Outcome,
		"policy_index", decision.PolicyIndex,
		"fact_count", decision.FactCount,
		"latency_ms", decision.LatencyMs,
	)
	return decision
}

// QueryFacts evaluates a query against the trusted authority facts of an
// allowed decision.
func (s *AuthorizationService) QueryFacts(d Decision, q QuerySpec) ([]string, error) {
	if d.Success == nil {
		return nil, errors.New("decision did not allow; no facts to query")
	}
	sols := authz.QueryAuthorizerFacts(d.Success, q.Query)
	values := authz.BoundValues(sols, q.Variable)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out, nil
}

func (s *AuthorizationService) record(ctx context.Context, d Decision, blockCount int) {
	rec := audit.Record{
		Timestamp:    time.Now().UTC(),
		RequestID:    d.RequestID,
		Outcome:      d.Outcome,
		PolicyIndex:  d.PolicyIndex,
		FailedChecks: d.FailedChecks,
		BlockCount:   blockCount,
		FactCount:    d.FactCount,
		DurationMs:   d.LatencyMs,
		Cached:       d.Cached,
	}
	if err := s.store.Append(ctx, rec); err != nil {
		s.logger.Error("decision log append failed", "request_id", d.RequestID, "error", err)
	}
}

// buildDecision maps the executor result onto the service taxonomy.
func buildDecision(requestID string, success *authz.Success, err error) Decision {
	d := Decision{RequestID: requestID, PolicyIndex: -1, Err: err}

	if err == nil {
		d.Allowed = true
		d.Outcome = audit.OutcomeAllowed
		d.PolicyIndex = success.MatchedAllow.PolicyIndex
		d.FactCount = success.AllFacts.Len()
		d.Success = success
		return d
	}

	var denyErr *authz.DenyMatchedError
	var noMatch *authz.NoPoliciesMatchedError
	var failed *authz.FailedChecksError
	switch {
	case errors.As(err, &denyErr):
		d.Outcome = audit.OutcomeDenyMatched
		d.PolicyIndex = denyErr.Deny.PolicyIndex
		d.FailedChecks = renderFailedChecks(denyErr.FailedChecks)
	case errors.As(err, &noMatch):
		d.Outcome = audit.OutcomeNoPoliciesMatched
		d.FailedChecks = renderFailedChecks(noMatch.FailedChecks)
	case errors.As(err, &failed):
		d.Outcome = audit.OutcomeFailedChecks
		d.FailedChecks = renderFailedChecks(failed.FailedChecks)
	case errors.Is(err, authz.ErrTimeout):
		d.Outcome = audit.OutcomeTimeout
	case errors.Is(err, authz.ErrTooManyFacts):
		d.Outcome = audit.OutcomeTooManyFacts
	case errors.Is(err, authz.ErrTooManyIterations):
		d.Outcome = audit.OutcomeTooManyIterations
	case errors.Is(err, authz.ErrBlockProgramDenied):
		d.Outcome = audit.OutcomeBlockProgramDenied
	default:
		d.Outcome = audit.OutcomeNoPoliciesMatched
	}
	return d
}

func renderFailedChecks(checks []authz.FailedCheck) []string {
	if len(checks) == 0 {
		return nil
	}
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.String()
	}
	return out
}

// requestKey hashes the canonical rendering of the request and limits.
// The rendering is injective enough for cache keying: programs render in
// surface syntax, revocation IDs in hex, each part preceded by a tagged
// separator such as "|f:" or "|p:".
func requestKey(req AuthorizeRequest, limits authz.Limits) uint64 {
	h := xxhash.New()

	writeBlock := func(b token.SignedBlock) {
		_, _ = h.WriteString("|rev:")
		_, _ = h.WriteString(hex.EncodeToString(b.RevocationID))
		for _, f := range b.Block.Facts {
			_, _ = h.WriteString("|f:")
			_, _ = h.WriteString(f.String())
		}
		for _, r := range b.Block.Rules {
			_, _ = h.WriteString("|r:")
			_, _ = h.WriteString(r.String())
		}
		for _, c := range b.Block.Checks {
			_, _ = h.WriteString("|c:")
			_, _ = h.WriteString(c.String())
		}
	}

	_, _ = h.WriteString("authority")
	writeBlock(req.Authority)
	for i, b := range req.Blocks {
		_, _ = h.WriteString("|block:")
		_, _ = h.WriteString(strconv.Itoa(i))
		writeBlock(b)
	}
	_, _ = h.WriteString("|authorizer")
	writeBlock(token.SignedBlock{Block: req.Authorizer.Block})
	for _, p := range req.Authorizer.Policies {
		_, _ = h.WriteString("|p:")
		_, _ = h.WriteString(p.String())
	}

	_, _ = h.WriteString("|limits:")
	_, _ = h.WriteString(strconv.FormatUint(limits.MaxFacts, 10))
	_, _ = h.WriteString(",")
	_, _ = h.WriteString(strconv.FormatUint(limits.MaxIterations, 10))
	_, _ = h.WriteString(",")
	_, _ = h.WriteString(limits.MaxTime.String())
	_, _ = h.WriteString(",")
	_, _ = h.WriteString(strconv.FormatBool(limits.AllowBlockPrograms))

	return h.Sum64()
}
