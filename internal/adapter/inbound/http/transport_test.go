package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
	"github.com/tokenwarden/tokenwarden/internal/domain/auth"
	"github.com/tokenwarden/tokenwarden/internal/domain/authz"
	"github.com/tokenwarden/tokenwarden/internal/service"
)

// nopAuditStore discards records.
type nopAuditStore struct{}

func (nopAuditStore) Append(context.Context, ...audit.Record) error { return nil }
func (nopAuditStore) Flush(context.Context) error                   { return nil }
func (nopAuditStore) Close() error                                  { return nil }

func testServer(keys []auth.Key) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := authz.Limits{MaxFacts: 10_000, MaxIterations: 1000, AllowBlockPrograms: true}
	svc := service.NewAuthorizationService(limits, nopAuditStore{}, logger)
	return NewServer("127.0.0.1:0", svc, nil, auth.NewKeyring(keys), logger)
}

func allowRequestBody() AuthorizeRequestDTO {
	return AuthorizeRequestDTO{
		Authority: SignedBlockDTO{
			RevocationID: "aa",
			Block: BlockDTO{
				Facts: []PredicateDTO{{
					Name:  "user",
					Terms: []TermDTO{{Type: "string", String: "alice"}},
				}},
			},
		},
		Authorizer: AuthorizerDTO{
			Policies: []PolicyDTO{{
				Kind: "allow",
				Queries: []QueryDTO{{
					Body: []PredicateDTO{{
						Name:  "user",
						Terms: []TermDTO{{Type: "variable", Name: "x"}},
					}},
				}},
			}},
		},
	}
}

func postAuthorize(t *testing.T, handler http.Handler, body AuthorizeRequestDTO, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeEndpointAllows(t *testing.T) {
	srv := testServer(nil)
	rec := postAuthorize(t, srv.Routes(), allowRequestBody(), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp AuthorizeResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Allowed || resp.Outcome != audit.OutcomeAllowed {
		t.Errorf("response = %+v, want allowed", resp)
	}
	if len(resp.Bindings) != 1 || resp.Bindings[0]["x"] != `"alice"` {
		t.Errorf("bindings = %v, want x bound to alice", resp.Bindings)
	}
}

func TestAuthorizeEndpointDenies(t *testing.T) {
	srv := testServer(nil)
	body := allowRequestBody()
	body.Authorizer.Policies[0].Kind = "deny"

	rec := postAuthorize(t, srv.Routes(), body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var resp AuthorizeResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Allowed || resp.Outcome != audit.OutcomeDenyMatched {
		t.Errorf("response = %+v, want deny_matched", resp)
	}
}

func TestAuthorizeEndpointRejectsBadBodies(t *testing.T) {
	srv := testServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", rec.Code)
	}

	// Structurally valid JSON with an unknown policy kind.
	body := allowRequestBody()
	body.Authorizer.Policies[0].Kind = "maybe"
	rec = postAuthorize(t, srv.Routes(), body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown policy kind: status = %d, want 400", rec.Code)
	}
}

func TestAuthorizeEndpointRequiresAPIKey(t *testing.T) {
	srv := testServer([]auth.Key{{Name: "ci", Hash: auth.HashKey("sekrit")}})

	rec := postAuthorize(t, srv.Routes(), allowRequestBody(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", rec.Code)
	}

	rec = postAuthorize(t, srv.Routes(), allowRequestBody(), map[string]string{"X-Api-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}

	rec = postAuthorize(t, srv.Routes(), allowRequestBody(), map[string]string{"X-Api-Key": "sekrit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rec.Code)
	}

	rec = postAuthorize(t, srv.Routes(), allowRequestBody(), map[string]string{"Authorization": "Bearer sekrit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer key: status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuditDropsFeedMetricsAndHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := authz.Limits{MaxFacts: 10_000, MaxIterations: 1000, AllowBlockPrograms: true}

	// A one-slot channel with no worker and no send timeout: the second
	// record must drop.
	auditor := service.NewAuditService(nopAuditStore{}, logger,
		service.WithChannelSize(1),
		service.WithSendTimeout(0),
	)
	svc := service.NewAuthorizationService(limits, auditor, logger)
	srv := NewServer("127.0.0.1:0", svc, auditor, auth.NewKeyring(nil), logger)

	for i := 0; i < 2; i++ {
		if rec := postAuthorize(t, srv.Routes(), allowRequestBody(), nil); rec.Code != http.StatusOK {
			t.Fatalf("authorize %d: status = %d", i, rec.Code)
		}
	}
	if auditor.DroppedRecords() != 1 {
		t.Fatalf("dropped = %d, want 1", auditor.DroppedRecords())
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "tokenwarden_audit_drops_total 1") {
		t.Error("audit_drops_total not exported with the drop counted")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Checks["audit_drops"] != "1 dropped" {
		t.Errorf("health checks = %v, want audit_drops reported", health.Checks)
	}
}

func TestResourceLimitOutcomesMapTo422(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := authz.Limits{MaxFacts: 10_000, MaxIterations: 2, AllowBlockPrograms: true}
	svc := service.NewAuthorizationService(limits, nopAuditStore{}, logger)
	srv := NewServer("127.0.0.1:0", svc, nil, auth.NewKeyring(nil), logger)

	rec := postAuthorize(t, srv.Routes(), allowRequestBody(), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	var resp AuthorizeResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Outcome != audit.OutcomeTooManyIterations {
		t.Errorf("outcome = %s, want %s", resp.Outcome, audit.OutcomeTooManyIterations)
	}
}
