package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"github.com/punchamoorthee/crashledger/internal/service"
	"github.com/punchamoorthee/crashledger/internal/store"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	log := zap.NewNop()
	clock := func() time.Time { return time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC) }
	st := store.NewMemoryStore()
	svc := service.New(service.Params{
		Store:  st,
		Issuer: identifier.NewIssuer(identifier.NewSequenceSource(0), clock, log),
		GenID:  node,
		Log:    log,
		Now:    clock,
	})
	return NewRouter(NewHandler(svc, st, log))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// create posts to a create endpoint under a fresh Idempotency-Key.
func create(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, "POST", path, body, idempotencyHeader, uuid.NewString())
}

func expect(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("expected status %d, got %d: %s", code, rr.Code, rr.Body.String())
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

// approvedAccident drives an accident through to an approved report.
func approvedAccident(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := create(t, h, "/api/v1/accidents",
		`{"occurred_at":"2024-03-14T08:00:00Z","location":"A4","narrative":"Rear-end collision.","author_id":"officer-1"}`)
	expect(t, rr, http.StatusCreated)
	id := decode[createAccidentResponse](t, rr).Identifier.String()

	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles", `{"registration":"AB12CDE","insurer_id":"ins-a","fault_percent":70}`), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles", `{"registration":"XY34ZZZ","insurer_id":"ins-b","policy_number":"P-9","fault_percent":30}`), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/report:submit", ``), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/report:approve", `{"reviewer_id":"officer-2"}`), http.StatusOK)
	return id
}

func TestHTTPScenario(t *testing.T) {
	h := newTestRouter(t)

	id := approvedAccident(t, h)
	if id != "ACC-2024-0001" {
		t.Fatalf("expected ACC-2024-0001, got %s", id)
	}

	rr := do(t, h, "GET", "/api/v1/accidents/"+id, "")
	expect(t, rr, http.StatusOK)
	rec := decode[domain.AccidentRecord](t, rr)
	if rec.Report.Status != domain.ReportApproved || rec.Report.Document == "" {
		t.Fatalf("unexpected report: %+v", rec.Report)
	}

	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles", `{"registration":"LATE1"}`), http.StatusConflict)

	rr = create(t, h, "/api/v1/claims", `{"identifier":"`+id+`","vehicle_ref":"XY34ZZZ","amount":"12500"}`)
	expect(t, rr, http.StatusCreated)
	claim := decode[domain.Claim](t, rr)
	if claim.PolicyNumber != "P-9" || claim.ClaimedAmount != 12500 {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	base := "/api/v1/claims/" + claim.ID
	expect(t, do(t, h, "POST", base+":assign", `{"adjuster_id":"adj-1"}`), http.StatusOK)
	expect(t, do(t, h, "POST", base+":request-info", `{"message_id":"m1","author_id":"adj-1","body":"Photos?"}`), http.StatusOK)
	expect(t, do(t, h, "POST", base+":reply", `{"author_id":"driver","body":"Sent."}`), http.StatusOK)
	expect(t, do(t, h, "POST", base+":decide", `{"outcome":"approved","settled_amount":12501}`), http.StatusUnprocessableEntity)
	expect(t, do(t, h, "POST", base+":decide", `{"outcome":"approved","settled_amount":10800}`), http.StatusOK)
	rr = do(t, h, "POST", base+":pay", ``)
	expect(t, rr, http.StatusOK)
	if paid := decode[domain.Claim](t, rr); paid.Status != domain.ClaimPaid || paid.SettledAmount != 10800 {
		t.Fatalf("unexpected paid claim: %+v", paid)
	}

	for _, body := range []string{
		`{"identifier":"` + id + `","claimant":"ins-a","respondent":"ins-b","amount":5000,"fault_pct":30}`,
		`{"identifier":"` + id + `","claimant":"ins-b","respondent":"ins-a","amount":2000,"fault_pct":70}`,
	} {
		rr = create(t, h, "/api/v1/subrogations", body)
		expect(t, rr, http.StatusCreated)
		sub := decode[domain.SubrogationClaim](t, rr)
		expect(t, do(t, h, "POST", "/api/v1/subrogations/"+sub.ID+":resolve", `{"outcome":"approved"}`), http.StatusOK)
	}

	rr = do(t, h, "GET", "/api/v1/ledger/ins-a/ins-b", "")
	expect(t, rr, http.StatusOK)
	if bal := decode[balanceResponse](t, rr); bal.NetBalance != 3000 || bal.InsurerA != "ins-a" {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	rr = do(t, h, "GET", "/api/v1/ledger/ins-b/ins-a", "")
	if bal := decode[balanceResponse](t, rr); bal.NetBalance != -3000 {
		t.Fatalf("unexpected reverse balance: %+v", bal)
	}

	rr = do(t, h, "GET", "/api/v1/accidents/"+id+"/claims", "")
	expect(t, rr, http.StatusOK)
	if claims := decode[[]domain.Claim](t, rr); len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claims))
	}
	rr = do(t, h, "GET", "/api/v1/accidents/"+id+"/subrogations", "")
	if subs := decode[[]domain.SubrogationClaim](t, rr); len(subs) != 2 {
		t.Fatalf("expected 2 subrogations, got %d", len(subs))
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	h := newTestRouter(t)
	rr := create(t, h, "/api/v1/accidents", `{"narrative":"x","author_id":"officer-1"}`)
	expect(t, rr, http.StatusCreated)
	draft := decode[createAccidentResponse](t, rr).Identifier.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed identifier", "GET", "/api/v1/accidents/ACC-1", "", http.StatusUnprocessableEntity},
		{"unknown accident", "GET", "/api/v1/accidents/ACC-2024-9999", "", http.StatusNotFound},
		{"unknown claim", "GET", "/api/v1/claims/42", "", http.StatusNotFound},
		{"malformed json", "POST", "/api/v1/accidents", `{"author_id":`, http.StatusBadRequest},
		{"missing author", "POST", "/api/v1/accidents", `{"narrative":"x"}`, http.StatusUnprocessableEntity},
		{"submit without vehicles", "POST", "/api/v1/accidents/" + draft + "/report:submit", "", http.StatusUnprocessableEntity},
		{"approve a draft", "POST", "/api/v1/accidents/" + draft + "/report:approve", `{"reviewer_id":"officer-2"}`, http.StatusConflict},
		{"claim on draft", "POST", "/api/v1/claims", `{"identifier":"` + draft + `","vehicle_ref":"AB1","amount":10}`, http.StatusConflict},
		{"fractional amount", "POST", "/api/v1/claims", `{"identifier":"` + draft + `","vehicle_ref":"AB1","amount":"125.50"}`, http.StatusUnprocessableEntity},
		{"exponent amount", "POST", "/api/v1/claims", `{"identifier":"` + draft + `","vehicle_ref":"AB1","amount":1e3}`, http.StatusUnprocessableEntity},
		{"fault out of range", "POST", "/api/v1/accidents/" + draft + "/vehicles", `{"registration":"AB1","fault_percent":101}`, http.StatusUnprocessableEntity},
		{"assessment on unknown vehicle", "POST", "/api/v1/accidents/" + draft + "/vehicles/NOPE/assessment", `{"assessor_id":"dvla-1","severity":"light"}`, http.StatusNotFound},
		{"blank insurer balance", "GET", "/api/v1/ledger/%20/ins-b", "", http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expect(t, do(t, h, tc.method, tc.path, tc.body, idempotencyHeader, uuid.NewString()), tc.want)
		})
	}
}

func TestHTTPDraftEditAndSelfReview(t *testing.T) {
	h := newTestRouter(t)
	rr := create(t, h, "/api/v1/accidents", `{"author_id":"officer-1"}`)
	id := decode[createAccidentResponse](t, rr).Identifier.String()

	rr = do(t, h, "PATCH", "/api/v1/accidents/"+id, `{"narrative":"Updated narrative.","location":"M25"}`)
	expect(t, rr, http.StatusOK)
	if rec := decode[domain.AccidentRecord](t, rr); rec.Narrative != "Updated narrative." || rec.Location != "M25" {
		t.Fatalf("draft edit not applied: %+v", rec)
	}

	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles", `{"registration":"AB1","fault_percent":100}`), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles/ab1/assessment", `{"assessor_id":"dvla-1","severity":"severe","estimated_repair_cost":"90000"}`), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/vehicles/AB1/assessment", `{"assessor_id":"dvla-2","severity":"light"}`), http.StatusUnprocessableEntity)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/witnesses", `{"name":"J. Doe","statement":"Saw it."}`), http.StatusOK)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/report:submit", ""), http.StatusOK)
	expect(t, do(t, h, "PATCH", "/api/v1/accidents/"+id, `{"narrative":"too late"}`), http.StatusConflict)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/report:approve", `{"reviewer_id":"officer-1"}`), http.StatusUnprocessableEntity)
	expect(t, do(t, h, "POST", "/api/v1/accidents/"+id+"/report:reject", `{"reviewer_id":"officer-2"}`), http.StatusUnprocessableEntity)

	rr = do(t, h, "POST", "/api/v1/accidents/"+id+"/report:reject", `{"reviewer_id":"officer-2","reason":"Scene photos missing"}`)
	expect(t, rr, http.StatusOK)
	if rec := decode[domain.AccidentRecord](t, rr); rec.Report.Status != domain.ReportRejected || rec.Report.Document != "" {
		t.Fatalf("unexpected rejected report: %+v", rec.Report)
	}
}

func TestHTTPIdempotencyKey(t *testing.T) {
	h := newTestRouter(t)
	body := `{"narrative":"x","author_id":"officer-1"}`

	first := do(t, h, "POST", "/api/v1/accidents", body, "Idempotency-Key", "k-1")
	expect(t, first, http.StatusCreated)
	replay := do(t, h, "POST", "/api/v1/accidents", body, "Idempotency-Key", "k-1")
	expect(t, replay, http.StatusCreated)
	if !bytes.Equal(first.Body.Bytes(), replay.Body.Bytes()) {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), replay.Body.String())
	}
	if replay.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}

	expect(t, do(t, h, "POST", "/api/v1/accidents", `{"narrative":"y","author_id":"officer-1"}`, "Idempotency-Key", "k-1"), http.StatusUnprocessableEntity)

	// A fresh key is a fresh request.
	a := decode[createAccidentResponse](t, create(t, h, "/api/v1/accidents", body))
	b := decode[createAccidentResponse](t, create(t, h, "/api/v1/accidents", body))
	if a.Identifier == b.Identifier {
		t.Fatal("expected distinct identifiers under distinct keys")
	}
}

func TestHTTPCreateRequiresIdempotencyKey(t *testing.T) {
	h := newTestRouter(t)
	id := approvedAccident(t, h)

	for _, tc := range []struct{ path, body string }{
		{"/api/v1/accidents", `{"narrative":"x","author_id":"officer-1"}`},
		{"/api/v1/claims", `{"identifier":"` + id + `","vehicle_ref":"AB12CDE","amount":100}`},
		{"/api/v1/subrogations", `{"identifier":"` + id + `","claimant":"ins-a","respondent":"ins-b","amount":100,"fault_pct":30}`},
	} {
		rr := do(t, h, "POST", tc.path, tc.body)
		expect(t, rr, http.StatusBadRequest)
		if !strings.Contains(rr.Body.String(), "Missing Idempotency-Key") {
			t.Fatalf("%s: unexpected body %s", tc.path, rr.Body.String())
		}
	}

	rr := do(t, h, "GET", "/api/v1/accidents/"+id+"/claims", "")
	if claims := decode[[]domain.Claim](t, rr); len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}
	rr = do(t, h, "GET", "/api/v1/accidents/"+id+"/subrogations", "")
	if subs := decode[[]domain.SubrogationClaim](t, rr); len(subs) != 0 {
		t.Fatalf("expected no subrogations, got %d", len(subs))
	}
}

func TestHTTPRetriedCreateAppliesOnce(t *testing.T) {
	h := newTestRouter(t)
	id := approvedAccident(t, h)

	claimBody := `{"identifier":"` + id + `","vehicle_ref":"AB12CDE","amount":12500}`
	first := do(t, h, "POST", "/api/v1/claims", claimBody, idempotencyHeader, "claim-1")
	expect(t, first, http.StatusCreated)
	retry := do(t, h, "POST", "/api/v1/claims", claimBody, idempotencyHeader, "claim-1")
	expect(t, retry, http.StatusCreated)
	if decode[domain.Claim](t, first).ID != decode[domain.Claim](t, retry).ID {
		t.Fatal("retried claim got a new id")
	}
	rr := do(t, h, "GET", "/api/v1/accidents/"+id+"/claims", "")
	if claims := decode[[]domain.Claim](t, rr); len(claims) != 1 {
		t.Fatalf("expected 1 claim after retry, got %d", len(claims))
	}

	subBody := `{"identifier":"` + id + `","claimant":"ins-a","respondent":"ins-b","amount":5000,"fault_pct":30}`
	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		rr := do(t, h, "POST", "/api/v1/subrogations", subBody, idempotencyHeader, "sub-1")
		expect(t, rr, http.StatusCreated)
		sub := decode[domain.SubrogationClaim](t, rr)
		ids[sub.ID] = true
		expect(t, do(t, h, "POST", "/api/v1/subrogations/"+sub.ID+":resolve", `{"outcome":"approved"}`), http.StatusOK)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one subrogation, got %d", len(ids))
	}

	rr = do(t, h, "GET", "/api/v1/ledger/ins-a/ins-b", "")
	expect(t, rr, http.StatusOK)
	if bal := decode[balanceResponse](t, rr); bal.NetBalance != 5000 {
		t.Fatalf("expected balance 5000, got %d", bal.NetBalance)
	}
}

func TestHTTPRequestIDAndHealth(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, "GET", "/api/v1/accidents/ACC-2024-0001", "", "X-Request-Id", "req-123")
	if got := rr.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	rr = do(t, h, "GET", "/api/v1/accidents/ACC-2024-0001", "")
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}

	expect(t, do(t, h, "GET", "/health", ""), http.StatusOK)
	rr = do(t, h, "GET", "/metrics", "")
	expect(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "crashledger_http_requests_total") {
		t.Fatal("expected HTTP metrics to be exported")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Amount
		wantErr bool
	}{
		{`12500`, 12500, false},
		{`"12500"`, 12500, false},
		{`" 42 "`, 42, false},
		{`-5`, -5, false},
		{`"125.50"`, 0, true},
		{`125.0`, 0, true},
		{`1e3`, 0, true},
		{`"abc"`, 0, true},
		{`""`, 0, true},
		{`"99999999999999999999"`, 0, true},
	}
	for _, tc := range tests {
		var a Amount
		err := a.UnmarshalJSON([]byte(tc.in))
		if tc.wantErr {
			if !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("%s: expected ErrInvalidAmount, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || domain.Amount(a) != tc.want {
			t.Errorf("%s: got %d, %v; want %d", tc.in, a, err, tc.want)
		}
	}
}
