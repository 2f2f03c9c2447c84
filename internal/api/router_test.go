package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soaringjerry/pia-workflow/internal/db"
	"github.com/soaringjerry/pia-workflow/internal/middleware"
	"github.com/soaringjerry/pia-workflow/internal/services"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.RunMigrations(context.Background(), conn, "", logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := db.NewSQLiteStore(conn, logger)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	issuer, err := middleware.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	auth := services.NewAuthService(store, issuer.Sign, issuer.Verify, time.Hour)
	rt := NewRouter(auth, services.NewAssessmentService(store), services.NewThreadService(store), logger)
	mux := http.NewServeMux()
	rt.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (ts *testServer) do(method, path, token string, body any, out any) int {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	if err != nil {
		ts.t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			ts.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func (ts *testServer) signup(email, role string) string {
	ts.t.Helper()
	creds := map[string]string{"email": email, "password": "correct horse", "role": role}
	if code := ts.do(http.MethodPost, "/api/auth/register", "", creds, nil); code != http.StatusCreated {
		ts.t.Fatalf("register %s: %d", email, code)
	}
	var login loginResponse
	if code := ts.do(http.MethodPost, "/api/auth/login", "", creds, &login); code != http.StatusOK {
		ts.t.Fatalf("login %s: %d", email, code)
	}
	if login.Role != role || login.TokenType != "bearer" || login.AccessToken == "" {
		ts.t.Fatalf("login response: %+v", login)
	}
	return login.AccessToken
}

type idBody struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func TestAuthEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("owner@example.com", "owner")

	var me services.Identity
	if code := ts.do(http.MethodGet, "/api/auth/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("me: %d", code)
	}
	if me.Email != "owner@example.com" || me.Role != "owner" {
		t.Fatalf("me: %+v", me)
	}

	var e errorBody
	if code := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "owner@example.com", "password": "x", "role": "owner"}, &e); code != http.StatusConflict || e.Code != "conflict" {
		t.Fatalf("duplicate register: %d %+v", code, e)
	}
	if code := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "x@example.com", "password": "x", "role": "admin"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad role: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": "wrong"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", code)
	}
	if code := ts.do(http.MethodGet, "/api/assessments", "", nil, &e); code != http.StatusUnauthorized || e.Code != "unauthorized" {
		t.Fatalf("no token: %d %+v", code, e)
	}
	if code := ts.do(http.MethodGet, "/api/assessments", "not-a-jwt", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", code)
	}
}

func TestAssessmentWorkflow(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signup("owner@example.com", "owner")
	other := ts.signup("other@example.com", "owner")
	approver := ts.signup("approver@example.com", "approver")

	var approvers []struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	if code := ts.do(http.MethodGet, "/api/approvers", owner, nil, &approvers); code != http.StatusOK || len(approvers) != 1 {
		t.Fatalf("approvers: %d %+v", code, approvers)
	}

	var created idBody
	body := map[string]any{"title": "Customer portal", "is_new": true, "approver_user_id": approvers[0].ID}
	if code := ts.do(http.MethodPost, "/api/assessments", owner, body, &created); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if created.Status != "screening" {
		t.Fatalf("new assessment status: %s", created.Status)
	}
	if code := ts.do(http.MethodPost, "/api/assessments", approver, body, nil); code != http.StatusForbidden {
		t.Fatalf("approver create: %d", code)
	}
	base := fmt.Sprintf("/api/assessments/%d", created.ID)

	var list []struct {
		ID            int64  `json:"id"`
		OwnerEmail    string `json:"owner_email"`
		ApproverEmail string `json:"approver_email"`
	}
	if code := ts.do(http.MethodGet, "/api/assessments", approver, nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("approver list: %d %+v", code, list)
	}
	if list[0].OwnerEmail != "owner@example.com" || list[0].ApproverEmail != "approver@example.com" {
		t.Fatalf("list emails: %+v", list[0])
	}
	list = nil
	if code := ts.do(http.MethodGet, "/api/assessments", other, nil, &list); code != http.StatusOK || len(list) != 0 {
		t.Fatalf("other owner list: %d %+v", code, list)
	}

	answers := map[string]any{"answers": []map[string]any{
		{"question": services.GatingQuestion, "answer": true},
		{"question": "Is sensitive data processed?", "answer": false, "notes": "none"},
	}}
	if code := ts.do(http.MethodPost, base+"/screening", other, answers, nil); code != http.StatusForbidden {
		t.Fatalf("foreign submit: %d", code)
	}
	var submitted struct {
		NextStatus string `json:"next_status"`
	}
	if code := ts.do(http.MethodPost, base+"/screening", owner, answers, &submitted); code != http.StatusOK || submitted.NextStatus != "in_dpia" {
		t.Fatalf("submit: %d %+v", code, submitted)
	}

	var stored []struct {
		Question string `json:"question"`
		Answer   bool   `json:"answer"`
	}
	if code := ts.do(http.MethodGet, base+"/screening", approver, nil, &stored); code != http.StatusOK || len(stored) != 2 {
		t.Fatalf("answers: %d %+v", code, stored)
	}
	if code := ts.do(http.MethodGet, base+"/screening", other, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign answers: %d", code)
	}

	var e errorBody
	if code := ts.do(http.MethodPost, base+"/status", owner, map[string]string{"status": "completed"}, nil); code != http.StatusForbidden {
		t.Fatalf("owner status: %d", code)
	}
	if code := ts.do(http.MethodPost, base+"/status", approver, map[string]string{"status": "approved"}, &e); code != http.StatusBadRequest || e.Code != "invalid" {
		t.Fatalf("bad status: %d %+v", code, e)
	}
	var updated idBody
	if code := ts.do(http.MethodPost, base+"/status", approver, map[string]string{"status": "red_flag"}, &updated); code != http.StatusOK || updated.Status != "red_flag" {
		t.Fatalf("red flag: %d %+v", code, updated)
	}
	if code := ts.do(http.MethodPost, base+"/screening", owner, answers, nil); code != http.StatusConflict {
		t.Fatalf("rescreen after red flag: %d", code)
	}

	var trail []struct {
		Action string `json:"action"`
	}
	if code := ts.do(http.MethodGet, base+"/audit", owner, nil, nil); code != http.StatusForbidden {
		t.Fatalf("owner audit: %d", code)
	}
	if code := ts.do(http.MethodGet, base+"/audit", approver, nil, &trail); code != http.StatusOK || len(trail) != 3 {
		t.Fatalf("audit: %d %+v", code, trail)
	}

	if code := ts.do(http.MethodDelete, base, other, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign delete: %d", code)
	}
	if code := ts.do(http.MethodDelete, base, owner, nil, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code := ts.do(http.MethodGet, base, owner, nil, &e); code != http.StatusNotFound || e.Code != "not_found" {
		t.Fatalf("get deleted: %d %+v", code, e)
	}
	if code := ts.do(http.MethodGet, "/api/assessments/abc", owner, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: %d", code)
	}
}

func TestGatingQuestionCompletesImmediately(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signup("owner@example.com", "owner")
	var created idBody
	ts.do(http.MethodPost, "/api/assessments", owner, map[string]any{"title": "Static site"}, &created)

	answers := map[string]any{"answers": []map[string]any{
		{"question": services.GatingQuestion, "answer": false},
		{"question": "Is data shared?", "answer": true},
	}}
	var submitted struct {
		NextStatus string `json:"next_status"`
	}
	path := fmt.Sprintf("/api/assessments/%d/screening", created.ID)
	if code := ts.do(http.MethodPost, path, owner, answers, &submitted); code != http.StatusOK || submitted.NextStatus != "completed" {
		t.Fatalf("submit: %d %+v", code, submitted)
	}
}

func TestScreeningSubmissionGuards(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signup("owner@example.com", "owner")
	approver := ts.signup("approver@example.com", "approver")
	var created idBody
	ts.do(http.MethodPost, "/api/assessments", owner, map[string]any{"title": "Payroll"}, &created)
	base := fmt.Sprintf("/api/assessments/%d", created.ID)

	for _, body := range []any{map[string]any{}, map[string]any{"answers": []any{}}} {
		var e errorBody
		if code := ts.do(http.MethodPost, base+"/screening", owner, body, &e); code != http.StatusBadRequest || e.Code != "invalid" {
			t.Fatalf("empty submission %v: %d %+v", body, code, e)
		}
	}
	var got idBody
	if code := ts.do(http.MethodGet, base, owner, nil, &got); code != http.StatusOK || got.Status != "screening" {
		t.Fatalf("status after empty submissions: %d %+v", code, got)
	}

	answers := map[string]any{"answers": []map[string]any{{"question": "Is data shared?", "answer": true}}}
	if code := ts.do(http.MethodPost, base+"/screening", owner, answers, nil); code != http.StatusOK {
		t.Fatalf("submit: %d", code)
	}
	if code := ts.do(http.MethodPost, base+"/status", approver, map[string]string{"status": "completed"}, nil); code != http.StatusOK {
		t.Fatalf("complete: %d", code)
	}
	if code := ts.do(http.MethodPost, base+"/screening", owner, answers, nil); code != http.StatusConflict {
		t.Fatalf("reopen completed: %d", code)
	}
	if code := ts.do(http.MethodGet, base, owner, nil, &got); code != http.StatusOK || got.Status != "completed" {
		t.Fatalf("status after reopen attempt: %d %+v", code, got)
	}
}

func TestThreadEndpoints(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signup("owner@example.com", "owner")
	other := ts.signup("other@example.com", "owner")
	approver := ts.signup("approver@example.com", "approver")

	var created idBody
	ts.do(http.MethodPost, "/api/assessments", owner, map[string]any{"title": "Analytics"}, &created)

	open := map[string]any{"assessment_id": created.ID, "question_text": "Where is the data hosted?"}
	if code := ts.do(http.MethodPost, "/api/threads", owner, open, nil); code != http.StatusForbidden {
		t.Fatalf("owner open: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/threads", approver, map[string]any{"assessment_id": 999, "question_text": "?"}, nil); code != http.StatusNotFound {
		t.Fatalf("open on missing assessment: %d", code)
	}
	var thread idBody
	if code := ts.do(http.MethodPost, "/api/threads", approver, open, &thread); code != http.StatusCreated || thread.Status != "open" {
		t.Fatalf("open: %d %+v", code, thread)
	}
	comments := fmt.Sprintf("/api/threads/%d/comments", thread.ID)

	if code := ts.do(http.MethodPost, comments, owner, map[string]string{"body": "EU region"}, nil); code != http.StatusCreated {
		t.Fatalf("owner comment: %d", code)
	}
	if code := ts.do(http.MethodPost, comments, other, map[string]string{"body": "hi"}, nil); code != http.StatusForbidden {
		t.Fatalf("unrelated owner comment: %d", code)
	}
	if code := ts.do(http.MethodPost, comments, approver, map[string]string{"body": "  "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank comment: %d", code)
	}
	var listed []struct {
		Body        string `json:"body"`
		AuthorEmail string `json:"author_email"`
	}
	if code := ts.do(http.MethodGet, comments, approver, nil, &listed); code != http.StatusOK || len(listed) != 1 || listed[0].AuthorEmail != "owner@example.com" {
		t.Fatalf("comments: %d %+v", code, listed)
	}

	var threads []struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		OpenerEmail string `json:"opener_email"`
	}
	listPath := fmt.Sprintf("/api/threads?assessment_id=%d", created.ID)
	if code := ts.do(http.MethodGet, listPath, owner, nil, &threads); code != http.StatusOK || len(threads) != 1 || threads[0].OpenerEmail != "approver@example.com" {
		t.Fatalf("threads: %d %+v", code, threads)
	}
	if code := ts.do(http.MethodGet, "/api/threads", owner, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("missing assessment_id: %d", code)
	}

	resolve := fmt.Sprintf("/api/threads/%d/resolve", thread.ID)
	if code := ts.do(http.MethodPost, resolve, owner, nil, nil); code != http.StatusForbidden {
		t.Fatalf("owner resolve: %d", code)
	}
	for i := 0; i < 2; i++ {
		var resolved idBody
		if code := ts.do(http.MethodPost, resolve, approver, nil, &resolved); code != http.StatusOK || resolved.Status != "resolved" {
			t.Fatalf("resolve #%d: %d %+v", i, code, resolved)
		}
	}
	if code := ts.do(http.MethodPost, "/api/threads/999/resolve", approver, nil, nil); code != http.StatusNotFound {
		t.Fatalf("resolve missing: %d", code)
	}

	ts.do(http.MethodDelete, fmt.Sprintf("/api/assessments/%d", created.ID), approver, nil, nil)
	threads = nil
	if code := ts.do(http.MethodGet, listPath, owner, nil, &threads); code != http.StatusOK || len(threads) != 0 {
		t.Fatalf("threads after delete: %d %+v", code, threads)
	}
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/auth/register", bytes.NewBufferString("{"))
	res, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var e errorBody
	_ = json.NewDecoder(res.Body).Decode(&e)
	if res.StatusCode != http.StatusBadRequest || e.Code != "invalid" {
		t.Fatalf("malformed body: %d %+v", res.StatusCode, e)
	}
}
