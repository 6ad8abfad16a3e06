package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rechartable/testutil"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return &Handler{DB: testutil.OpenTestDB(t), JWTSecret: "test-secret"}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m
}

func register(t *testing.T, h *Handler, username, password string) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"username": username, "email": username + "@test.com", "password": password,
	})
	req := httptest.NewRequest("POST", "/api/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 201 {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	return decodeJSON(t, rec)
}

func TestRegister_CreatesUserAndToken(t *testing.T) {
	h := newTestHandler(t)
	resp := register(t, h, "alice", "password123")
	if resp["token"] == "" || resp["token"] == nil {
		t.Fatal("expected a token in register response")
	}
	if resp["user_id"] == "" || resp["user_id"] == nil {
		t.Fatal("expected a user_id in register response")
	}
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{
		"username": "bob", "email": "bob@test.com", "password": "short",
	})
	req := httptest.NewRequest("POST", "/api/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["success"] != false {
		t.Errorf("error envelope should have success=false, got %v", resp["success"])
	}
}

func TestRegister_RejectsBadEmail(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{
		"username": "bob", "email": "not-an-email", "password": "password123",
	})
	req := httptest.NewRequest("POST", "/api/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "carol", "password123")

	body, _ := json.Marshal(map[string]string{
		"username": "carol", "email": "other@test.com", "password": "password123",
	})
	req := httptest.NewRequest("POST", "/api/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 409 {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}
}

func TestLogin_OKAndWrongPassword(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "dave", "password123")

	login := func(password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"username": "dave", "password": password})
		req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleLogin(rec, req)
		return rec
	}

	if rec := login("password123"); rec.Code != 200 {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := login("wrongpassword"); rec.Code != 401 {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{"username": "ghost", "password": "password123"})
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	h := newTestHandler(t)
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/api/v1/podcasts", nil)
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/podcasts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("garbage token: expected 401, got %d", rec.Code)
	}

	// Token signed with a different secret must be rejected.
	other, err := GenerateToken("u1", "user", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req = httptest.NewRequest("GET", "/api/v1/podcasts", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("wrong secret: expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_InjectsUserIDAndRole(t *testing.T) {
	h := newTestHandler(t)
	token, err := GenerateToken("user-42", "admin", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var gotID string
	var gotAdmin bool
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = ExtractUserID(r)
		gotAdmin = IsAdmin(r)
	}))

	req := httptest.NewRequest("GET", "/api/v1/podcasts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	next.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "user-42" {
		t.Errorf("user id = %q, want user-42", gotID)
	}
	if !gotAdmin {
		t.Error("expected IsAdmin to be true for admin role claim")
	}
}

func TestHandleMe(t *testing.T) {
	h := newTestHandler(t)
	resp := register(t, h, "erin", "password123")
	userID := resp["user_id"].(string)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
	rec := httptest.NewRecorder()
	h.HandleMe(rec, req)
	if rec.Code != 200 {
		t.Fatalf("me failed: %d %s", rec.Code, rec.Body.String())
	}
	me := decodeJSON(t, rec)
	if me["username"] != "erin" {
		t.Errorf("username = %v, want erin", me["username"])
	}
	if me["role"] != "user" {
		t.Errorf("role = %v, want user", me["role"])
	}
}
