package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rechartable/db"
	"rechartable/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

type contextKey string

// UserIDKey is the context key used to store the authenticated user ID.
const UserIDKey contextKey = "user_id"

// RoleKey is the context key used to store the authenticated user's role.
const RoleKey contextKey = "role"

// ExtractUserID returns the user ID from the request context, if present.
func ExtractUserID(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// IsAdmin reports whether the request was made by an admin user.
func IsAdmin(r *http.Request) bool {
	role, _ := r.Context().Value(RoleKey).(string)
	return role == "admin"
}

// Handler holds dependencies for authentication endpoints.
type Handler struct {
	DB        *db.CompatDB
	JWTSecret string
	TokenTTL  time.Duration
}

func (h *Handler) tokenTTL() time.Duration {
	if h.TokenTTL > 0 {
		return h.TokenTTL
	}
	return 7 * 24 * time.Hour
}

// RegisterRequest is the JSON body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new user account.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 8 {
		httputil.WriteError(w, 400, "username must be 3+ chars, password 8+ chars")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 400, "password must not exceed 72 characters")
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) < 5 {
		httputil.WriteError(w, 400, "a valid email address is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, 500, "internal error")
		return
	}

	userID := uuid.New().String()
	_, err = h.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, username, email, password_hash, display_name) VALUES (?, ?, ?, ?, ?)`,
		userID, req.Username, req.Email, string(hash), req.Username)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate key") {
			httputil.WriteError(w, 409, "username or email already taken")
			return
		}
		httputil.WriteError(w, 500, "failed to create user")
		return
	}

	token, err := GenerateToken(userID, "user", h.JWTSecret, h.tokenTTL())
	if err != nil {
		httputil.WriteError(w, 500, "failed to generate token")
		return
	}
	httputil.WriteJSON(w, 201, map[string]interface{}{"success": true, "token": token, "user_id": userID})
}

// LoginRequest is the JSON body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates an existing user.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}

	var userID, hash, role string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, password_hash, role FROM users WHERE username = ? OR email = ?`,
		req.Username, req.Username,
	).Scan(&userID, &hash, &role)
	if err != nil {
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}

	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		httputil.WriteError(w, 401, "invalid credentials")
		return
	}

	token, err := GenerateToken(userID, role, h.JWTSecret, h.tokenTTL())
	if err != nil {
		httputil.WriteError(w, 500, "failed to generate token")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "token": token, "user_id": userID})
}

// HandleMe returns the authenticated user's profile.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)

	var username, email, displayName, role, createdAt string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT username, email, display_name, role, created_at FROM users WHERE id = ?`,
		userID,
	).Scan(&username, &email, &displayName, &role, &createdAt)
	if err != nil {
		httputil.WriteError(w, 404, "user not found")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"id": userID, "username": username, "email": email,
		"display_name": displayName, "role": role, "created_at": createdAt,
	})
}

// HandleLogout acknowledges logout. Tokens are stateless JWTs; the client
// discards its copy and the token expires on its own.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "message": "logged out"})
}

// GenerateToken creates a signed JWT carrying the user ID and role.
func GenerateToken(userID, role, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parseToken validates the Bearer JWT and returns the subject and role claims.
func parseToken(r *http.Request, secret string) (userID, role string) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ""
	}

	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ""
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", ""
	}
	role, _ = claims["role"].(string)
	return sub, role
}

// Middleware requires a valid JWT and puts the user ID and role into the context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role := parseToken(r, h.JWTSecret)
		if userID == "" {
			httputil.WriteError(w, 401, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
