package insights

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"rechartable/auth"
	"rechartable/db"
	"rechartable/httputil"
	"rechartable/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var validKinds = map[string]bool{
	"summary":  true,
	"growth":   true,
	"audience": true,
	"custom":   true,
}

// Handler holds dependencies for AI insight endpoints.
type Handler struct {
	DB *db.CompatDB
}

// podcastForPrompt is the slice of a podcast record needed to build prompts
// and check ownership.
type podcastForPrompt struct {
	ID           string
	UserID       string
	Title        string
	Platform     string
	ChannelTitle string
	Stats        string
	Audience     string
}

func (h *Handler) loadPodcast(r *http.Request, podcastID string) (*podcastForPrompt, int, string) {
	if _, err := uuid.Parse(podcastID); err != nil {
		return nil, 400, "invalid podcast id"
	}
	var p podcastForPrompt
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT id, user_id, title, platform, channel_title, stats, audience
		FROM podcasts WHERE id = ?
	`, podcastID).Scan(&p.ID, &p.UserID, &p.Title, &p.Platform, &p.ChannelTitle, &p.Stats, &p.Audience)
	if err == sql.ErrNoRows {
		return nil, 404, "podcast not found"
	}
	if err != nil {
		return nil, 500, "db error"
	}
	userID := r.Context().Value(auth.UserIDKey).(string)
	if p.UserID != userID && !auth.IsAdmin(r) {
		// Hide other users' records rather than confirming they exist.
		return nil, 404, "podcast not found"
	}
	return &p, 0, ""
}

func buildPrompt(p *podcastForPrompt, kind, custom string) string {
	switch kind {
	case "growth":
		return fmt.Sprintf(
			"You are a podcast analytics assistant. Given the show %q by %s on %s with stats %s, suggest three concrete growth opportunities. Be specific and concise.",
			p.Title, p.ChannelTitle, p.Platform, p.Stats)
	case "audience":
		return fmt.Sprintf(
			"You are a podcast analytics assistant. Describe the audience of the show %q on %s based on this demographic data: %s. Two short paragraphs.",
			p.Title, p.Platform, p.Audience)
	case "custom":
		return fmt.Sprintf("Context: podcast %q by %s on %s, stats %s.\n\n%s",
			p.Title, p.ChannelTitle, p.Platform, p.Stats, custom)
	default: // summary
		return fmt.Sprintf(
			"Summarize the performance of the podcast %q by %s on %s in three sentences. Stats: %s.",
			p.Title, p.ChannelTitle, p.Platform, p.Stats)
	}
}

// GenerateRequest is the JSON body for POST /api/v1/podcasts/{id}/insights.
type GenerateRequest struct {
	Kind   string `json:"kind"`
	Prompt string `json:"prompt"`
}

// HandleGenerate produces a new AI insight for a podcast and stores it.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	podcastID := chi.URLParam(r, "id")

	p, status, msg := h.loadPodcast(r, podcastID)
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if req.Kind == "" {
		req.Kind = "summary"
	}
	if !validKinds[req.Kind] {
		httputil.WriteError(w, 400, "kind must be one of summary, growth, audience, custom")
		return
	}
	if req.Kind == "custom" && req.Prompt == "" {
		httputil.WriteError(w, 400, "custom insights require a prompt")
		return
	}

	prompt := buildPrompt(p, req.Kind, req.Prompt)
	text, provider, model, err := GenerateText(prompt)
	telemetry.CountInsight(err)
	if err != nil || text == "" {
		httputil.WriteError(w, 502, "AI provider unavailable")
		return
	}

	insightID := uuid.New().String()
	if _, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO insights (id, podcast_id, kind, prompt, content, provider, model)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, insightID, p.ID, req.Kind, prompt, text, provider, model); err != nil {
		httputil.WriteError(w, 500, "failed to store insight")
		return
	}

	httputil.WriteJSON(w, 201, map[string]interface{}{
		"success":    true,
		"id":         insightID,
		"podcast_id": p.ID,
		"kind":       req.Kind,
		"content":    text,
		"provider":   provider,
		"model":      model,
	})
}

// HandleList returns all insights of a podcast, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	p, status, msg := h.loadPodcast(r, podcastID)
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT id, kind, content, provider, model, created_at
		FROM insights WHERE podcast_id = ?
		ORDER BY created_at DESC
		LIMIT 100
	`, p.ID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to list insights")
		return
	}
	defer rows.Close()

	items := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, kind, content, provider, model, createdAt string
		if err := rows.Scan(&id, &kind, &content, &provider, &model, &createdAt); err != nil {
			continue
		}
		items = append(items, map[string]interface{}{
			"id": id, "kind": kind, "content": content,
			"provider": provider, "model": model, "created_at": createdAt,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"insights": items})
}

// loadInsight resolves an insight by ID, joining its podcast for the
// ownership check.
func (h *Handler) loadInsight(r *http.Request, insightID string) (map[string]interface{}, int, string) {
	if _, err := uuid.Parse(insightID); err != nil {
		return nil, 400, "invalid insight id"
	}
	var id, podcastID, ownerID, kind, prompt, content, provider, model, createdAt string
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT i.id, i.podcast_id, p.user_id, i.kind, i.prompt, i.content, i.provider, i.model, i.created_at
		FROM insights i
		JOIN podcasts p ON i.podcast_id = p.id
		WHERE i.id = ?
	`, insightID).Scan(&id, &podcastID, &ownerID, &kind, &prompt, &content, &provider, &model, &createdAt)
	if err == sql.ErrNoRows {
		return nil, 404, "insight not found"
	}
	if err != nil {
		return nil, 500, "db error"
	}
	userID := r.Context().Value(auth.UserIDKey).(string)
	if ownerID != userID && !auth.IsAdmin(r) {
		return nil, 404, "insight not found"
	}
	return map[string]interface{}{
		"id": id, "podcast_id": podcastID, "kind": kind, "prompt": prompt,
		"content": content, "provider": provider, "model": model, "created_at": createdAt,
	}, 0, ""
}

// HandleGet returns a single insight.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	insight, status, msg := h.loadInsight(r, chi.URLParam(r, "insightID"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}
	httputil.WriteJSON(w, 200, insight)
}

// HandleDelete removes a single insight.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	insightID := chi.URLParam(r, "insightID")
	insight, status, msg := h.loadInsight(r, insightID)
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(), `DELETE FROM insights WHERE id = ?`, insight["id"]); err != nil {
		httputil.WriteError(w, 500, "failed to delete insight")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "message": "insight deleted"})
}
