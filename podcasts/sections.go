package podcasts

import (
	"encoding/json"
	"net/http"

	"rechartable/httputil"

	"github.com/go-chi/chi/v5"
)

// sectionColumns maps the analytics sub-resource names to their backing
// JSON columns on the podcasts table.
var sectionColumns = map[string]string{
	"analytics":    "stats",
	"rankings":     "rankings",
	"audience":     "audience",
	"monetization": "monetization",
	"episodes":     "episodes",
}

// GetSection serves GET /api/v1/podcasts/{id}/<name> for one nested section
// of the record.
func (h *Handler) GetSection(name string) http.HandlerFunc {
	col := sectionColumns[name]
	return func(w http.ResponseWriter, r *http.Request) {
		o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
		if status != 0 {
			httputil.WriteError(w, status, msg)
			return
		}

		var raw string
		if err := h.DB.QueryRowContext(r.Context(),
			`SELECT `+col+` FROM podcasts WHERE id = ?`, o.ID).Scan(&raw); err != nil {
			httputil.WriteError(w, 500, "db error")
			return
		}
		httputil.WriteJSON(w, 200, map[string]interface{}{
			"podcast_id": o.ID,
			name:         parseJSONColumn(raw),
		})
	}
}

// PutSection replaces one nested section wholesale. The episodes section
// additionally recomputes the total_downloads aggregate.
func (h *Handler) PutSection(name string) http.HandlerFunc {
	col := sectionColumns[name]
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.MaxBody(r, httputil.DefaultBodyLimit)
		o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
		if status != 0 {
			httputil.WriteError(w, status, msg)
			return
		}

		if name == "episodes" {
			h.putEpisodes(w, r, o.ID)
			return
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, 400, "body must be a JSON object")
			return
		}
		raw, err := json.Marshal(body)
		if err != nil {
			httputil.WriteError(w, 400, "invalid JSON body")
			return
		}

		if _, err := h.DB.ExecContext(r.Context(),
			`UPDATE podcasts SET `+col+` = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
			string(raw), o.ID); err != nil {
			httputil.WriteError(w, 500, "failed to update "+name)
			return
		}
		httputil.WriteJSON(w, 200, map[string]interface{}{
			"podcast_id": o.ID,
			name:         body,
		})
	}
}

// putEpisodes stores the episode list and recomputes the derived
// total_downloads sum in the same request.
func (h *Handler) putEpisodes(w http.ResponseWriter, r *http.Request, podcastID string) {
	var episodes []map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&episodes); err != nil {
		httputil.WriteError(w, 400, "body must be a JSON array of episodes")
		return
	}

	var total int64
	for _, ep := range episodes {
		if d, ok := ep["downloads"].(float64); ok && d > 0 {
			total += int64(d)
		}
	}

	raw, err := json.Marshal(episodes)
	if err != nil {
		httputil.WriteError(w, 400, "invalid JSON body")
		return
	}
	if episodes == nil {
		raw = []byte("[]")
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE podcasts SET episodes = ?, total_downloads = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		string(raw), total, podcastID); err != nil {
		httputil.WriteError(w, 500, "failed to update episodes")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"podcast_id":      podcastID,
		"episodes":        episodes,
		"total_downloads": total,
	})
}
