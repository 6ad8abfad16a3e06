// Package insights generates and stores AI text insights for podcast records.
package insights

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GenerateText sends the prompt to the configured text-generation provider
// and returns the generated text along with the provider and model used.
// Provider selection and credentials come from AI_PROVIDER / AI_MODEL /
// AI_BASE_URL / AI_API_KEY.
func GenerateText(prompt string) (string, string, string, error) {
	provider := strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "huggingface")))
	model := strings.TrimSpace(getEnv("AI_MODEL", ""))
	if model == "" {
		if provider == "gemini" {
			model = "gemini-1.5-flash"
		} else {
			model = "facebook/bart-large-cnn"
		}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(getEnv("AI_BASE_URL", "")), "/")
	if baseURL == "" {
		if provider == "gemini" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		} else {
			baseURL = "https://api-inference.huggingface.co"
		}
	}

	apiKey := strings.TrimSpace(getEnv("AI_API_KEY", getEnv("HUGGINGFACE_API_KEY", getEnv("GEMINI_API_KEY", ""))))
	client := &http.Client{Timeout: 60 * time.Second}

	switch provider {
	case "huggingface", "":
		reqBody, _ := json.Marshal(map[string]interface{}{
			"inputs": prompt,
			"parameters": map[string]interface{}{
				"max_new_tokens": 256,
			},
		})
		req, err := http.NewRequest("POST", baseURL+"/models/"+model, strings.NewReader(string(reqBody)))
		if err != nil {
			return "", provider, model, err
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", provider, model, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return "", provider, model, fmt.Errorf("huggingface request failed: status=%d", resp.StatusCode)
		}

		body, _ := io.ReadAll(resp.Body)
		// The inference API returns an array; summarization models use
		// summary_text, generation models use generated_text.
		var results []struct {
			SummaryText   string `json:"summary_text"`
			GeneratedText string `json:"generated_text"`
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return "", provider, model, err
		}
		if len(results) == 0 {
			return "", provider, model, fmt.Errorf("huggingface: empty result")
		}
		text := results[0].SummaryText
		if text == "" {
			text = results[0].GeneratedText
		}
		return strings.TrimSpace(text), provider, model, nil

	case "gemini":
		if apiKey == "" {
			return "", provider, model, fmt.Errorf("missing API key")
		}
		reqBody, _ := json.Marshal(map[string]interface{}{
			"contents": []map[string]interface{}{
				{"parts": []map[string]string{{"text": prompt}}},
			},
		})
		url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, model, apiKey)
		resp, err := client.Post(url, "application/json", strings.NewReader(string(reqBody)))
		if err != nil {
			return "", provider, model, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return "", provider, model, fmt.Errorf("gemini request failed: status=%d", resp.StatusCode)
		}

		body, _ := io.ReadAll(resp.Body)
		var result struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return "", provider, model, err
		}
		if len(result.Candidates) == 0 {
			return "", provider, model, fmt.Errorf("gemini: no candidates")
		}
		var parts []string
		for _, p := range result.Candidates[0].Content.Parts {
			if p.Text != "" {
				parts = append(parts, strings.TrimSpace(p.Text))
			}
		}
		return strings.Join(parts, " "), provider, model, nil

	default:
		return "", provider, model, fmt.Errorf("unknown AI provider %q", provider)
	}
}
