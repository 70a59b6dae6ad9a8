// =============================================================================
// translate_libre.go - LibreTranslate（フォールバック1）
// =============================================================================
//
//	POST {LIBRETRANSLATE_URL}/translate
//	{"q": "...", "source": "en", "target": "es", "format": "text", "api_key": "..."}
//
//	→ {"translatedText": "..."}
//
// 英語ソースのみ対象（自動判定は誤訳が多いため使わない）。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// LibreTranslator calls a self-hosted or public LibreTranslate instance.
type LibreTranslator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewLibreTranslator(baseURL, apiKey string, client *http.Client) (*LibreTranslator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("LIBRETRANSLATE_URL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &LibreTranslator{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

func (l *LibreTranslator) Name() string { return "libretranslate" }

func (l *LibreTranslator) Accepts(sourceHint string) bool {
	return strings.EqualFold(sourceHint, "EN")
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (l *LibreTranslator) Translate(ctx context.Context, text, targetLang, sourceHint string) (string, error) {
	source := strings.ToLower(sourceHint)
	if source == "" {
		source = "en"
	}
	payload, err := json.Marshal(libreRequest{
		Q:      text,
		Source: source,
		Target: strings.ToLower(targetLang),
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", transientError(l.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", transientError(l.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", transientError(l.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", failureFromStatus(l.Name(), resp.StatusCode)
	}

	var body libreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transientError(l.Name(), fmt.Errorf("decode response: %w", err))
	}
	if body.Error != "" {
		return "", transientError(l.Name(), fmt.Errorf("%s", body.Error))
	}
	return strings.TrimSpace(body.TranslatedText), nil
}
