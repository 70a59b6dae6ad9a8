// =============================================================================
// translate_mymemory.go - MyMemory（フォールバック2、認証不要）
// =============================================================================
//
//	GET https://api.mymemory.translated.net/get?q=...&langpair=en|es
//
//	→ {"responseData": {"translatedText": "..."}, "responseStatus": 200}
//
// 【注意】
//   - 1日の無料枠を超えると HTTP 200 のまま本文に
//     "MYMEMORY WARNING: YOU USED ALL AVAILABLE FREE TRANSLATIONS..." が返る。
//     これは RateLimited として扱う。
//   - responseStatus は数値のことも文字列のこともある。
//   - 500文字を超える原文は送らない（切り詰めた翻訳は保存しない）。
//
// =============================================================================
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	myMemoryEndpoint = "https://api.mymemory.translated.net/get"
	myMemoryMaxChars = 500 // 無料APIの1リクエスト上限（超える原文は翻訳しない）
)

// MyMemoryTranslator calls the public MyMemory API.
type MyMemoryTranslator struct {
	endpoint string
	client   *http.Client
}

// NewMyMemoryTranslator returns the provider. An empty endpoint uses the public API.
func NewMyMemoryTranslator(endpoint string, client *http.Client) *MyMemoryTranslator {
	if endpoint == "" {
		endpoint = myMemoryEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &MyMemoryTranslator{endpoint: endpoint, client: client}
}

func (m *MyMemoryTranslator) Name() string { return "mymemory" }

func (m *MyMemoryTranslator) Accepts(sourceHint string) bool {
	return strings.EqualFold(sourceHint, "EN")
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus json.RawMessage `json:"responseStatus"`
}

// status は responseStatus を数値として読む（読めなければ 0）
func (r myMemoryResponse) status() int {
	raw := strings.Trim(strings.TrimSpace(string(r.ResponseStatus)), `"`)
	n, _ := strconv.Atoi(raw)
	return n
}

func (m *MyMemoryTranslator) Translate(ctx context.Context, text, targetLang, sourceHint string) (string, error) {
	source := strings.ToLower(sourceHint)
	if source == "" {
		source = "en"
	}
	if utf8.RuneCountInString(text) > myMemoryMaxChars {
		debugf("mymemory: skipping text of %d chars (limit %d)", utf8.RuneCountInString(text), myMemoryMaxChars)
		return "", nil
	}

	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+strings.ToLower(targetLang))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", transientError(m.Name(), err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", transientError(m.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", failureFromStatus(m.Name(), resp.StatusCode)
	}

	var body myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transientError(m.Name(), fmt.Errorf("decode response: %w", err))
	}

	if st := body.status(); st != 0 && st != http.StatusOK {
		return "", failureFromStatus(m.Name(), st)
	}
	out := strings.TrimSpace(body.ResponseData.TranslatedText)
	if strings.HasPrefix(strings.ToUpper(out), "MYMEMORY WARNING") {
		return "", &TranslationError{Provider: m.Name(), Kind: FailureRateLimited, Status: resp.StatusCode, Err: fmt.Errorf("daily quota exhausted")}
	}
	return out, nil
}
