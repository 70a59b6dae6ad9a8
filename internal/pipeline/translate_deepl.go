// =============================================================================
// translate_deepl.go - DeepL API（プライマリ翻訳プロバイダ）
// =============================================================================
//
// 【API】
//
//	POST {endpoint}/v2/translate
//	Authorization: DeepL-Auth-Key <key>
//	Content-Type: application/x-www-form-urlencoded
//
//	text=...&target_lang=ES&source_lang=EN
//
//	→ {"translations":[{"detected_source_language":"EN","text":"..."}]}
//
// 【エンドポイントの自動判定】
//   無料キー（末尾 ":fx"、または "fk-" / "fk_" で始まる）→ https://api-free.deepl.com
//   それ以外                                           → https://api.deepl.com
//   DEEPL_ENDPOINT を指定した場合はそちらを優先する。
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
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	deeplFreeEndpoint = "https://api-free.deepl.com"
	deeplProEndpoint  = "https://api.deepl.com"
	deeplMaxChars     = 4000 // 1リクエストで送る最大文字数（超える原文は翻訳しない）
)

var reDeepLFreeKey = regexp.MustCompile(`(?i)(:fx$|^fk[-_])`)

// DeepLEndpointForKey picks the free or pro host from the key format.
func DeepLEndpointForKey(key string) string {
	if reDeepLFreeKey.MatchString(strings.TrimSpace(key)) {
		return deeplFreeEndpoint
	}
	return deeplProEndpoint
}

// DeepLTranslator translates through the DeepL v2 API.
type DeepLTranslator struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewDeepLTranslator returns a DeepL provider. An empty endpoint is derived from
// the key.
func NewDeepLTranslator(apiKey, endpoint string, client *http.Client) (*DeepLTranslator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPL_API_KEY is required")
	}
	if endpoint == "" {
		endpoint = DeepLEndpointForKey(apiKey)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DeepLTranslator{
		apiKey:   apiKey,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}, nil
}

func (d *DeepLTranslator) Name() string { return "deepl" }

// Accepts is true for any hint: DeepL detects the source language itself.
func (d *DeepLTranslator) Accepts(string) bool { return true }

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (d *DeepLTranslator) Translate(ctx context.Context, text, targetLang, sourceHint string) (string, error) {
	// 切り詰めた翻訳を全文の翻訳として保存しないよう、長すぎる原文は翻訳しない
	if utf8.RuneCountInString(text) > deeplMaxChars {
		debugf("deepl: skipping text of %d chars (limit %d)", utf8.RuneCountInString(text), deeplMaxChars)
		return "", nil
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", strings.ToUpper(targetLang))
	if sourceHint != "" {
		form.Set("source_lang", strings.ToUpper(sourceHint))
	}
	form.Set("preserve_formatting", "1")
	form.Set("split_sentences", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", transientError(d.Name(), err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", transientError(d.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", failureFromStatus(d.Name(), resp.StatusCode)
	}

	var body deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transientError(d.Name(), fmt.Errorf("decode response: %w", err))
	}
	if len(body.Translations) == 0 {
		return "", nil
	}
	return strings.TrimSpace(body.Translations[0].Text), nil
}
