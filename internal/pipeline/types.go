// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルはパイプライン全体で使用するデータ構造（型）を定義します。
//
// 【このファイルで定義している型】
//   - Record:  サイトに公開される記事1件（articles.json の1要素）
//   - WPPost:  WordPress REST API のレスポンス
//
// 【JSONスキーマ（静的サイトとの契約）】
//
//	{
//	  "url":        "https://a.example/p",      // 正規化済みURL = 識別キー
//	  "title":      "Study finds X",
//	  "title_es":   "Estudio halla X",          // 翻訳（無ければ省略）
//	  "summary":    "...",
//	  "summary_es": "...",
//	  "source":     "Nature",
//	  "published":  "2024-01-01T00:00:00Z",     // RFC3339 UTC、不明なら ""
//	  "date":       "2024-01-01"                // published から導出
//	}
//
// 【読み込みは寛容に】
//   過去のスクリプトが出力した別名（link, pubDate, isoDate, description など）も
//   受け付ける。content_es は決して公開しないため読み込み時に捨てる。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Record - 公開データセットの1件
// -----------------------------------------------------------------------------
//
// 【フィールドの説明】
//   URL:               記事URL。Reconcile 後は NormalizeIdentity 済みの識別キー
//   Title:             原語のタイトル（必須）
//   TitleTranslated:   ターゲット言語への翻訳。Title と同一の値は保存しない
//   Summary:           要約・抜粋
//   SummaryTranslated: 要約の翻訳
//   Source:            ソース名（例: "Nature"）
//   PublishedAt:       公開日時（RFC3339）。空 = 不明。解釈できない値は元のまま。現在時刻で補完しない
//   Extra:             未知のフィールド（そのまま引き継ぐ）
type Record struct {
	URL               string
	Title             string
	TitleTranslated   string
	Summary           string
	SummaryTranslated string
	Source            string
	PublishedAt       string
	Extra             map[string]json.RawMessage
}

// Date returns the YYYY-MM-DD part of PublishedAt, or "" when it is unknown or
// not an RFC3339 timestamp.
func (r Record) Date() string {
	t, err := time.Parse(time.RFC3339, r.PublishedAt)
	if err != nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// dateFieldAliases は日付らしいフィールドの優先順位
var dateFieldAliases = []string{
	"published", "pubDate", "datePublished", "publishedAt", "date", "updated", "isoDate",
}

// droppedFields は決して公開しないフィールド
var droppedFields = map[string]bool{
	"content_es": true,
}

// knownFields は Record の固定フィールドとして解釈されるキー（Extra に入れない）
var knownFields = map[string]bool{
	"url": true, "link": true,
	"title": true,
	"title_es": true, "titleTranslated": true,
	"summary": true, "description": true, "contentSnippet": true,
	"summary_es": true, "summaryTranslated": true,
	"source": true,
	"published": true, "pubDate": true, "datePublished": true, "publishedAt": true,
	"date": true, "updated": true, "isoDate": true,
}

// UnmarshalJSON decodes a record permissively.
//
// Fields holding something other than a string are treated as absent, and a
// value that is not an object at all (42, "oops", null) decodes to a blank
// record. Either way Reconcile drops and counts it instead of the whole document
// failing.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		*r = Record{}
		return nil
	}

	*r = Record{
		URL:               firstStringField(raw, "url", "link"),
		Title:             firstStringField(raw, "title"),
		TitleTranslated:   firstStringField(raw, "title_es", "titleTranslated"),
		Summary:           firstStringField(raw, "summary", "description", "contentSnippet"),
		SummaryTranslated: firstStringField(raw, "summary_es", "summaryTranslated"),
		Source:            firstStringField(raw, "source"),
	}

	// 最初に解釈できた日付を採用する（published → pubDate → ... → isoDate）。
	// どれも解釈できなければ最初の非空の値をそのまま残す
	for _, key := range dateFieldAliases {
		if ts := normalizeTimestamp(stringField(raw, key)); ts != "" {
			r.PublishedAt = ts
			break
		}
	}
	if r.PublishedAt == "" {
		r.PublishedAt = strings.TrimSpace(firstStringField(raw, dateFieldAliases...))
	}

	for k, v := range raw {
		if knownFields[k] || droppedFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = map[string]json.RawMessage{}
		}
		r.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// MarshalJSON writes the site schema with a stable key order: fixed fields
// first, then extra fields sorted by key.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		k, _ := json.Marshal(key)
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	fields := []struct {
		key       string
		value     string
		omitEmpty bool
	}{
		{"url", r.URL, false},
		{"title", r.Title, false},
		{"title_es", r.TitleTranslated, true},
		{"summary", r.Summary, true},
		{"summary_es", r.SummaryTranslated, true},
		{"source", r.Source, false},
		{"published", r.PublishedAt, false},
		{"date", r.Date(), false},
	}
	for _, f := range fields {
		if f.omitEmpty && f.value == "" {
			continue
		}
		if err := write(f.key, f.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if knownFields[k] || droppedFields[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, r.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// stringField はJSONの値が文字列の場合のみ取り出す（数値やnullは空扱い）
func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// firstStringField は keys の順に最初の非空文字列を返す
func firstStringField(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := stringField(raw, k); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// -----------------------------------------------------------------------------
// WPPost - WordPress REST API レスポンス用構造体
// -----------------------------------------------------------------------------
//
// /wp-json/wp/v2/posts から取得した記事データ。kind: wordpress のソースで使用。
type WPPost struct {
	Title   struct{ Rendered string `json:"rendered"` } `json:"title"`    // HTMLエンコード済み
	Link    string                                      `json:"link"`     // 記事URL
	Date    string                                      `json:"date"`     // 公開日時（サイトのタイムゾーン）
	DateGMT string                                      `json:"date_gmt"` // 公開日時（GMT、Z無し）
	Excerpt struct{ Rendered string `json:"rendered"` } `json:"excerpt"`  // 抜粋（HTML）
}
