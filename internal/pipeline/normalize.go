// =============================================================================
// normalize.go - 識別キー・テキスト・日時の正規化
// =============================================================================
//
// 【このファイルで提供する機能】
//   - NormalizeIdentity:  URL → 識別キー（重複排除の単位）
//   - normalizeText:      翻訳結果の比較用テキスト正規化
//   - normalizeTimestamp: 様々な日付表現 → RFC3339 (UTC)
//
// 【識別キーの規則】
//   1. 絶対URLとしてパースできれば fragment と query を丸ごと除去
//   2. 全体を小文字化
//   3. パースできなければ trim + 小文字化した文字列そのもの
//   4. 空白のみ → ""（無効キー。"" でまとめてマージしない）
//
//   フィードは同じ記事をトラッキングパラメータ（?utm_source=...）や
//   アンカー違いで配信するため、これらを1件にまとめる。
//   クエリで記事を識別するサイト（?id=123）は誤って統合される可能性がある。
//   実際のフィードでは発生していないが、あくまで近似であり保証ではない。
//
// =============================================================================
package pipeline

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentity derives the identity key of a record from its URL.
func NormalizeIdentity(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return strings.ToLower(s)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	return strings.ToLower(u.String())
}

// isBlank reports whether s is empty after trimming whitespace.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalizeText はNFC正規化 + 連続空白の圧縮 + trim を行う
//
// 翻訳結果が原文と「同じ」かどうかの判定に使用する。
// 全角/半角やUnicode合成文字の違いで別物と誤判定しないようにNFCに揃える。
func normalizeText(s string) string {
	return normalizeWhitespace(norm.NFC.String(s))
}

// sameText reports whether a and b are equal after normalizeText.
func sameText(a, b string) bool {
	return normalizeText(a) == normalizeText(b)
}

// timestampLayouts は normalizeTimestamp が試すレイアウト（上から順に）
//
// RSS (RFC822/1123)、Atom (RFC3339)、WordPress date_gmt（タイムゾーン無し）、
// 日付のみ、などフィードで実際に見かける形式。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006 15:04",
	"Mon, 2 Jan 2006",
}

// normalizeTimestamp は日付らしい文字列を RFC3339 (UTC) に変換する
//
// 解釈できない・空の場合は "" を返す（不明のまま。現在時刻で補完しない）。
// タイムゾーンの無い形式はUTCとして扱う。
func normalizeTimestamp(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, ok := parseTimestamp(s)
	if !ok {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// resolveTimestamp は正規化できればRFC3339、できなければ trim した元の文字列を返す
//
// 解釈できない日付でも「不明」ではない。履歴の値を後のバッチで上書きしないために
// 元の値を残す（並び順では日付不明として扱われる）。
func resolveTimestamp(s string) string {
	if ts := normalizeTimestamp(s); ts != "" {
		return ts
	}
	return strings.TrimSpace(s)
}

// parseTimestamp tries every layout in timestampLayouts.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatTime は *time.Time を RFC3339 文字列に変換する（nil → ""）
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
