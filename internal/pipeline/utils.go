// =============================================================================
// utils.go - ユーティリティ関数
// =============================================================================
//
// このファイルはシステム全体で使用する汎用的なヘルパー関数を提供します。
//
// 【このファイルで提供する機能】
//   - 文字列操作: 空白正規化、重複削除、切り詰め
//   - JSON操作: ファイル書き込み（一時ファイル経由のアトミック置換）
//   - ログ出力: 警告・情報・エラーメッセージ（log/slog 経由で標準エラー出力へ）
//   - HTML操作: HTML → プレーンテキスト、相対URLの解決
//
// =============================================================================
package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reHTMLTags = regexp.MustCompile(`<[^>]*>`)

// -----------------------------------------------------------------------------
// 文字列操作関数
// -----------------------------------------------------------------------------

// normalizeWhitespace は文字列内の連続する空白を単一スペースに正規化する
//
//	normalizeWhitespace("  hello   world  ")  // "hello world"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// uniqStrings は文字列スライスから重複と空文字列を除去する（順序は維持）
func uniqStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// splitList はカンマ区切りの文字列をトリムしてスライスにする
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return uniqStrings(out)
}

// truncateString は文字列を maxLen 文字（rune単位）に切り詰める
//
//	truncateString("Hello World", 8)  // "Hello..."
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 3 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// -----------------------------------------------------------------------------
// JSON操作関数
// -----------------------------------------------------------------------------

// writeJSONFile は任意のデータをJSON形式でファイルに保存する
//
// 同じディレクトリの一時ファイルに書いてから rename するため、
// 途中で落ちても既存ファイルが半端な内容になることはない。
// 親ディレクトリが無ければ作成する。
func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功後は何もしない

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// -----------------------------------------------------------------------------
// ログ出力関数
// -----------------------------------------------------------------------------
//
// 標準出力はJSONの受け渡しに使うため、ログは全て slog のデフォルトロガー
// （internal/logger が標準エラー出力に設定）に流す。

// warnf は警告メッセージを出力する
func warnf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...))
}

// infof は情報メッセージを出力する
func infof(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}

// errorf はエラーメッセージを出力する（プログラムは終了しない）
func errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}

// debugf は DEBUG レベルのメッセージを出力する
func debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// HTML操作関数
// -----------------------------------------------------------------------------

// htmlToText はHTML断片をプレーンテキストに変換する
//
// script/style を除去してテキストだけを取り出し、空白を正規化する。
// goquery でパースできない場合は正規表現でタグを落とす。
func htmlToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalizeWhitespace(reHTMLTags.ReplaceAllString(s, " "))
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeWhitespace(doc.Text())
}

// resolveURL は相対URLを絶対URLに変換する（エラー時は空文字列）
func resolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
