// =============================================================================
// sources_html.go - HTMLスクレイピング / 汎用JSON / PDF要約
// =============================================================================
//
// 【kind: html】
//   RSSを出していないサイト向け。一覧ページを goquery で解析する。
//   セレクタは sources.yaml で指定する:
//
//	item_selector:    1記事を囲む要素（省略時はリンクそのもの）
//	link_selector:    記事リンク（省略時は "a[href]"）
//	title_selector:   タイトル（省略時はリンクのテキスト）
//	date_selector:    日付（datetime 属性があれば優先、無ければテキスト）
//	summary_selector: 要約（省略時はリンク周辺の <p> から抽出）
//
// 【kind: json】
//   記事オブジェクトの配列を返すAPI。articles.json と同じ別名解釈
//   （link, pubDate, description など）で読む。
//
// 【PDF要約】
//   pdf_summaries: true のソースで、要約が無くリンクが PDF の場合のみ
//   PDFをダウンロードして本文の冒頭を要約にする。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

const (
	maxContextExcerpt = 500      // リンク周辺から抽出する要約の最大文字数
	maxPDFBytes       = 20 << 20 // ダウンロードするPDFの上限
	maxPDFSummary     = 600      // PDFから作る要約の最大文字数
)

// =============================================================================
// HTML
// =============================================================================

// collectHTML は一覧ページから記事リンクを抽出する
func collectHTML(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error) {
	doc, err := fetchDoc(ctx, src.URL, cfg)
	if err != nil {
		return nil, err
	}

	linkSel := src.LinkSelector
	if linkSel == "" {
		linkSel = "a[href]"
	}

	// item_selector が無ければリンクの親要素を1記事とみなす
	var items *goquery.Selection
	if src.ItemSelector != "" {
		items = doc.Find(src.ItemSelector)
	} else {
		items = doc.Find(linkSel)
	}

	limit := cfg.limitFor(src)
	out := make([]Record, 0, limit)
	seen := make(map[string]bool)

	items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(out) >= limit {
			return false
		}

		link := item
		container := item.Parent()
		if src.ItemSelector != "" {
			link = item.Find(linkSel).First()
			container = item
		}

		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		articleURL := resolveURL(src.URL, href)
		if articleURL == "" || seen[articleURL] {
			return true
		}

		title := normalizeWhitespace(link.Text())
		if src.TitleSelector != "" {
			title = normalizeWhitespace(container.Find(src.TitleSelector).First().Text())
		}
		if title == "" {
			return true
		}
		seen[articleURL] = true

		summary := ""
		if src.SummarySelector != "" {
			summary = normalizeWhitespace(container.Find(src.SummarySelector).First().Text())
		} else {
			summary = extractExcerptFromContext(link)
		}
		if summary == "" && src.PDFSummaries && isPDFLink(articleURL) {
			summary = pdfSummary(ctx, articleURL, cfg)
		}

		out = append(out, Record{
			URL:         articleURL,
			Title:       title,
			Summary:     truncateString(summary, maxSummaryRunes),
			Source:      src.Name,
			PublishedAt: extractDate(container, src.DateSelector),
		})
		return true
	})

	return out, nil
}

// extractDate は要素内の日付を探す（datetime 属性 → テキスト）
func extractDate(container *goquery.Selection, selector string) string {
	if selector == "" {
		selector = "time"
	}
	el := container.Find(selector).First()
	if el.Length() == 0 {
		return ""
	}
	if dt, ok := el.Attr("datetime"); ok {
		if ts := normalizeTimestamp(dt); ts != "" {
			return ts
		}
	}
	return normalizeTimestamp(normalizeWhitespace(el.Text()))
}

// extractExcerptFromContext はリンク周辺のテキストから記事要約を抽出
//
// 個別の記事ページをフェッチせず、一覧ページ内でリンクの親要素にある
// <p> や .excerpt/.summary/.description から要約を作る。
func extractExcerptFromContext(linkSel *goquery.Selection) string {
	var parts []string
	size := 0
	collect := func(_ int, s *goquery.Selection) {
		if size >= maxContextExcerpt {
			return
		}
		text := normalizeWhitespace(s.Text())
		if len([]rune(text)) <= 20 {
			return
		}
		parts = append(parts, text)
		size += len([]rune(text))
	}

	// Strategy 1: 親要素内の <p>
	linkSel.Parent().Find("p").Each(collect)

	// Strategy 2: さらに上の要素にある要約用のクラス
	if len(parts) == 0 {
		linkSel.Parent().Parent().Find(".excerpt, .summary, .description").Each(collect)
	}

	return truncateString(strings.Join(parts, " "), maxContextExcerpt)
}

// =============================================================================
// JSON
// =============================================================================

// collectJSON は記事オブジェクトの配列を返すAPIから収集する
func collectJSON(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error) {
	var raw json.RawMessage
	if err := httpGetJSON(ctx, src.URL, cfg, &raw); err != nil {
		return nil, err
	}

	if src.ItemsKey != "" {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("expected an object with %q: %w", src.ItemsKey, err)
		}
		inner, ok := obj[src.ItemsKey]
		if !ok {
			return nil, fmt.Errorf("key %q not found in response", src.ItemsKey)
		}
		raw = inner
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("expected an array of items: %w", err)
	}

	limit := cfg.limitFor(src)
	out := make([]Record, 0, min(limit, len(elems)))
	skipped := 0
	for _, e := range elems {
		if len(out) >= limit {
			break
		}
		var r Record
		if err := json.Unmarshal(e, &r); err != nil || (isBlank(r.URL) && isBlank(r.Title)) {
			skipped++
			continue
		}
		r.URL = resolveURL(src.URL, r.URL)
		r.Title = htmlToText(r.Title)
		r.Summary = truncateString(htmlToText(r.Summary), maxSummaryRunes)
		if r.Source == "" {
			r.Source = src.Name
		}
		out = append(out, r)
	}
	if skipped > 0 {
		warnf("%s: skipped %d empty or non-object item(s)", src.Name, skipped)
	}
	return out, nil
}

// =============================================================================
// PDF
// =============================================================================

// isPDFLink reports whether the URL path ends in .pdf.
func isPDFLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

// pdfSummary はPDF本文の冒頭を要約として返す（失敗時は ""）
func pdfSummary(ctx context.Context, pdfURL string, cfg FetchConfig) string {
	text, err := extractTextFromPDF(ctx, pdfURL, cfg)
	if err != nil {
		debugf("PDF summary for %s failed: %v", pdfURL, err)
		return ""
	}
	return truncateString(text, maxPDFSummary)
}

// extractTextFromPDF downloads a PDF and extracts its text content.
func extractTextFromPDF(ctx context.Context, pdfURL string, cfg FetchConfig) (string, error) {
	resp, err := httpGet(ctx, pdfURL, "application/pdf", cfg)
	if err != nil {
		return "", fmt.Errorf("failed to download PDF: %w", err)
	}
	defer resp.Body.Close()

	pdfData, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	if len(pdfData) > maxPDFBytes {
		return "", fmt.Errorf("PDF larger than %d bytes", maxPDFBytes)
	}
	return pdfText(pdfData)
}

// pdfText extracts the plain text of every page.
func pdfText(data []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() > maxPDFSummary*8 {
			break
		}
	}
	return normalizeWhitespace(sb.String()), nil
}
