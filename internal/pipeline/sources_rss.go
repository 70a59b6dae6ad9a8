// =============================================================================
// sources_rss.go - RSS/Atom フィードと WordPress REST API
// =============================================================================
//
// 【kind: rss】
//   gofeed でRSS 2.0 / Atom / JSON Feed を解析する。
//   日付は published → updated の順に採用し、どちらも無ければ空のまま。
//
// 【kind: wordpress】
//   {url}/wp-json/wp/v2/posts を使う。date_gmt（タイムゾーン無しのUTC）を優先。
//   RSSを出していない、または RSS が壊れている WordPress サイト向け。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// 要約として保持する最大文字数
const maxSummaryRunes = 1000

// collectRSS は RSS/Atom フィードから記事を収集する
func collectRSS(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error) {
	feed, err := fetchRSSFeed(ctx, src.URL, cfg)
	if err != nil {
		return nil, err
	}

	limit := cfg.limitFor(src)
	out := make([]Record, 0, min(limit, len(feed.Items)))

	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}

		title := normalizeWhitespace(item.Title)
		link := itemLink(item)
		if title == "" || link == "" {
			continue
		}

		summary := truncateString(extractRSSExcerpt(item), maxSummaryRunes)
		if summary == "" && src.PDFSummaries && isPDFLink(link) {
			summary = pdfSummary(ctx, link, cfg)
		}

		out = append(out, Record{
			URL:         link,
			Title:       title,
			Summary:     summary,
			Source:      src.Name,
			PublishedAt: itemDate(item),
		})
	}

	return out, nil
}

// itemLink はアイテムのURLを返す（link が無ければ URL 形式の guid）
func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	if guid := strings.TrimSpace(item.GUID); strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

// itemDate は published → updated の順に日付を決める（無ければ ""）
func itemDate(item *gofeed.Item) string {
	if ts := formatTime(item.PublishedParsed); ts != "" {
		return ts
	}
	if ts := formatTime(item.UpdatedParsed); ts != "" {
		return ts
	}
	if ts := normalizeTimestamp(item.Published); ts != "" {
		return ts
	}
	return normalizeTimestamp(item.Updated)
}

// =============================================================================
// WordPress REST API
// =============================================================================

// collectWordPress はWordPress REST APIから記事を収集する
//
//	GET https://www.cnio.es/wp-json/wp/v2/posts?per_page=30&_fields=title,link,date,date_gmt,excerpt
func collectWordPress(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error) {
	base := strings.TrimRight(src.URL, "/")
	if !strings.Contains(base, "/wp-json/") {
		base += "/wp-json/wp/v2/posts"
	}
	limit := cfg.limitFor(src)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	apiURL := fmt.Sprintf("%s%sper_page=%d&_fields=title,link,date,date_gmt,excerpt", base, sep, min(limit, 100))

	var posts []WPPost
	if err := httpGetJSON(ctx, apiURL, cfg, &posts); err != nil {
		return nil, fmt.Errorf("failed to fetch %s API: %w", src.Name, err)
	}

	out := make([]Record, 0, len(posts))
	for _, p := range posts {
		if len(out) >= limit {
			break
		}
		title := htmlToText(p.Title.Rendered)
		link := strings.TrimSpace(p.Link)
		if title == "" || link == "" {
			continue
		}

		// date_gmt はZ無しのUTC。無ければサイトのローカル時刻（date）をUTCとみなす
		published := normalizeTimestamp(p.DateGMT)
		if published == "" {
			published = normalizeTimestamp(p.Date)
		}

		out = append(out, Record{
			URL:         link,
			Title:       title,
			Summary:     truncateString(htmlToText(p.Excerpt.Rendered), maxSummaryRunes),
			Source:      src.Name,
			PublishedAt: published,
		})
	}
	return out, nil
}
