// =============================================================================
// sources_academic.go - Academic/Research Sources
// =============================================================================
//
// arXiv は RSS ではなく独自の Atom API を使う（kind: arxiv）。
//
//	GET http://export.arxiv.org/api/query?search_query=cat:cs.AI&start=0
//	    &max_results=20&sortBy=submittedDate&sortOrder=descending
//
// API Documentation: https://info.arxiv.org/help/api/index.html
// 接続が不安定なことがあるため、最大3回まで試行する。
//
// =============================================================================
package pipeline

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const arXivAPIEndpoint = "http://export.arxiv.org/api/query"

// arXiv の再試行設定（テストで短縮する）
var (
	arXivAttempts  = 3
	arXivRetryWait = 5 * time.Second
)

// arXivFeed represents the Atom feed structure from arXiv API
type arXivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arXivEntry `xml:"entry"`
}

// arXivEntry represents a single paper entry from arXiv
type arXivEntry struct {
	Title     string        `xml:"title"`
	ID        string        `xml:"id"`
	Published string        `xml:"published"`
	Updated   string        `xml:"updated"`
	Summary   string        `xml:"summary"`
	Authors   []arXivAuthor `xml:"author"`
	Links     []arXivLink   `xml:"link"`
}

// arXivAuthor represents an author in arXiv entry
type arXivAuthor struct {
	Name string `xml:"name"`
}

// arXivLink represents a link in arXiv entry
type arXivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// collectArXiv fetches the newest papers matching src.Query.
func collectArXiv(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error) {
	endpoint := src.URL
	if endpoint == "" {
		endpoint = arXivAPIEndpoint
	}
	limit := cfg.limitFor(src)

	q := url.Values{}
	q.Set("search_query", src.Query)
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprint(limit))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	apiURL := endpoint + "?" + q.Encode()

	var (
		feed    arXivFeed
		lastErr error
	)
	for attempt := 1; attempt <= arXivAttempts; attempt++ {
		if attempt > 1 {
			warnf("arXiv attempt %d/%d failed: %v", attempt-1, arXivAttempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(arXivRetryWait):
			}
		}
		feed, lastErr = fetchArXivFeed(ctx, apiURL, cfg)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	out := make([]Record, 0, min(limit, len(feed.Entries)))
	for _, entry := range feed.Entries {
		if len(out) >= limit {
			break
		}

		// arXiv はタイトル・要約に改行を入れてくる
		title := normalizeWhitespace(entry.Title)
		articleURL := strings.TrimSpace(entry.ID)
		if articleURL == "" {
			articleURL = entry.absLink()
		}
		if title == "" || articleURL == "" {
			continue
		}

		published := normalizeTimestamp(entry.Published)
		if published == "" {
			published = normalizeTimestamp(entry.Updated)
		}

		out = append(out, Record{
			URL:         articleURL,
			Title:       title,
			Summary:     truncateString(normalizeWhitespace(entry.Summary), maxSummaryRunes),
			Source:      src.Name,
			PublishedAt: published,
		})
	}

	return out, nil
}

// fetchArXivFeed は1回分の API 呼び出し
func fetchArXivFeed(ctx context.Context, apiURL string, cfg FetchConfig) (arXivFeed, error) {
	var feed arXivFeed
	resp, err := httpGet(ctx, apiURL, "application/atom+xml", cfg)
	if err != nil {
		return feed, err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return feed, fmt.Errorf("XML parse failed: %w", err)
	}
	return feed, nil
}

// absLink returns the abstract page link (rel="alternate").
func (e arXivEntry) absLink() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" || (l.Rel == "" && l.Type != "application/pdf") {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}
