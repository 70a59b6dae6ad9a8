// =============================================================================
// headlines.go - ニュースソース共通ロジック
// =============================================================================
//
// このファイルはフィードからの記事収集に関する共通ロジックを提供します。
// 個別の取得方式は以下のファイルに分割されています：
//
// 【ファイル構成】
//   - headlines.go (このファイル)  - レジストリ、並列収集、HTTP共通処理
//   - sources_config.go           - ソース定義（YAML / 組み込みリスト）
//   - sources_rss.go              - RSS/Atom フィード、WordPress REST API
//   - sources_academic.go         - arXiv API
//   - sources_html.go             - HTMLスクレイピング、汎用JSON、PDF要約
//
// =============================================================================
// 【収集の規則】
// =============================================================================
//
//   - 全ソースを並列に取得し（同時実行数は FETCH_CONCURRENCY）、全て待ってから返す
//   - 1ソースの失敗・タイムアウトはそのソースが「空」になるだけ（実行は止めない）
//   - 日付が取れない記事は PublishedAt を空のまま返す（現在時刻で補完しない）
//   - ソースごとに最大 limit 件（未指定なら PER_SOURCE）
//
// =============================================================================
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// ソースレジストリ（Source Registry）
// =============================================================================
//
// 取得方式（kind）ごとの収集関数をマップで管理する。
//
//	collector, ok := sourceCollectors["rss"]
//	if ok {
//	    records, err := collector(ctx, src, cfg)
//	}

// SourceCollector は収集関数のシグネチャ
//
//   - src: ソース定義（URL、件数上限、セレクタなど）
//   - cfg: HTTP設定（User-Agent、タイムアウト）
//   - 戻り値: 収集した候補レコードとエラー
type SourceCollector func(ctx context.Context, src SourceConfig, cfg FetchConfig) ([]Record, error)

// sourceCollectors は取得方式 → 収集関数
var sourceCollectors = map[string]SourceCollector{
	KindRSS:       collectRSS,       // sources_rss.go
	KindWordPress: collectWordPress, // sources_rss.go
	KindArXiv:     collectArXiv,     // sources_academic.go
	KindHTML:      collectHTML,      // sources_html.go
	KindJSON:      collectJSON,      // sources_html.go
}

// =============================================================================
// 設定と構造体
// =============================================================================

// FetchConfig は収集時の設定を保持
type FetchConfig struct {
	UserAgent   string        // HTTPリクエスト時のUser-Agentヘッダー
	Timeout     time.Duration // HTTPリクエストのタイムアウト時間
	Client      *http.Client  // 共有HTTPクライアント（コネクションプーリング有効）
	PerSource   int           // ソースあたりの最大件数（SourceConfig.Limit が優先）
	Concurrency int           // 同時に取得するソース数
}

// DefaultFetchConfig はデフォルトの収集設定を返す
func DefaultFetchConfig() FetchConfig {
	return NewFetchConfig("curioscience-bot/1.0", 20*time.Second)
}

// NewFetchConfig builds a config with a shared pooled client.
func NewFetchConfig(userAgent string, timeout time.Duration) FetchConfig {
	return FetchConfig{
		UserAgent: userAgent,
		Timeout:   timeout,
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		PerSource:   30,
		Concurrency: 4,
	}
}

// limitFor はソースの件数上限を返す
func (c FetchConfig) limitFor(src SourceConfig) int {
	if src.Limit > 0 {
		return src.Limit
	}
	if c.PerSource > 0 {
		return c.PerSource
	}
	return 30
}

// SourceError はソース単位の失敗
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return fmt.Sprintf("%s: %v", e.Source, e.Err) }

// CollectResult は収集結果とエラー情報を保持する
type CollectResult struct {
	Records   []Record      // ソース定義の順に連結
	Errors    []SourceError // 失敗したソース
	Succeeded int           // 成功したソース数
}

// =============================================================================
// 並列収集
// =============================================================================

// Collect fetches every source concurrently and joins them all. A failing source
// contributes no records and one entry in Errors.
func Collect(ctx context.Context, sources []SourceConfig, cfg FetchConfig) *CollectResult {
	type outcome struct {
		records []Record
		err     error
	}
	outcomes := make([]outcome, len(sources))

	limit := cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			collector, ok := sourceCollectors[src.Kind]
			if !ok {
				outcomes[i].err = fmt.Errorf("%w %q", ErrUnknownKind, src.Kind)
				return nil
			}
			start := time.Now()
			records, err := collector(ctx, src, cfg)
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			for j := range records {
				if records[j].Source == "" {
					records[j].Source = src.Name
				}
			}
			outcomes[i].records = records
			debugf("collected %d item(s) from %s in %s", len(records), src.Name, time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait() // 収集関数はエラーを返さない（outcomes に記録する）

	result := &CollectResult{}
	for i, o := range outcomes {
		if o.err != nil {
			errorf("collecting %s: %v", sources[i].Name, o.err)
			result.Errors = append(result.Errors, SourceError{Source: sources[i].Name, Err: o.err})
			continue
		}
		result.Succeeded++
		result.Records = append(result.Records, o.records...)
	}

	if len(result.Errors) > 0 {
		warnf("%d source(s) failed (collected %d items from %d sources)",
			len(result.Errors), len(result.Records), result.Succeeded)
	}
	return result
}

// =============================================================================
// HTTP 共通処理
// =============================================================================

// httpGet は GET リクエストを送り、2xx 以外をエラーにする
//
// 呼び出し側で resp.Body を Close すること。
func httpGet(ctx context.Context, u, accept string, cfg FetchConfig) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %s", u, resp.Status)
	}
	return resp, nil
}

// fetchRSSFeed は指定URLからRSS/Atomフィードを取得してパース
func fetchRSSFeed(ctx context.Context, feedURL string, cfg FetchConfig) (*gofeed.Feed, error) {
	resp, err := httpGet(ctx, feedURL, "application/rss+xml, application/atom+xml, application/xml, text/xml", cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("RSS parse failed: %w", err)
	}
	return feed, nil
}

// fetchDoc は指定URLからHTMLドキュメントを取得してgoqueryでパース
//
// Content-Type や <meta charset> が UTF-8 以外（ISO-8859-1 など）のページは
// charset.NewReader で UTF-8 に変換してから読む。
func fetchDoc(ctx context.Context, u string, cfg FetchConfig) (*goquery.Document, error) {
	resp, err := httpGet(ctx, u, "text/html,application/xhtml+xml", cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return goquery.NewDocumentFromReader(body)
}

// httpGetJSON は GET したJSONを out にデコードする
func httpGetJSON(ctx context.Context, u string, cfg FetchConfig, out any) error {
	resp, err := httpGet(ctx, u, "application/json", cfg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JSON parse failed: %w", err)
	}
	return nil
}

// extractRSSExcerpt は gofeed.Item から Description を優先して要約を作る
//
// Description が空なら Content（全文）を使う。HTMLタグは除去する。
func extractRSSExcerpt(item *gofeed.Item) string {
	raw := item.Description
	if strings.TrimSpace(raw) == "" {
		raw = item.Content
	}
	return htmlToText(raw)
}
