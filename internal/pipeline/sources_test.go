package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testFetchConfig() FetchConfig {
	cfg := NewFetchConfig("curioscience-test/1.0", 5*time.Second)
	cfg.PerSource = 10
	return cfg
}

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test feed</title>
  <item>
    <title>Study  finds X</title>
    <link>https://a.example/x?utm_source=rss</link>
    <description>&lt;p&gt;A &lt;b&gt;short&lt;/b&gt; summary.&lt;/p&gt;</description>
    <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Undated item</title>
    <guid>https://a.example/undated</guid>
  </item>
  <item>
    <title></title>
    <link>https://a.example/untitled</link>
  </item>
</channel>
</rss>`

func TestCollectRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "curioscience-test/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	recs, err := collectRSS(context.Background(), SourceConfig{Name: "Nature", Kind: KindRSS, URL: srv.URL}, testFetchConfig())
	if err != nil {
		t.Fatalf("collectRSS: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(recs), recs)
	}

	first := recs[0]
	if first.Title != "Study finds X" || first.URL != "https://a.example/x?utm_source=rss" {
		t.Errorf("first = %+v", first)
	}
	if first.Summary != "A short summary." {
		t.Errorf("Summary = %q", first.Summary)
	}
	if first.PublishedAt != "2024-01-01T10:00:00Z" || first.Source != "Nature" {
		t.Errorf("first = %+v", first)
	}

	if recs[1].URL != "https://a.example/undated" {
		t.Errorf("guid link not used: %+v", recs[1])
	}
	if recs[1].PublishedAt != "" {
		t.Errorf("undated item got PublishedAt %q", recs[1].PublishedAt)
	}
}

func TestCollectRSS_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	recs, err := collectRSS(context.Background(), SourceConfig{Name: "n", URL: srv.URL, Limit: 1}, testFetchConfig())
	if err != nil || len(recs) != 1 {
		t.Errorf("got %d records, %v", len(recs), err)
	}
}

func TestCollectWordPress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("per_page"); got != "10" {
			t.Errorf("per_page = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"title":{"rendered":"Hallazgo &amp; avance"},"link":"https://cnio.example/a","date":"2024-01-02T04:04:05","date_gmt":"2024-01-02T03:04:05","excerpt":{"rendered":"<p>Resumen</p>"}},
			{"title":{"rendered":"Sin fecha GMT"},"link":"https://cnio.example/b","date":"2024-01-03T00:00:00","date_gmt":"","excerpt":{"rendered":""}},
			{"title":{"rendered":""},"link":"https://cnio.example/c"}
		]`))
	}))
	defer srv.Close()

	recs, err := collectWordPress(context.Background(), SourceConfig{Name: "CNIO", Kind: KindWordPress, URL: srv.URL + "/"}, testFetchConfig())
	if err != nil {
		t.Fatalf("collectWordPress: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[0].Title != "Hallazgo & avance" || recs[0].Summary != "Resumen" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[0].PublishedAt != "2024-01-02T03:04:05Z" {
		t.Errorf("PublishedAt = %q, want date_gmt", recs[0].PublishedAt)
	}
	if recs[1].PublishedAt != "2024-01-03T00:00:00Z" {
		t.Errorf("PublishedAt = %q, want date", recs[1].PublishedAt)
	}
}

const testArXiv = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-01T18:00:00Z</published>
    <title>Attention
      Is Still All You Need</title>
    <summary>  We show
      things. </summary>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`

func TestCollectArXiv_RetriesThenSucceeds(t *testing.T) {
	oldWait := arXivRetryWait
	arXivRetryWait = time.Millisecond
	t.Cleanup(func() { arXivRetryWait = oldWait })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		if q.Get("search_query") != "cat:cs.AI" || q.Get("max_results") != "5" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(testArXiv))
	}))
	defer srv.Close()

	src := SourceConfig{Name: "arXiv", Kind: KindArXiv, URL: srv.URL, Query: "cat:cs.AI", Limit: 5}
	recs, err := collectArXiv(context.Background(), src, testFetchConfig())
	if err != nil {
		t.Fatalf("collectArXiv: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	r := recs[0]
	if r.Title != "Attention Is Still All You Need" || r.Summary != "We show things." {
		t.Errorf("record = %+v", r)
	}
	if r.URL != "http://arxiv.org/abs/2401.00001v1" || r.PublishedAt != "2024-01-01T18:00:00Z" {
		t.Errorf("record = %+v", r)
	}
}

func TestCollectArXiv_GivesUp(t *testing.T) {
	oldWait := arXivRetryWait
	arXivRetryWait = time.Millisecond
	t.Cleanup(func() { arXivRetryWait = oldWait })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := collectArXiv(context.Background(), SourceConfig{Name: "arXiv", URL: srv.URL, Query: "q"}, testFetchConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if int(calls.Load()) != arXivAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), arXivAttempts)
	}
}

func TestCollectHTML(t *testing.T) {
	page := `<html><body>
		<article>
			<h2><a href="/news/1">First  story</a></h2>
			<time datetime="2024-03-01T10:00:00Z">1 March</time>
			<p class="lead">A lead paragraph.</p>
		</article>
		<article>
			<h2><a href="https://other.example/2">Second story</a></h2>
			<span class="date">2024-03-02</span>
		</article>
		<article>
			<h2><a href="/news/1">Duplicate</a></h2>
		</article>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	src := SourceConfig{
		Name:            "Lab",
		Kind:            KindHTML,
		URL:             srv.URL + "/news/",
		ItemSelector:    "article",
		LinkSelector:    "h2 a",
		SummarySelector: "p.lead",
	}
	recs, err := collectHTML(context.Background(), src, testFetchConfig())
	if err != nil {
		t.Fatalf("collectHTML: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[0].URL != srv.URL+"/news/1" || recs[0].Title != "First story" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[0].PublishedAt != "2024-03-01T10:00:00Z" || recs[0].Summary != "A lead paragraph." {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	// date_selector 未指定なので <time> 以外の日付は拾わない
	if recs[1].URL != "https://other.example/2" || recs[1].PublishedAt != "" {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}

func TestCollectHTML_Charset(t *testing.T) {
	// "Investigación" in ISO-8859-1
	page := []byte("<html><body><a href=\"/a\">Investigaci\xf3n marina</a></body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(page)
	}))
	defer srv.Close()

	recs, err := collectHTML(context.Background(), SourceConfig{Name: "IEO", URL: srv.URL}, testFetchConfig())
	if err != nil {
		t.Fatalf("collectHTML: %v", err)
	}
	if len(recs) != 1 || recs[0].Title != "Investigación marina" {
		t.Errorf("recs = %+v", recs)
	}
}

func TestCollectJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"link":"/p/1","title":"<b>One</b>","pubDate":"2024-02-01","description":"<p>Desc</p>"},
			{"url":"https://x.example/2","title":"Two","source":"Upstream"},
			"not an object"
		]}`))
	}))
	defer srv.Close()

	src := SourceConfig{Name: "API", Kind: KindJSON, URL: srv.URL + "/feed.json", ItemsKey: "data"}
	recs, err := collectJSON(context.Background(), src, testFetchConfig())
	if err != nil {
		t.Fatalf("collectJSON: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[0].URL != srv.URL+"/p/1" || recs[0].Title != "One" || recs[0].Summary != "Desc" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[0].PublishedAt != "2024-02-01T00:00:00Z" || recs[0].Source != "API" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].Source != "Upstream" {
		t.Errorf("recs[1].Source = %q", recs[1].Source)
	}
}

func TestCollectJSON_MissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	if _, err := collectJSON(context.Background(), SourceConfig{Name: "API", URL: srv.URL, ItemsKey: "data"}, testFetchConfig()); err == nil {
		t.Error("expected error for missing items key")
	}
}

func TestCollect_IsolatesFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testRSS))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	sources := []SourceConfig{
		{Name: "Good", Kind: KindRSS, URL: good.URL},
		{Name: "Bad", Kind: KindRSS, URL: bad.URL},
		{Name: "Weird", Kind: "gopher", URL: good.URL},
	}
	res := Collect(context.Background(), sources, testFetchConfig())

	if res.Succeeded != 1 || len(res.Records) != 2 {
		t.Errorf("Succeeded = %d, records = %d", res.Succeeded, len(res.Records))
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Errors = %v", res.Errors)
	}
	if res.Errors[0].Source != "Bad" || !strings.Contains(res.Errors[0].Error(), "500") {
		t.Errorf("Errors[0] = %v", res.Errors[0])
	}
	if !errors.Is(res.Errors[1].Err, ErrUnknownKind) {
		t.Errorf("Errors[1] = %v", res.Errors[1])
	}
}

func TestCollect_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	cfg := NewFetchConfig("t", 50*time.Millisecond)
	res := Collect(context.Background(), []SourceConfig{{Name: "Slow", Kind: KindRSS, URL: slow.URL}}, cfg)
	if len(res.Errors) != 1 || res.Succeeded != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestIsPDFLink(t *testing.T) {
	for link, want := range map[string]bool{
		"https://a.example/report.pdf":     true,
		"https://a.example/REPORT.PDF?x=1": true,
		"https://a.example/report.html":    false,
		"https://a.example/pdf":            false,
	} {
		if got := isPDFLink(link); got != want {
			t.Errorf("isPDFLink(%q) = %v", link, got)
		}
	}
}

func TestPDFSummary_NotAPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text, not a pdf"))
	}))
	defer srv.Close()

	if got := pdfSummary(context.Background(), srv.URL+"/x.pdf", testFetchConfig()); got != "" {
		t.Errorf("pdfSummary = %q, want empty", got)
	}
}

func TestLoadSourcesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	yaml := `sources:
  - name: Nature
    url: https://www.nature.com/nature.rss
  - name: arXiv
    kind: ArXiv
    query: cat:cs.AI
    limit: 20
  - name: CNIO
    kind: wordpress
    url: https://www.cnio.es
    language: ES
    disabled: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSourcesFile(path)
	if err != nil {
		t.Fatalf("LoadSourcesFile: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("got %d sources", len(sources))
	}
	if sources[0].Kind != KindRSS || sources[1].Kind != KindArXiv || sources[1].Limit != 20 {
		t.Errorf("sources = %+v", sources)
	}

	selected, unknown := SelectSources(sources, nil)
	if len(selected) != 2 || len(unknown) != 0 {
		t.Errorf("SelectSources(all) = %v, %v", selected, unknown)
	}
	selected, unknown = SelectSources(sources, []string{"cnio", "Missing"})
	if len(selected) != 1 || selected[0].Name != "CNIO" || fmt.Sprint(unknown) != "[Missing]" {
		t.Errorf("SelectSources(named) = %v, %v", selected, unknown)
	}
	if got := languageOverrides(sources); got["CNIO"] != "ES" || len(got) != 1 {
		t.Errorf("languageOverrides = %v", got)
	}
}

func TestLoadSourcesFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"empty", "sources: []\n", ErrNoSources},
		{"unknown kind", "sources:\n  - name: X\n    kind: gopher\n    url: http://x\n", ErrUnknownKind},
		{"missing url", "sources:\n  - name: X\n", ErrMissingSource},
		{"arxiv without query", "sources:\n  - name: A\n    kind: arxiv\n", ErrMissingSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			os.WriteFile(path, []byte(tt.yaml), 0o644)
			if _, err := LoadSourcesFile(path); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	path := filepath.Join(t.TempDir(), "dup.yaml")
	os.WriteFile(path, []byte("sources:\n  - name: X\n    url: http://a\n  - name: x\n    url: http://b\n"), 0o644)
	if _, err := LoadSourcesFile(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate names: err = %v", err)
	}
}

func TestDefaultSources_Valid(t *testing.T) {
	for _, s := range DefaultSources() {
		if err := s.Validate(); err != nil {
			t.Errorf("%s: %v", s.Name, err)
		}
	}
}
