// =============================================================================
// sources_config.go - ソース定義（YAML）
// =============================================================================
//
// 取得するフィードの一覧。SOURCES_FILE で YAML を指定するか、未指定なら
// DefaultSources() の組み込みリストを使う。
//
// 【YAMLの例】
//
//	sources:
//	  - name: Nature
//	    kind: rss
//	    url: https://www.nature.com/nature.rss
//	  - name: arXiv
//	    kind: arxiv
//	    query: cat:cs.AI
//	    limit: 20
//	  - name: CNIO
//	    kind: wordpress
//	    url: https://www.cnio.es
//	    language: ES
//	  - name: Lab News
//	    kind: html
//	    url: https://lab.example/news
//	    item_selector: article
//	    link_selector: h2 a
//	    date_selector: time
//
// =============================================================================
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindRSS       = "rss"
	KindWordPress = "wordpress"
	KindArXiv     = "arxiv"
	KindHTML      = "html"
	KindJSON      = "json"
)

var (
	ErrNoSources     = errors.New("no sources defined")
	ErrUnknownKind   = errors.New("unknown source kind")
	ErrMissingSource = errors.New("source is missing a required field")
)

// SourceConfig describes one feed.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	Language string `yaml:"language,omitempty"` // 原語の明示指定（"EN", "ES"）
	Limit    int    `yaml:"limit,omitempty"`    // 0 = PER_SOURCE
	Disabled bool   `yaml:"disabled,omitempty"`

	// arxiv
	Query string `yaml:"query,omitempty"` // search_query（例: cat:cs.AI）

	// html
	ItemSelector    string `yaml:"item_selector,omitempty"`
	LinkSelector    string `yaml:"link_selector,omitempty"`
	TitleSelector   string `yaml:"title_selector,omitempty"`
	DateSelector    string `yaml:"date_selector,omitempty"`
	SummarySelector string `yaml:"summary_selector,omitempty"`

	// json
	ItemsKey string `yaml:"items_key,omitempty"` // 配列が入っているキー（空 = ルートが配列）

	// 要約が無く、リンク先が PDF の場合は PDF 本文の冒頭を要約にする
	PDFSummaries bool `yaml:"pdf_summaries,omitempty"`
}

// Validate checks that the source can be fetched.
func (s SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingSource)
	}
	if _, ok := sourceCollectors[s.Kind]; !ok {
		return fmt.Errorf("%s: %w %q", s.Name, ErrUnknownKind, s.Kind)
	}
	if s.Kind != KindArXiv && strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%s: %w: url", s.Name, ErrMissingSource)
	}
	if s.Kind == KindArXiv && s.Query == "" && s.URL == "" {
		return fmt.Errorf("%s: %w: query", s.Name, ErrMissingSource)
	}
	return nil
}

// sourcesFile は SOURCES_FILE の構造
type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSourcesFile reads and validates a YAML source list.
func LoadSourcesFile(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, ErrNoSources
	}

	seen := map[string]bool{}
	for i := range f.Sources {
		s := &f.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = KindRSS
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[key] = true
	}
	return f.Sources, nil
}

// DefaultSources returns the built-in source list.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "arXiv", Kind: KindArXiv, Query: "cat:cs.AI", Limit: 20, Language: "EN"},
		{Name: "Science.org", Kind: KindRSS, URL: "https://www.science.org/action/showFeed?type=etoc&feed=rss&jc=science"},
		{Name: "Nature", Kind: KindRSS, URL: "https://www.nature.com/nature.rss"},
		{Name: "AEMET", Kind: KindRSS, URL: "https://www.aemet.es/xml/boletin.rss"},
		{Name: "CNIC", Kind: KindRSS, URL: "https://www.cnic.es/es/rss.xml"},
		{Name: "CNIO", Kind: KindRSS, URL: "https://www.cnio.es/feed/"},
		{Name: "ISCIII", Kind: KindRSS, URL: "https://www.isciii.es/Noticias/Paginas/Noticias.aspx?rss=1"},
		{Name: "IEO", Kind: KindRSS, URL: "https://www.ieo.es/es_ES/web/ieo/noticias?p_p_id=rss_WAR_rssportlet_INSTANCE_wMyGl9T8Kpyx&p_p_lifecycle=2&p_p_resource_id=rss"},
		{Name: "IAC", Kind: KindRSS, URL: "https://www.iac.es/en/rss.xml"},
	}
}

// SelectSources filters sources by name (case-insensitive). An empty names list
// keeps every enabled source; unknown names are returned separately.
func SelectSources(all []SourceConfig, names []string) (selected []SourceConfig, unknown []string) {
	if len(names) == 0 {
		for _, s := range all {
			if !s.Disabled {
				selected = append(selected, s)
			}
		}
		return selected, nil
	}
	byName := map[string]SourceConfig{}
	for _, s := range all {
		byName[strings.ToLower(s.Name)] = s
	}
	for _, n := range names {
		s, ok := byName[strings.ToLower(n)]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		selected = append(selected, s)
	}
	return selected, unknown
}

// languageOverrides collects the explicit language of each source.
func languageOverrides(sources []SourceConfig) map[string]string {
	out := map[string]string{}
	for _, s := range sources {
		if s.Language != "" {
			out[s.Name] = s.Language
		}
	}
	return out
}
