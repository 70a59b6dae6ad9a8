// =============================================================================
// runner.go - 1回分のパイプライン実行
// =============================================================================
//
// 【処理の流れ】
//
//	1. 前回のデータセットを読む          （失敗 = 致命的）
//	2. 全ソースを並列取得 + 追加バッチ   （失敗したソースは空として続行）
//	3. Reconcile(前回, バッチ...)        → 統合済みデータセット
//	4. 翻訳ステージ                      → 翻訳だけの部分バッチ
//	5. Reconcile(統合済み, 翻訳バッチ)   → 次のデータセット
//	6. バックアップ → 保存               （失敗 = 致命的）
//	7. 新規記事を Notion にミラー         （任意）
//	8. 失敗があればメールで通知          （任意）
//
// 致命的なのは 1 と 6 だけ。それ以外は RunReport に記録して続ける。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunReport は1回の実行結果
type RunReport struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Previous      int      `json:"previous"`      // 前回のレコード数
	Collected     int      `json:"collected"`     // 今回取得した候補数（バッチファイル含む）
	SourcesOK     int      `json:"sourcesOk"`     // 成功したソース数
	SourcesFailed []string `json:"sourcesFailed"` // 失敗したソース（"名前: 理由"）

	Added   int `json:"added"`   // 新規レコード数
	Merged  int `json:"merged"`  // 既存レコードに統合された回数
	Dropped int `json:"dropped"` // 不正で捨てたレコード数
	Total   int `json:"total"`   // 保存したレコード数

	Translation TranslationStats `json:"translation"`

	NotionMirrored int    `json:"notionMirrored"`
	BackupPath     string `json:"backupPath,omitempty"`
	SnapshotPath   string `json:"snapshotPath,omitempty"`
	DryRun         bool   `json:"dryRun,omitempty"`

	addedRecords []Record
}

// HasFailures reports whether anything degraded during the run.
func (r *RunReport) HasFailures() bool {
	t := r.Translation
	return len(r.SourcesFailed) > 0 || t.Forbidden > 0 || t.Halted
}

// AddedRecords returns the records that were new in this run.
func (r *RunReport) AddedRecords() []Record { return r.addedRecords }

// mirror is the Notion side of the run.
type mirror interface {
	Mirror(ctx context.Context, records []Record) (int, error)
}

// Runner wires the stages together for one configuration.
type Runner struct {
	cfg     *PipelineConfig
	store   *Store
	sources []SourceConfig
	fetch   FetchConfig
	stage   *TranslationStage
	cache   *TranslationCache
	notion  mirror
	email   *EmailSender
}

// NewRunner builds every stage from cfg. Missing credentials disable the
// corresponding provider or notifier; they are not errors.
func NewRunner(cfg *PipelineConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Runner{
		cfg:   cfg,
		store: NewStore(cfg.Output.FinalJSON, cfg.Output.BackupDir),
	}

	// ソース
	all := DefaultSources()
	if cfg.Input.SourcesFile != "" {
		loaded, err := LoadSourcesFile(cfg.Input.SourcesFile)
		if err != nil {
			return nil, err
		}
		all = loaded
	}
	if !cfg.Input.FetchDisabled() {
		selected, unknown := SelectSources(all, cfg.Input.SourceNames())
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown source(s): %s", strings.Join(unknown, ", "))
		}
		r.sources = selected
	}

	r.fetch = NewFetchConfig(cfg.Input.UserAgent, cfg.Input.HTTPTimeout)
	r.fetch.PerSource = cfg.Input.PerSource
	r.fetch.Concurrency = cfg.Input.Concurrency

	// 翻訳
	if !cfg.Translation.Disabled {
		stage, cache, err := buildTranslationStage(cfg, all)
		if err != nil {
			return nil, err
		}
		r.stage, r.cache = stage, cache
	}

	// 通知
	if cfg.Notify.NotionEnabled() {
		nm, err := NewNotionMirror(cfg.Notify.NotionToken, cfg.Notify.NotionDatabaseID)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.notion = nm
	}
	if cfg.Notify.EmailEnabled() {
		sender, err := NewEmailSender(cfg.Notify.EmailFrom, cfg.Notify.EmailPassword, cfg.Notify.EmailTo)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.email = sender
	}

	return r, nil
}

// buildTranslationStage はプロバイダのチェーンを組み立てる
//
//	プライマリ:     DeepL（DEEPL_API_KEY があり DISABLE_DEEPL でなければ）
//	フォールバック: LibreTranslate（URLがあれば）→ MyMemory（無効化されていなければ）
func buildTranslationStage(cfg *PipelineConfig, sources []SourceConfig) (*TranslationStage, *TranslationCache, error) {
	tc := cfg.Translation
	client := &http.Client{Timeout: cfg.Input.HTTPTimeout}

	var primary Translator
	switch {
	case tc.DisableDeepL:
		infof("DeepL disabled by DISABLE_DEEPL")
	case tc.DeepLAPIKey == "":
		infof("DEEPL_API_KEY not set, DeepL disabled")
	default:
		d, err := NewDeepLTranslator(tc.DeepLAPIKey, tc.DeepLEndpoint, client)
		if err != nil {
			return nil, nil, err
		}
		primary = d
	}

	var fallbacks []Translator
	if tc.LibreTranslateURL != "" {
		l, err := NewLibreTranslator(tc.LibreTranslateURL, tc.LibreTranslateAPIKey, client)
		if err != nil {
			return nil, nil, err
		}
		fallbacks = append(fallbacks, l)
	}
	if !tc.DisableMyMemory {
		fallbacks = append(fallbacks, NewMyMemoryTranslator(tc.MyMemoryEndpoint, client))
	}

	if primary == nil && len(fallbacks) == 0 {
		warnf("no translation provider configured, records will stay untranslated")
		return nil, nil, nil
	}

	var cache *TranslationCache
	if tc.CachePath != "" {
		c, err := OpenTranslationCache(tc.CachePath)
		if err != nil {
			// メモが使えなくても翻訳はできる
			warnf("translation cache disabled: %v", err)
		} else {
			cache = c
		}
	}

	chain := NewChain(primary, fallbacks, cache, ChainConfig{
		Interval:            tc.Interval,
		FallbackOnRateLimit: tc.FallbackOnRateLimit,
		FallbackMax:         tc.FallbackMax,
	})
	infof("translation providers: %s", strings.Join(chain.Providers(), " -> "))

	return &TranslationStage{
		Chain:              chain,
		Classifier:         NewSourceTokenClassifier(languageOverrides(sources)),
		TargetLang:         strings.ToUpper(tc.TargetLang),
		MaxItems:           tc.TitlesPerRun,
		TranslateSummaries: tc.TranslateSummaries,
	}, cache, nil
}

// Close releases the translation cache.
func (r *Runner) Close() error {
	if r.cache != nil {
		err := r.cache.Close()
		r.cache = nil
		return err
	}
	return nil
}

// Run executes one pipeline run. The error is non-nil only for fatal failures:
// unreadable previous state or a failed final write.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    r.cfg.Output.DryRun,
	}
	log := slog.With("run_id", report.RunID)
	log.Info("pipeline run started", "sources", len(r.sources), "dataset", r.store.Path)

	// 1. 前回のデータセット
	previous, err := r.store.Load()
	if err != nil {
		return report, fmt.Errorf("load previous dataset: %w", err)
	}
	report.Previous = len(previous)

	// 2. 取得 + 追加バッチ
	var batches [][]Record
	var collected []Record
	if len(r.sources) > 0 {
		res := Collect(ctx, r.sources, r.fetch)
		report.SourcesOK = res.Succeeded
		for _, e := range res.Errors {
			report.SourcesFailed = append(report.SourcesFailed, e.Error())
		}
		collected = append(collected, res.Records...)
		batches = append(batches, res.Records)
	}
	for _, path := range r.cfg.Input.BatchFiles() {
		batch, err := LoadBatchFile(path)
		if err != nil {
			errorf("skipping batch file %s: %v", path, err)
			report.SourcesFailed = append(report.SourcesFailed, SourceError{Source: "batch " + path, Err: err}.Error())
			continue
		}
		collected = append(collected, batch...)
		batches = append(batches, batch)
	}
	report.Collected = len(collected)

	if !r.cfg.Output.DryRun {
		snap, err := r.store.SaveSnapshot(r.cfg.Output.DailyDir, collected)
		if err != nil {
			warnf("daily snapshot not written: %v", err)
		}
		report.SnapshotPath = snap
	}

	// 3. 統合
	merged := ReconcileWithReport(previous, batches...)
	report.Merged = merged.Merged
	report.Dropped = merged.Dropped
	records := merged.Records

	// 4-5. 翻訳 → 統合
	if r.stage != nil {
		translations, stats := r.stage.Run(ctx, records)
		report.Translation = stats
		if len(translations) > 0 {
			records = Reconcile(records, translations)
		}
	}

	report.Total = len(records)
	report.Added = len(merged.Added)
	report.addedRecords = pickRecords(records, merged.Added)

	// 6. 保存
	if r.cfg.Output.DryRun {
		log.Info("dry run, dataset not written", "total", report.Total)
	} else {
		backup, err := r.store.Save(records)
		report.BackupPath = backup
		if err != nil {
			return report, fmt.Errorf("save dataset: %w", err)
		}
	}

	// 7. Notion
	if r.notion != nil && len(report.addedRecords) > 0 && !r.cfg.Output.DryRun {
		n, err := r.notion.Mirror(ctx, report.addedRecords)
		report.NotionMirrored = n
		if err != nil {
			warnf("Notion mirror incomplete (%d/%d): %v", n, len(report.addedRecords), err)
		}
	}

	report.FinishedAt = time.Now().UTC()

	// 8. メール
	if r.email != nil && report.HasFailures() {
		if err := r.email.SendRunReport(ctx, report); err != nil {
			warnf("failed to send failure notification: %v", err)
		}
	}

	log.Info("pipeline run finished",
		"previous", report.Previous,
		"collected", report.Collected,
		"added", report.Added,
		"merged", report.Merged,
		"dropped", report.Dropped,
		"total", report.Total,
		"sources_failed", len(report.SourcesFailed),
		"translated", report.Translation.Translated,
		"fallback_used", report.Translation.FallbackUsed,
		"rate_limited", report.Translation.RateLimited,
		"forbidden", report.Translation.Forbidden,
		"elapsed", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

// pickRecords returns the records whose URL is in keys, in dataset order.
func pickRecords(records []Record, keys []string) []Record {
	if len(keys) == 0 {
		return nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []Record
	for _, r := range records {
		if want[r.URL] {
			out = append(out, r)
		}
	}
	return out
}
