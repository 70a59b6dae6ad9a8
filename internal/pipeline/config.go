// =============================================================================
// config.go - パイプライン設定
// =============================================================================
//
// 設定は「環境変数（.env を含む）→ CLIフラグで上書き」の順に決まる。
// 一度だけ組み立てた PipelineConfig を各ステージに渡す（グローバル変数は使わない）。
//
// 【設定グループ】
//   - InputConfig:       取得ソースと追加バッチ
//   - TranslationConfig: 翻訳プロバイダ、ペース、上限
//   - OutputConfig:      データセット、バックアップ、スナップショット
//   - NotifyConfig:      Notion ミラーとメール通知
//
// 認証情報が無いプロバイダ・通知先は「無効」になるだけで、実行は失敗しない。
//
// =============================================================================
package pipeline

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// 設定構造体
// =============================================================================

// PipelineConfig はパイプラインの全設定を保持する
type PipelineConfig struct {
	Input       InputConfig
	Translation TranslationConfig
	Output      OutputConfig
	Notify      NotifyConfig
	LogLevel    string
}

// InputConfig は入力ソースに関する設定
type InputConfig struct {
	// SourcesFile はソース定義のYAML（空なら組み込みリスト）
	SourcesFile string

	// SourcesRaw はカンマ区切りのソース名（空 = 全て、"none" = 取得しない）
	SourcesRaw string

	// BatchFilesRaw はカンマ区切りの追加バッチファイル
	BatchFilesRaw string

	PerSource   int
	Concurrency int
	HTTPTimeout time.Duration
	UserAgent   string
}

// SourceNames はSourcesRawをパースしてスライスで返す
func (c *InputConfig) SourceNames() []string {
	if c.FetchDisabled() {
		return nil
	}
	return splitList(c.SourcesRaw)
}

// FetchDisabled reports whether SOURCES=none.
func (c *InputConfig) FetchDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.SourcesRaw), "none")
}

// BatchFiles returns the extra batch file paths.
func (c *InputConfig) BatchFiles() []string {
	return splitList(c.BatchFilesRaw)
}

// TranslationConfig は翻訳に関する設定
type TranslationConfig struct {
	Disabled           bool
	TargetLang         string
	Interval           time.Duration // API呼び出しの最小間隔
	TitlesPerRun       int
	TranslateSummaries bool

	DeepLAPIKey   string
	DeepLEndpoint string
	DisableDeepL  bool

	LibreTranslateURL    string
	LibreTranslateAPIKey string

	DisableMyMemory  bool
	MyMemoryEndpoint string

	FallbackOnRateLimit bool
	FallbackMax         int

	// CachePath は翻訳メモ（SQLite）のパス（空なら使わない）
	CachePath string
}

// OutputConfig は出力に関する設定
type OutputConfig struct {
	FinalJSON string
	BackupDir string
	DailyDir  string // 空ならスナップショットを書かない
	DryRun    bool   // true なら何も書き込まない
}

// NotifyConfig は通知に関する設定
type NotifyConfig struct {
	NotionToken      string
	NotionDatabaseID string

	EmailFrom     string
	EmailPassword string
	EmailTo       string
}

// NotionEnabled reports whether both Notion settings are present.
func (c *NotifyConfig) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// EmailEnabled reports whether all email settings are present.
func (c *NotifyConfig) EmailEnabled() bool {
	return c.EmailFrom != "" && c.EmailPassword != "" && c.EmailTo != ""
}

// =============================================================================
// 環境変数
// =============================================================================

// LoadConfig builds the configuration from the environment.
func LoadConfig() *PipelineConfig {
	interval := envInt("SLEEP_MS", envInt("DEEPL_SLEEP_MS", 1200))

	return &PipelineConfig{
		Input: InputConfig{
			SourcesFile:   os.Getenv("SOURCES_FILE"),
			SourcesRaw:    os.Getenv("SOURCES"),
			BatchFilesRaw: os.Getenv("BATCH_FILES"),
			PerSource:     envInt("PER_SOURCE", 30),
			Concurrency:   envInt("FETCH_CONCURRENCY", 4),
			HTTPTimeout:   time.Duration(envInt("HTTP_TIMEOUT_SEC", 20)) * time.Second,
			UserAgent:     envString("USER_AGENT", "curioscience-bot/1.0"),
		},
		Translation: TranslationConfig{
			Disabled:             envBool("DISABLE_TRANSLATION", false),
			TargetLang:           strings.ToUpper(envString("TARGET_LANG", "ES")),
			Interval:             time.Duration(interval) * time.Millisecond,
			TitlesPerRun:         envInt("TITLES_PER_RUN", 500),
			TranslateSummaries:   envBool("TRANSLATE_SUMMARIES", false),
			DeepLAPIKey:          os.Getenv("DEEPL_API_KEY"),
			DeepLEndpoint:        os.Getenv("DEEPL_ENDPOINT"),
			DisableDeepL:         envBool("DISABLE_DEEPL", false),
			LibreTranslateURL:    os.Getenv("LIBRETRANSLATE_URL"),
			LibreTranslateAPIKey: os.Getenv("LIBRETRANSLATE_API_KEY"),
			DisableMyMemory:      envBool("DISABLE_MYMEMORY", false),
			MyMemoryEndpoint:     os.Getenv("MYMEMORY_ENDPOINT"),
			FallbackOnRateLimit:  envBool("FALLBACK_ON_RATELIMIT", true),
			FallbackMax:          envInt("FALLBACK_MAX", 300),
			CachePath:            os.Getenv("TRANSLATION_CACHE"),
		},
		Output: OutputConfig{
			FinalJSON: envString("FINAL_JSON", "workspace/astro/public/articles.json"),
			BackupDir: envString("BACKUP_DIR", "workspace/astro/backups"),
			DailyDir:  os.Getenv("DAILY_DIR"),
		},
		Notify: NotifyConfig{
			NotionToken:      os.Getenv("NOTION_TOKEN"),
			NotionDatabaseID: os.Getenv("NOTION_DATABASE_ID"),
			EmailFrom:        os.Getenv("EMAIL_FROM"),
			EmailPassword:    os.Getenv("EMAIL_PASSWORD"),
			EmailTo:          os.Getenv("EMAIL_TO"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt は数値の環境変数を読む（不正な値はデフォルト値）
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		warnf("ignoring invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// envBool は "1", "true", "yes", "on" を真とみなす
func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		warnf("ignoring invalid %s=%q, using %v", key, v, def)
		return def
	}
}

// =============================================================================
// フラグ
// =============================================================================

// BindFlags registers CLI flags whose defaults are the current values, so flags
// override the environment.
func (c *PipelineConfig) BindFlags(fs *flag.FlagSet) {
	// Input flags
	fs.StringVar(&c.Input.SourcesFile, "sourcesFile", c.Input.SourcesFile, "YAML source list (default: built-in sources)")
	fs.StringVar(&c.Input.SourcesRaw, "sources", c.Input.SourcesRaw, "comma-separated source names to fetch; 'none' skips fetching")
	fs.StringVar(&c.Input.BatchFilesRaw, "batch", c.Input.BatchFilesRaw, "comma-separated extra batch files to merge")
	fs.IntVar(&c.Input.PerSource, "perSource", c.Input.PerSource, "max items per source")
	fs.IntVar(&c.Input.Concurrency, "concurrency", c.Input.Concurrency, "sources fetched concurrently")
	fs.DurationVar(&c.Input.HTTPTimeout, "timeout", c.Input.HTTPTimeout, "per-request HTTP timeout")

	// Translation flags
	fs.BoolVar(&c.Translation.Disabled, "noTranslate", c.Translation.Disabled, "skip the translation stage")
	fs.StringVar(&c.Translation.TargetLang, "targetLang", c.Translation.TargetLang, "translation target language")
	fs.IntVar(&c.Translation.TitlesPerRun, "titlesPerRun", c.Translation.TitlesPerRun, "max records translated per run (0 = unlimited)")
	fs.BoolVar(&c.Translation.TranslateSummaries, "translateSummaries", c.Translation.TranslateSummaries, "also translate summaries")
	fs.StringVar(&c.Translation.CachePath, "translationCache", c.Translation.CachePath, "SQLite translation memo path")

	// Output flags
	fs.StringVar(&c.Output.FinalJSON, "out", c.Output.FinalJSON, "canonical dataset path")
	fs.StringVar(&c.Output.BackupDir, "backupDir", c.Output.BackupDir, "backup directory (empty disables backups)")
	fs.StringVar(&c.Output.DailyDir, "dailyDir", c.Output.DailyDir, "daily snapshot directory (empty disables)")
	fs.BoolVar(&c.Output.DryRun, "dryRun", c.Output.DryRun, "run everything but write nothing")

	fs.StringVar(&c.LogLevel, "logLevel", c.LogLevel, "debug|info|warn|error")
}

// Validate rejects settings that cannot work.
func (c *PipelineConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Output.FinalJSON) == "" {
		errs = append(errs, errors.New("FINAL_JSON must not be empty"))
	}
	if c.Input.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Input.Concurrency))
	}
	if c.Input.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP timeout must be positive, got %s", c.Input.HTTPTimeout))
	}
	if strings.TrimSpace(c.Translation.TargetLang) == "" {
		errs = append(errs, errors.New("TARGET_LANG must not be empty"))
	}
	return errors.Join(errs...)
}
