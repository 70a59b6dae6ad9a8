// =============================================================================
// main.go - curioscience パイプラインのエントリーポイント
// =============================================================================
//
// 科学ニュースサイト用のデータセット（articles.json）を更新するバッチ処理。
// 定期実行（cron / GitHub Actions）を想定している。
//
// =============================================================================
// 【処理フロー】
// =============================================================================
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  1. 設定    │ -> │  2. 収集    │ -> │  3. 統合    │
//   │  読み込み   │    │  RSS/API    │    │  Reconcile  │
//   └─────────────┘    └─────────────┘    └─────────────┘
//          │                  │                  │
//          v                  v                  v
//   .env読み込み        全ソースを並列に    URLで重複排除、
//   環境変数 + フラグ   取得               履歴を壊さず統合
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  4. 翻訳    │ -> │  5. 保存    │ -> │  6. 通知    │
//   │  DeepL 他   │    │  JSON       │    │  Notion/Mail│
//   └─────────────┘    └─────────────┘    └─────────────┘
//
// =============================================================================
// 【使用例】
// =============================================================================
//
//	./pipeline                                  # 組み込みソース、.env の設定で実行
//	./pipeline -sources=Nature,arXiv -dryRun    # 一部のソースだけ、書き込み無し
//	./pipeline -sources=none -batch=a.json,b.json  # 取得せずバッチファイルだけ統合
//
// 進捗ログは標準エラー出力、実行レポート（JSON）は標準出力に出る。
// 終了コード 1 は致命的エラー（前回データの読み込み失敗・保存失敗）のみ。
//
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv" // .env ファイル読み込み

	"curioscience/internal/logger"
	"curioscience/internal/pipeline"
)

func main() {
	// .env ファイルが存在しない場合は環境変数だけで続行する
	envErr := godotenv.Load()

	cfg := pipeline.LoadConfig()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	log := logger.Init(cfg.LogLevel)
	if envErr != nil {
		log.Debug(".env file not loaded, using environment variables only", "err", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		fatalf("setting up pipeline: %v", err)
	}
	defer runner.Close()

	report, err := runner.Run(ctx)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		runner.Close()
		fatalf("%v", err)
	}
}

// fatalf はエラーメッセージを出力して終了する
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	os.Exit(1)
}
