// =============================================================================
// Lambda: refresh-articles
// =============================================================================
//
// パイプラインを1回実行し、articles.json を更新するLambda関数
// （EventBridge のスケジュール実行を想定）
//
// 環境変数: cmd/pipeline と同じ（FINAL_JSON, SOURCES, DEEPL_API_KEY, ...）
//
// Lambda で書き込めるのは /tmp だけなので、FINAL_JSON / BACKUP_DIR が
// 未設定の場合は /tmp 以下を使う。
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"curioscience/internal/logger"
	"curioscience/internal/pipeline"
)

// Response はLambdaレスポンス
type Response struct {
	StatusCode    int      `json:"statusCode"`
	Message       string   `json:"message"`
	RunID         string   `json:"runId,omitempty"`
	Added         int      `json:"added"`
	Total         int      `json:"total"`
	Translated    int      `json:"translated"`
	SourcesFailed []string `json:"sourcesFailed,omitempty"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event any) (Response, error) {
	cfg := loadConfig()
	logger.Init(cfg.LogLevel)
	slog.Info("starting refresh-articles Lambda", "dataset", cfg.Output.FinalJSON)

	return handle(ctx, cfg)
}

// handle は設定済みの cfg でパイプラインを実行する
func handle(ctx context.Context, cfg *pipeline.PipelineConfig) (Response, error) {
	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	defer runner.Close()

	report, err := runner.Run(ctx)
	if err != nil {
		resp := Response{StatusCode: 500, Message: err.Error()}
		if report != nil {
			resp.RunID = report.RunID
		}
		return resp, err
	}

	return Response{
		StatusCode:    200,
		Message:       fmt.Sprintf("dataset refreshed: %d new, %d total", report.Added, report.Total),
		RunID:         report.RunID,
		Added:         report.Added,
		Total:         report.Total,
		Translated:    report.Translation.Translated,
		SourcesFailed: report.SourcesFailed,
	}, nil
}

// loadConfig は環境変数から設定を読み込み、書き込み先を /tmp に寄せる
func loadConfig() *pipeline.PipelineConfig {
	cfg := pipeline.LoadConfig()
	if os.Getenv("FINAL_JSON") == "" {
		cfg.Output.FinalJSON = "/tmp/articles.json"
	}
	if os.Getenv("BACKUP_DIR") == "" {
		cfg.Output.BackupDir = "/tmp/backups"
	}
	return cfg
}

func main() {
	lambda.Start(Handler)
}
