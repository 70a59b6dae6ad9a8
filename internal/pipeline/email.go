// =============================================================================
// email.go - メール送信モジュール
// =============================================================================
//
// このファイルはGmail SMTPを使用したメール送信機能を提供します。
// 実行中にソースの取得失敗や翻訳の停止があった場合に、実行レポートを
// 運用担当者へ送る。
//
// =============================================================================
// 【必要な環境変数】
// =============================================================================
//
//   EMAIL_FROM     - 送信元メールアドレス（Gmail）
//   EMAIL_PASSWORD - Gmailアプリパスワード（通常のパスワードではない！）
//   EMAIL_TO       - 送信先メールアドレス（カンマ区切りで複数可）
//
// 3つ全てが設定されている場合のみ有効。
//
// =============================================================================
// 【送信】
// =============================================================================
//
// - Gmail SMTPはポート587（STARTTLS）を使用
// - 指数バックオフ: 失敗時に2秒→4秒と待機時間を増やしてリトライ（最大3回）
// - メッセージはRFC 5322形式のプレーンテキスト
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// =============================================================================
// 設定・構造体
// =============================================================================

// EmailConfig はメール送信の設定を保持する
type EmailConfig struct {
	From     string   // 送信元メールアドレス
	Password string   // Gmailアプリパスワード
	To       []string // 送信先メールアドレス（複数可）
	SMTPHost string   // SMTPサーバーホスト（"smtp.gmail.com"）
	SMTPPort string   // SMTPポート（"587"）
}

// sendMailFunc は smtp.SendMail と同じシグネチャ（テストで差し替える）
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender はメール送信を担当する
type EmailSender struct {
	config     EmailConfig
	sendMail   sendMailFunc
	maxRetries int
	backoff    time.Duration // 1回目のリトライまでの待機時間（以後2倍）
}

// =============================================================================
// 初期化
// =============================================================================

// NewEmailSender は新しいメール送信者を作成する
//
// 【注意】通常のGmailパスワードは使用できません。
// 必ずアプリパスワードを使用してください。
func NewEmailSender(from, password, to string) (*EmailSender, error) {
	if from == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}
	if password == "" {
		return nil, fmt.Errorf("EMAIL_PASSWORD is required (use Gmail App Password)")
	}
	toList := splitList(to)
	if len(toList) == 0 {
		return nil, fmt.Errorf("EMAIL_TO is required")
	}

	return &EmailSender{
		config: EmailConfig{
			From:     from,
			Password: password,
			To:       toList,
			SMTPHost: "smtp.gmail.com",
			SMTPPort: "587", // TLSポート
		},
		sendMail:   smtp.SendMail,
		maxRetries: 3,
		backoff:    2 * time.Second,
	}, nil
}

// =============================================================================
// 実行レポート
// =============================================================================

// SendRunReport mails a summary of a degraded run.
func (es *EmailSender) SendRunReport(ctx context.Context, report *RunReport) error {
	if report == nil {
		return fmt.Errorf("no report to send")
	}

	subject := fmt.Sprintf("[curioscience] %d source(s) failed, %d new article(s) - %s",
		len(report.SourcesFailed), report.Added, report.StartedAt.Format("2006-01-02 15:04"))
	if report.Translation.Halted {
		subject += " (translation halted)"
	}

	msg := es.buildEmailMessage(subject, generateReportBody(report))
	return es.sendWithRetry(ctx, msg)
}

// generateReportBody はプレーンテキストのレポート本文を生成する
//
// 【出力フォーマット】
//
//	curioscience pipeline run 5f0c...
//	Started: 2026-01-05T12:00:00Z
//
//	Dataset:      1200 records (+15 new, 30 merged, 2 dropped)
//	Collected:    240 candidates from 8 source(s)
//	Translation:  15 translated (3 via fallback, 4 from cache)
//	              rate limited: 1, forbidden: 0, halted: false
//
//	Failed sources:
//	  - Nature: GET https://...: status 503 Service Unavailable
//
//	New articles:
//	  [1] Study finds X
//	      Estudio halla X
//	      https://...
func generateReportBody(r *RunReport) string {
	var sb strings.Builder
	t := r.Translation

	fmt.Fprintf(&sb, "curioscience pipeline run %s\n", r.RunID)
	fmt.Fprintf(&sb, "Started: %s\n\n", r.StartedAt.Format(time.RFC3339))

	fmt.Fprintf(&sb, "Dataset:      %d records (+%d new, %d merged, %d dropped)\n", r.Total, r.Added, r.Merged, r.Dropped)
	fmt.Fprintf(&sb, "Collected:    %d candidates from %d source(s)\n", r.Collected, r.SourcesOK)
	fmt.Fprintf(&sb, "Translation:  %d translated (%d via fallback, %d from cache)\n", t.Translated, t.FallbackUsed, t.CacheHits)
	fmt.Fprintf(&sb, "              rate limited: %d, forbidden: %d, halted: %v\n", t.RateLimited, t.Forbidden, t.Halted)

	if len(r.SourcesFailed) > 0 {
		sb.WriteString("\nFailed sources:\n")
		for _, e := range r.SourcesFailed {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}

	if added := r.AddedRecords(); len(added) > 0 {
		sb.WriteString("\nNew articles:\n")
		for i, rec := range added {
			if i == 50 {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(added)-50)
				break
			}
			fmt.Fprintf(&sb, "  [%d] %s\n", i+1, rec.Title)
			if rec.TitleTranslated != "" {
				fmt.Fprintf(&sb, "      %s\n", rec.TitleTranslated)
			}
			fmt.Fprintf(&sb, "      %s\n", rec.URL)
		}
	}

	sb.WriteString("\n---\nGenerated by curioscience pipeline\n")
	return sb.String()
}

// =============================================================================
// メールメッセージ構築
// =============================================================================

// buildEmailMessage はRFC 5322準拠のメールメッセージを構築する
//
// 注意: ヘッダーと本文は空行（\r\n）で区切る
func (es *EmailSender) buildEmailMessage(subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", es.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(es.config.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n") // ヘッダーと本文の区切り
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(msg.String())
}

// =============================================================================
// 送信（リトライ付き）
// =============================================================================

// sendWithRetry は指数バックオフでリトライしながらメールを送信する
func (es *EmailSender) sendWithRetry(ctx context.Context, msg []byte) error {
	var lastErr error
	wait := es.backoff

	for i := 0; i < es.maxRetries; i++ {
		if i > 0 {
			infof("retrying email send in %v", wait)
			select {
			case <-ctx.Done():
				return fmt.Errorf("email send canceled: %w", ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		}

		err := es.send(msg)
		if err == nil {
			return nil
		}

		lastErr = err
		warnf("Email send failed (attempt %d/%d): %v", i+1, es.maxRetries, err)
	}

	return fmt.Errorf("failed to send email after %d retries: %w", es.maxRetries, lastErr)
}

// send はGmail SMTPを使用してメールを送信する（PLAIN認証）
func (es *EmailSender) send(msg []byte) error {
	auth := smtp.PlainAuth("", es.config.From, es.config.Password, es.config.SMTPHost)
	addr := es.config.SMTPHost + ":" + es.config.SMTPPort

	if err := es.sendMail(addr, auth, es.config.From, es.config.To, msg); err != nil {
		return fmt.Errorf("SMTP send failed: %w (check EMAIL_PASSWORD is a Gmail App Password)", err)
	}
	return nil
}
