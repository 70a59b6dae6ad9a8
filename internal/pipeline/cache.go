// =============================================================================
// cache.go - 翻訳メモ（SQLite）
// =============================================================================
//
// 一度得た翻訳を (ターゲット言語, 正規化済み原文) をキーに保存し、次回以降は
// API を呼ばずに再利用する。同じタイトルが複数ソースから届く場合や、
// データセットを作り直す場合に API の無料枠を節約できる。
//
// 原文と同一の「翻訳」は保存しない（Chain が保存前に弾く）。
//
// =============================================================================
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const translationCacheSchema = `
CREATE TABLE IF NOT EXISTS translations (
	target      TEXT NOT NULL,
	source_text TEXT NOT NULL,
	translated  TEXT NOT NULL,
	provider    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (target, source_text)
)`

// TranslationCache is a persistent memo of genuine translations.
type TranslationCache struct {
	db *sql.DB
}

// OpenTranslationCache opens (and creates) the cache database at path.
func OpenTranslationCache(path string) (*TranslationCache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(translationCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &TranslationCache{db: db}, nil
}

func (c *TranslationCache) Close() error {
	return c.db.Close()
}

// Get returns the memoized translation of text into target.
func (c *TranslationCache) Get(ctx context.Context, target, text string) (string, bool, error) {
	var out string
	err := c.db.QueryRowContext(ctx,
		"SELECT translated FROM translations WHERE target = ? AND source_text = ?",
		strings.ToUpper(target), normalizeText(text),
	).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get translation: %w", err)
	}
	return out, true, nil
}

// Put stores a translation, replacing any earlier one for the same text.
func (c *TranslationCache) Put(ctx context.Context, target, text, translated, provider string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO translations (target, source_text, translated, provider, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (target, source_text) DO UPDATE SET
		   translated = excluded.translated,
		   provider   = excluded.provider,
		   created_at = excluded.created_at`,
		strings.ToUpper(target), normalizeText(text), translated, provider,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put translation: %w", err)
	}
	return nil
}

// Len returns the number of memoized translations.
func (c *TranslationCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM translations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count translations: %w", err)
	}
	return n, nil
}
