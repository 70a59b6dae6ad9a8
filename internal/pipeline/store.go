// =============================================================================
// store.go - データセットの読み書き
// =============================================================================
//
// 【ファイル】
//   FINAL_JSON                         公開データセット（静的サイトが読む）
//   BACKUP_DIR/<base>_YYYYmmdd_HHMMSS.json  上書き前のバックアップ
//   DAILY_DIR/YYYY-MM-DD.json          その日に収集した候補のスナップショット
//
// 【読み込みの規則】
//   ファイルが無い / 空 / null  → 空のデータセット（初回実行）
//   JSONとして壊れている       → エラー（実行を中止。壊れた履歴を上書きしない）
//   配列の一部の要素だけが不正   → その要素は空レコード（Reconcile が捨てて数える）
//
// 【書き込みの規則】
//   既存ファイルがあれば先にバックアップを取り、一時ファイル経由で置き換える。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMalformedDataset is returned by Load when the file is not a JSON array of records.
var ErrMalformedDataset = errors.New("malformed dataset")

// Store persists the canonical dataset.
type Store struct {
	Path      string
	BackupDir string // 空ならバックアップを取らない

	now func() time.Time
}

func NewStore(path, backupDir string) *Store {
	return &Store{Path: path, BackupDir: backupDir, now: time.Now}
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Load reads the previous dataset. A missing or empty file is an empty dataset.
func (s *Store) Load() ([]Record, error) {
	return loadRecords(s.Path)
}

// loadRecords は articles.json 形式のファイルを読む
func loadRecords(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	// 配列でなければ壊れたファイル。要素単位の不正（数値、文字列など）は
	// 空のレコードになり、Reconcile が捨てて数える
	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDataset, path, err)
	}
	return records, nil
}

// Backup copies the current canonical file into BackupDir and returns the
// backup path ("" when there was nothing to back up).
func (s *Store) Backup() (string, error) {
	if s.BackupDir == "" {
		return "", nil
	}
	src, err := os.Open(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
	name := fmt.Sprintf("%s_%s.json", base, s.clock().Format("20060102_150405"))
	dstPath := filepath.Join(s.BackupDir, name)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	return dstPath, nil
}

// Save backs up the existing file and atomically replaces it with records.
func (s *Store) Save(records []Record) (backupPath string, err error) {
	backupPath, err = s.Backup()
	if err != nil {
		return "", err
	}
	if records == nil {
		records = []Record{}
	}
	if err := writeJSONFile(s.Path, records); err != nil {
		return backupPath, fmt.Errorf("write %s: %w", s.Path, err)
	}
	return backupPath, nil
}

// SaveSnapshot writes the candidates collected today to dir/YYYY-MM-DD.json.
func (s *Store) SaveSnapshot(dir string, records []Record) (string, error) {
	if dir == "" {
		return "", nil
	}
	if records == nil {
		records = []Record{}
	}
	path := filepath.Join(dir, s.clock().Format("2006-01-02")+".json")
	if err := writeJSONFile(path, records); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadBatchFile reads an extra incoming batch in the dataset format. A missing
// file is an empty batch.
func LoadBatchFile(path string) ([]Record, error) {
	return loadRecords(path)
}
