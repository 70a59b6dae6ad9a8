// =============================================================================
// reconcile.go - データセットの統合（履歴 + 新規バッチ）
// =============================================================================
//
// 前回公開したデータセットと今回の新規バッチ群から、次に公開するデータセットを
// 作る。I/O は一切行わない純粋関数で、同じ入力に対して何度実行しても同じ結果になる。
//
// 【アルゴリズム】
//  1. previous → batches[0] → batches[1] ... の順に1列に並べる
//     （同じキーなら履歴側が必ず先に現れる）
//  2. 識別キー → Record のマップに左から畳み込む
//     - 初出: そのまま登録（publishedAt はこの時点で正規化）
//     - 2回目以降: フィールド単位のマージ規則で既存エントリに統合
//  3. キーが空 / タイトルが空のエントリは捨てる（件数だけ数える）
//  4. publishedAt の降順に並べる。日付不明は最後（入力順を維持）
//
// 【フィールド単位のマージ規則】
//
//	title / summary / source   新しい値が空でなければ上書き（空で消さない）
//	publishedAt                最初に得られた値が勝つ（以後変更しない）
//	                           解釈できない値もそのまま残す（並び順では日付不明扱い）
//	title_es / summary_es      空、または原文と同一の翻訳は「翻訳なし」扱い
//	Extra                      新しい値が空でなければ上書き
//
// 翻訳に失敗して原文がそのまま返ってきたバッチが、過去の正しい翻訳を
// 上書きしないようにするのが最大の目的。
//
// =============================================================================
package pipeline

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ReconcileResult は Reconcile の結果と統計
type ReconcileResult struct {
	Records []Record // 公開順（publishedAt 降順）
	Added   []string // previous に無かった新規キー（Records の順）
	Merged  int      // 既存エントリに統合された出現回数
	Dropped int      // キーまたはタイトルが空で捨てたエントリ数
}

// Reconcile merges incoming batches into the previous dataset and returns the
// next dataset. It never mutates its inputs.
func Reconcile(previous []Record, batches ...[]Record) []Record {
	return ReconcileWithReport(previous, batches...).Records
}

// ReconcileWithReport is Reconcile plus counts of what happened.
func ReconcileWithReport(previous []Record, batches ...[]Record) ReconcileResult {
	var res ReconcileResult

	index := map[string]int{}
	historical := map[string]bool{}
	entries := make([]Record, 0, len(previous))

	fold := func(r Record, fromPrevious bool) {
		key := NormalizeIdentity(r.URL)
		if key == "" {
			res.Dropped++
			return
		}
		if i, ok := index[key]; ok {
			entries[i] = mergeRecords(entries[i], r)
			res.Merged++
			return
		}
		index[key] = len(entries)
		entries = append(entries, seedRecord(key, r))
		if fromPrevious {
			historical[key] = true
		}
	}

	for _, r := range previous {
		fold(r, true)
	}
	for _, batch := range batches {
		for _, r := range batch {
			fold(r, false)
		}
	}

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		if isBlank(e.Title) {
			res.Dropped++
			continue
		}
		out = append(out, e)
	}
	sortByPublishedDesc(out)

	for _, r := range out {
		if !historical[r.URL] {
			res.Added = append(res.Added, r.URL)
		}
	}
	res.Records = out
	return res
}

// seedRecord はキーの初出時に登録するエントリを作る
func seedRecord(key string, r Record) Record {
	title := strings.TrimSpace(r.Title)
	summary := strings.TrimSpace(r.Summary)
	return Record{
		URL:               key,
		Title:             title,
		TitleTranslated:   pickTranslation("", r.TitleTranslated, title),
		Summary:           summary,
		SummaryTranslated: pickTranslation("", r.SummaryTranslated, summary),
		Source:            strings.TrimSpace(r.Source),
		PublishedAt:       resolveTimestamp(r.PublishedAt),
		Extra:             mergeExtra(nil, r.Extra),
	}
}

// mergeRecords は既存エントリ prev に後から現れた inc を統合する
func mergeRecords(prev, inc Record) Record {
	merged := prev

	merged.Title = pickNonBlank(prev.Title, inc.Title)
	merged.Summary = pickNonBlank(prev.Summary, inc.Summary)
	merged.Source = pickNonBlank(prev.Source, inc.Source)

	// 日付は最初に得られた値が勝つ
	if merged.PublishedAt == "" {
		merged.PublishedAt = resolveTimestamp(inc.PublishedAt)
	}

	// 翻訳の比較対象は inc 自身の原文（無ければ既存の原文）
	titleRef := pickNonBlank(prev.Title, inc.Title)
	summaryRef := pickNonBlank(prev.Summary, inc.Summary)
	merged.TitleTranslated = pickTranslation(prev.TitleTranslated, inc.TitleTranslated, titleRef)
	merged.SummaryTranslated = pickTranslation(prev.SummaryTranslated, inc.SummaryTranslated, summaryRef)

	merged.Extra = mergeExtra(prev.Extra, inc.Extra)
	return merged
}

// pickNonBlank は inc が空でなければ inc、そうでなければ prev を返す
func pickNonBlank(prev, inc string) string {
	if isBlank(inc) {
		return prev
	}
	return strings.TrimSpace(inc)
}

// pickTranslation は翻訳の同一性ガード
//
// inc が空、または原文 source と同一（翻訳失敗で原文が返ってきた「偽の翻訳」）の
// 場合は prev を維持する。
func pickTranslation(prev, inc, source string) string {
	if isBlank(inc) {
		return prev
	}
	if sameText(inc, source) {
		return prev
	}
	return strings.TrimSpace(inc)
}

// mergeExtra は未知フィールドを統合する（新しい値が空でなければ上書き）
//
// 入力のマップは共有せず、必ず新しいマップを返す。
func mergeExtra(prev, inc map[string]json.RawMessage) map[string]json.RawMessage {
	if len(prev) == 0 && len(inc) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(prev)+len(inc))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range inc {
		if blankJSON(v) {
			if _, ok := out[k]; ok {
				continue
			}
		}
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// blankJSON reports whether v is null or an empty/whitespace string.
func blankJSON(v json.RawMessage) bool {
	var s string
	switch trimmed := strings.TrimSpace(string(v)); {
	case trimmed == "" || trimmed == "null":
		return true
	case json.Unmarshal(v, &s) == nil:
		return isBlank(s)
	default:
		return false
	}
}

// sortByPublishedDesc は公開日時の降順に並べる（日付不明は最後、安定ソート）
func sortByPublishedDesc(records []Record) {
	times := make(map[string]time.Time, len(records))
	for _, r := range records {
		if t, err := time.Parse(time.RFC3339, r.PublishedAt); err == nil {
			times[r.URL] = t
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		ti, iok := times[records[i].URL]
		tj, jok := times[records[j].URL]
		switch {
		case iok && jok:
			return ti.After(tj)
		case iok:
			return true
		default:
			return false
		}
	})
}
