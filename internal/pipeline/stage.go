// =============================================================================
// stage.go - 翻訳ステージ
// =============================================================================
//
// 統合済みデータセットから「翻訳が無いレコード」を選び、Chain で翻訳して
// 翻訳だけを含む部分レコードのバッチを返す。
//
//	{url, title, title_es[, summary, summary_es]}
//
// このバッチは通常の入力バッチとして Reconcile に渡される。翻訳を採用するか
// どうか（原文と同一なら捨てる）の判断は Reconcile の同一性ガードだけが行う。
//
// 【対象の選び方】
//   - title_es が空のレコード（summary_es は TRANSLATE_SUMMARIES=1 のときだけ）
//   - ソースの原語がターゲット言語と同じならスキップ
//   - 入力順（新しい記事から）に最大 MaxItems 件
//   - Chain が停止したらそこで打ち切る（残りは次回の実行で）
//
// =============================================================================
package pipeline

import (
	"context"
	"strings"
)

// TranslationStage selects untranslated records and runs them through a Chain.
type TranslationStage struct {
	Chain              *Chain
	Classifier         LanguageClassifier
	TargetLang         string
	MaxItems           int  // 1回の実行で翻訳を試みるレコード数の上限（0 = 無制限）
	TranslateSummaries bool // summary_es も埋める
}

// needsTitle reports whether r lacks a usable title translation.
func needsTitle(r Record) bool {
	return !isBlank(r.Title) && (isBlank(r.TitleTranslated) || sameText(r.TitleTranslated, r.Title))
}

// needsSummary reports whether r lacks a usable summary translation.
func needsSummary(r Record) bool {
	return !isBlank(r.Summary) && (isBlank(r.SummaryTranslated) || sameText(r.SummaryTranslated, r.Summary))
}

// Run translates what it can and returns the partial-record batch.
func (s *TranslationStage) Run(ctx context.Context, records []Record) ([]Record, TranslationStats) {
	var stats TranslationStats
	if s.Chain == nil {
		return nil, stats
	}
	target := strings.ToUpper(s.TargetLang)

	var batch []Record
	for _, r := range records {
		wantTitle := needsTitle(r)
		wantSummary := s.TranslateSummaries && needsSummary(r)
		if !wantTitle && !wantSummary {
			continue
		}

		hint, known := "", false
		if s.Classifier != nil {
			hint, known = s.Classifier.ClassifySource(r.Source)
		}
		if known && strings.EqualFold(hint, target) {
			continue
		}
		stats.Pending++

		if s.Chain.Halted() || ctx.Err() != nil {
			continue
		}
		if s.MaxItems > 0 && stats.Attempted >= s.MaxItems {
			continue
		}
		stats.Attempted++

		out := Record{URL: r.URL}
		if wantTitle {
			if res, ok := s.Chain.Translate(ctx, r.Title, target, hint); ok {
				out.Title = r.Title
				out.TitleTranslated = res.Text
				debugf("translated title via %s: %s", res.Provider, truncateString(r.Title, 60))
			}
		}
		if wantSummary {
			if res, ok := s.Chain.Translate(ctx, r.Summary, target, hint); ok {
				out.Summary = r.Summary
				out.SummaryTranslated = res.Text
			}
		}
		if out.TitleTranslated != "" || out.SummaryTranslated != "" {
			batch = append(batch, out)
		}
	}

	cs := s.Chain.Stats()
	stats.Translated = cs.Translated
	stats.CacheHits = cs.CacheHits
	stats.FallbackUsed = cs.FallbackUsed
	stats.RateLimited = cs.RateLimited
	stats.Forbidden = cs.Forbidden
	stats.Transient = cs.Transient
	stats.Halted = cs.Halted

	if stats.Halted {
		warnf("translation halted: %d of %d pending record(s) left untranslated for the next run",
			stats.Pending-len(batch), stats.Pending)
	}
	return batch, stats
}
