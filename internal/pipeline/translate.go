// =============================================================================
// translate.go - 翻訳プロバイダのチェーン
// =============================================================================
//
// 翻訳プロバイダ（DeepL、LibreTranslate、MyMemory）を「順序付きの戦略リスト」と
// して扱い、成功するまで順に試す。
//
// =============================================================================
// 【チェーンの規則】
// =============================================================================
//
//   1. キャッシュ（SQLite）にあればそれを返す（API呼び出し無し）
//   2. プライマリ（DeepL）を試す
//   3. 失敗・原文と同一の結果なら、フォールバックを順に試す
//      - フォールバックは対応する原語（EN）のソースにのみ適用
//   4. 原文と異なるテキストを返した最初のプロバイダを採用
//   5. 全滅なら「翻訳なし」（エラーではない。次回の実行で再挑戦）
//
// 【失敗の種類ごとの扱い】
//
//	Forbidden   (403)      ERROR ログ。そのプロバイダは今回の実行中は無効
//	RateLimited (429/456)  そのプロバイダは今回の実行中は無効。
//	                       フォールバック無効時は翻訳そのものを停止
//	Transient   (その他)   この1件だけスキップ
//
// 有効なプロバイダが1つも残らなければ翻訳を停止する（Halted）。
// 取得・統合・保存は停止せずに最後まで実行される。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// 失敗の種類
// =============================================================================

// FailureKind classifies a translation failure.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureRateLimited
	FailureForbidden
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate-limited"
	case FailureForbidden:
		return "forbidden"
	default:
		return "transient"
	}
}

// Sentinels matched by TranslationError.Is.
var (
	ErrTransient   = errors.New("translation failed")
	ErrRateLimited = errors.New("translation rate limited")
	ErrForbidden   = errors.New("translation forbidden")
)

// TranslationError is the typed failure returned by every Translator.
type TranslationError struct {
	Provider string
	Kind     FailureKind
	Status   int // HTTPステータス（ネットワークエラー時は0）
	Err      error
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the failure kind.
func (e *TranslationError) Is(target error) bool {
	switch e.Kind {
	case FailureRateLimited:
		return target == ErrRateLimited
	case FailureForbidden:
		return target == ErrForbidden
	default:
		return target == ErrTransient
	}
}

// failureFromStatus はHTTPステータスから失敗の種類を決める
//
//	401, 403  → Forbidden（認証情報の不備）
//	429, 456  → RateLimited（456 は DeepL のクォータ超過）
//	それ以外  → Transient
func failureFromStatus(provider string, status int) *TranslationError {
	kind := FailureTransient
	switch status {
	case 401, 403:
		kind = FailureForbidden
	case 429, 456:
		kind = FailureRateLimited
	}
	return &TranslationError{Provider: provider, Kind: kind, Status: status}
}

// transientError wraps a network/decoding error.
func transientError(provider string, err error) *TranslationError {
	return &TranslationError{Provider: provider, Kind: FailureTransient, Err: err}
}

// =============================================================================
// Translator インターフェース
// =============================================================================

// Translator is one translation provider strategy.
//
// Translate returns the translated text, or a *TranslationError. An empty string
// with a nil error means the provider had nothing to offer.
type Translator interface {
	Name() string
	// Accepts reports whether the provider can translate from sourceHint
	// ("" = unknown). Only consulted for fallback providers.
	Accepts(sourceHint string) bool
	Translate(ctx context.Context, text, targetLang, sourceHint string) (string, error)
}

// =============================================================================
// Chain
// =============================================================================

// TranslationStats は1回の実行における翻訳の統計
type TranslationStats struct {
	Pending      int  `json:"pending"`      // 翻訳が必要だった件数
	Attempted    int  `json:"attempted"`    // 試行した件数
	Translated   int  `json:"translated"`   // 翻訳を得たフィールド数
	CacheHits    int  `json:"cacheHits"`    // キャッシュから得た件数
	FallbackUsed int  `json:"fallbackUsed"` // フォールバックで得た件数
	RateLimited  int  `json:"rateLimited"`  // RateLimited の回数
	Forbidden    int  `json:"forbidden"`    // Forbidden の回数
	Transient    int  `json:"transient"`    // Transient の回数
	Halted       bool `json:"halted"`       // 途中で翻訳を停止したか
}

// ChainConfig は Chain の動作設定
type ChainConfig struct {
	Interval            time.Duration // API呼び出しの最小間隔（0 = 無制限）
	FallbackOnRateLimit bool          // プライマリがレート制限でもフォールバックを続けるか
	FallbackMax         int           // フォールバックで得る翻訳の上限（0 = 無制限）
}

// Chain tries a primary provider and then fallbacks in order.
//
// A Chain is stateful for one run: providers that report Forbidden or
// RateLimited stay disabled until a new Chain is built.
type Chain struct {
	primary   Translator
	fallbacks []Translator
	cache     *TranslationCache
	limiter   *rate.Limiter
	cfg       ChainConfig

	disabled map[string]bool
	halted   bool
	stats    TranslationStats
}

// NewChain builds a chain. primary may be nil (fallback-only mode) and cache may
// be nil (no memo).
func NewChain(primary Translator, fallbacks []Translator, cache *TranslationCache, cfg ChainConfig) *Chain {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Chain{
		primary:   primary,
		fallbacks: fallbacks,
		cache:     cache,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		disabled:  map[string]bool{},
	}
}

// Outcome は1回の翻訳の結果
type Outcome struct {
	Text     string
	Provider string
	Fallback bool
	Cached   bool
}

// Halted reports whether the chain stopped translating for this run.
func (c *Chain) Halted() bool { return c.halted }

// Stats returns the counters accumulated so far.
func (c *Chain) Stats() TranslationStats {
	s := c.stats
	s.Halted = c.halted
	return s
}

// Providers returns the names of the configured providers, primary first.
func (c *Chain) Providers() []string {
	var names []string
	if c.primary != nil {
		names = append(names, c.primary.Name())
	}
	for _, f := range c.fallbacks {
		names = append(names, f.Name())
	}
	return names
}

// Translate runs the chain for one text. ok is false when no provider produced
// a translation that differs from the input; that is not an error.
func (c *Chain) Translate(ctx context.Context, text, targetLang, sourceHint string) (Outcome, bool) {
	src := normalizeText(text)
	if src == "" || c.halted {
		return Outcome{}, false
	}

	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, targetLang, src)
		if err != nil {
			warnf("translation cache lookup failed: %v", err)
		} else if ok && !sameText(cached, src) {
			c.stats.CacheHits++
			c.stats.Translated++
			return Outcome{Text: cached, Provider: "cache", Cached: true}, true
		}
	}

	type step struct {
		t        Translator
		fallback bool
	}
	steps := make([]step, 0, len(c.fallbacks)+1)
	if c.primary != nil {
		steps = append(steps, step{c.primary, false})
	}
	for _, f := range c.fallbacks {
		steps = append(steps, step{f, true})
	}

	for _, st := range steps {
		name := st.t.Name()
		if c.disabled[name] {
			continue
		}
		if st.fallback {
			if !st.t.Accepts(sourceHint) {
				continue
			}
			if c.cfg.FallbackMax > 0 && c.stats.FallbackUsed >= c.cfg.FallbackMax {
				continue
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{}, false
		}

		out, err := st.t.Translate(ctx, src, targetLang, sourceHint)
		switch {
		case errors.Is(err, ErrForbidden):
			c.stats.Forbidden++
			c.disabled[name] = true
			errorf("translation provider %s rejected credentials, disabled for this run: %v", name, err)
			continue
		case errors.Is(err, ErrRateLimited):
			c.stats.RateLimited++
			c.disabled[name] = true
			warnf("translation provider %s is rate limited, disabled for this run: %v", name, err)
			if !st.fallback && !c.cfg.FallbackOnRateLimit {
				c.halted = true
				warnf("fallback on rate limit is off, halting translation for this run")
				return Outcome{}, false
			}
			continue
		case err != nil:
			c.stats.Transient++
			warnf("translation via %s failed: %v", name, err)
			continue
		}

		if isBlank(out) || sameText(out, src) {
			debugf("translation via %s returned the source text, trying next provider", name)
			continue
		}

		translated := normalizeWhitespace(out)
		c.stats.Translated++
		if st.fallback {
			c.stats.FallbackUsed++
		}
		if c.cache != nil {
			if err := c.cache.Put(ctx, targetLang, src, translated, name); err != nil {
				warnf("translation cache store failed: %v", err)
			}
		}
		return Outcome{Text: translated, Provider: name, Fallback: st.fallback}, true
	}

	if c.allDisabled() {
		c.halted = true
	}
	return Outcome{}, false
}

// allDisabled reports whether no provider is usable any more.
func (c *Chain) allDisabled() bool {
	if c.primary != nil && !c.disabled[c.primary.Name()] {
		return false
	}
	for _, f := range c.fallbacks {
		if !c.disabled[f.Name()] {
			return false
		}
	}
	return true
}
