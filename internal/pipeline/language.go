// =============================================================================
// language.go - ソース名から原語を推定する
// =============================================================================
//
// 翻訳ステージは記事ごとに「原語のヒント」を必要とする:
//   - ヒント = ターゲット言語 → 翻訳不要（スキップ）
//   - ヒント = "EN"           → フォールバックプロバイダも使える
//   - 不明                    → ヒント無しでプライマリのみ試す
//
// 【判定順】
//  1. ソース設定（sources.yaml の language）による明示指定
//  2. スペイン語ソースの集合（AEMET, CNIC, ...）との一致
//  3. 英語ソースらしいトークンの部分一致（"nature", "arxiv", ...）
//
// 部分一致はあくまでヒューリスティック。誤判定しても翻訳が1件
// 余計に走る（または省かれる）だけで、データは壊れない。
//
// =============================================================================
package pipeline

import "strings"

// LanguageClassifier guesses the language a source publishes in.
type LanguageClassifier interface {
	// ClassifySource returns an upper-case language code such as "EN" or "ES".
	// ok is false when the language is unknown.
	ClassifySource(source string) (hint string, ok bool)
}

// englishSourceTokens は英語ソースと判定する部分文字列（小文字）
var englishSourceTokens = []string{
	"nature", "science.org", "science ", "aaas", "arxiv", "pubmed",
	"sciencedaily", "phys.org", "quanta", "mit news", "nasa", "esa",
	"pnas", "plos one", "science news", "explores", "nih", "nci", "cern",
}

// spanishSources はスペイン語で配信しているソース（翻訳しない）
var spanishSources = []string{"AEMET", "CNIC", "CNIO", "ISCIII", "IEO", "IAC"}

// SourceTokenClassifier is the heuristic classifier.
type SourceTokenClassifier struct {
	overrides map[string]string // 小文字のソース名 → 言語コード
}

// NewSourceTokenClassifier builds a classifier. overrides maps a source name to
// its language code and wins over the heuristics.
func NewSourceTokenClassifier(overrides map[string]string) *SourceTokenClassifier {
	c := &SourceTokenClassifier{overrides: map[string]string{}}
	for name, lang := range overrides {
		name = strings.ToLower(strings.TrimSpace(name))
		lang = strings.ToUpper(strings.TrimSpace(lang))
		if name == "" || lang == "" {
			continue
		}
		c.overrides[name] = lang
	}
	return c
}

func (c *SourceTokenClassifier) ClassifySource(source string) (string, bool) {
	name := strings.TrimSpace(source)
	if name == "" {
		return "", false
	}
	if lang, ok := c.overrides[strings.ToLower(name)]; ok {
		return lang, true
	}
	for _, s := range spanishSources {
		if strings.EqualFold(name, s) {
			return "ES", true
		}
	}
	lower := strings.ToLower(name)
	for _, tok := range englishSourceTokens {
		if strings.Contains(lower, tok) {
			return "EN", true
		}
	}
	return "", false
}
