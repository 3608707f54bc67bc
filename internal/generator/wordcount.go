package generator

import (
	"strings"
	"unicode"
)

// WordCount implements SPEC_FULL.md's Open Question decision #3: text is
// split into paragraphs, and each paragraph is counted as CJK graphemes (one
// rune = one "word") when localeHint names a CJK locale, or as whitespace-
// split words when localeHint names a Latin-script locale. Absent a hint,
// each paragraph falls back to a script-detection heuristic: a paragraph is
// counted as CJK if a majority of its runes fall in a CJK Unicode range,
// Latin whitespace-split otherwise. Per-paragraph counts are summed, exactly
// spec.md §4.F's "graphemes / 1 for CJK, whitespace split for Latin" rule
// made concrete for mixed-language chapters.
func WordCount(text string, localeHint string) int {
	if text == "" {
		return 0
	}

	total := 0
	for _, para := range strings.Split(text, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		total += countParagraph(para, localeHint)
	}
	return total
}

func countParagraph(para, localeHint string) int {
	switch {
	case isCJKLocale(localeHint):
		return countCJKRunes(para)
	case localeHint != "":
		return len(strings.Fields(para))
	case paragraphIsMajorityCJK(para):
		return countCJKRunes(para)
	default:
		return len(strings.Fields(para))
	}
}

var cjkLocales = map[string]bool{
	"zh": true, "zh-cn": true, "zh-tw": true, "zh-hk": true,
	"ja": true, "ko": true,
}

func isCJKLocale(hint string) bool {
	return cjkLocales[strings.ToLower(hint)]
}

func countCJKRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func paragraphIsMajorityCJK(s string) bool {
	var cjk, other int
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		if isCJKRune(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk > other
}

// isCJKRune mirrors internal/tokenizer's unexported script check (Han,
// Hiragana, Katakana, Hangul) — kept as its own copy here since that helper
// isn't exported and word counting is a distinct concern from token
// estimation.
func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
