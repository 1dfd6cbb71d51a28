package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mmeshcher/orderbot/internal/model"
)

// MenuMatchCutoff минимальный коэффициент сходства для привязки к позиции меню.
const MenuMatchCutoff = 0.6

var (
	segmentSepRe = regexp.MustCompile(`\s*(?:[,;]|\band\b|\bplus\b)\s*`)
	requestRe    = regexp.MustCompile(`\b(?:i would like|i'd like|i'll take|i will take|i'll have|i will have|i want|can i get|can i have|could i get|could i have|give me|let me get|please|order|add|want|take|get|have|remove|delete|drop)\b`)
	cartSuffixRe = regexp.MustCompile(`\b(?:to|from|in|into|off|out of)\s+(?:my|the)?\s*(?:cart|order|basket)\b|\bfor me\b`)
	multiplierRe = regexp.MustCompile(`\b(\d+)\s*x\b`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s&-]`)
)

var unitWords = map[string]struct{}{
	"x": {}, "pcs": {}, "pieces": {}, "piece": {}, "of": {},
	"portion": {}, "portions": {}, "plate": {}, "plates": {}, "orders": {},
}

var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "some": {}, "me": {}, "my": {},
	"more": {}, "another": {}, "too": {}, "also": {}, "i": {}, "to": {},
}

// Items извлекает позиции вида "(количество) (название)" в порядке появления в тексте.
// Позиция без количества получает qty = 1. Если задано меню, название привязывается
// к наиболее похожей позиции меню.
func Items(text string, menu []string) []model.Item {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	var items []model.Item
	for _, segment := range segmentSepRe.Split(text, -1) {
		for _, it := range parseSegment(segment) {
			it.Name = MatchMenuItem(it.Name, menu)
			if it.Name == "" {
				continue
			}
			items = append(items, it)
		}
	}

	return items
}

func parseSegment(segment string) []model.Item {
	segment = requestRe.ReplaceAllString(segment, " ")
	segment = cartSuffixRe.ReplaceAllString(segment, " ")
	segment = multiplierRe.ReplaceAllString(segment, "$1 ")
	segment = punctRe.ReplaceAllString(segment, "")

	var (
		items     []model.Item
		name      []string
		qty       = 1
		afterQty  bool
		hasTokens bool
	)

	flush := func() {
		if len(name) > 0 {
			items = append(items, model.Item{Name: strings.Join(name, " "), Qty: qty})
		}
		name = nil
		qty = 1
	}

	for _, tok := range strings.Fields(segment) {
		if n, ok := quantityToken(tok); ok {
			if hasTokens {
				flush()
			}
			if n < 1 {
				n = 1
			}
			qty = n
			afterQty = true
			hasTokens = true
			continue
		}
		if _, ok := unitWords[tok]; ok && afterQty {
			continue
		}
		afterQty = false
		if _, ok := fillerWords[tok]; ok {
			continue
		}
		name = append(name, tok)
		hasTokens = true
	}
	flush()

	return items
}

func quantityToken(tok string) (int, bool) {
	if n, ok := numberWords[tok]; ok {
		return n, true
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MatchMenuItem нормализует название и привязывает его к ближайшей позиции меню
// с коэффициентом сходства не ниже MenuMatchCutoff. Без совпадения возвращается
// нормализованное название.
func MatchMenuItem(name string, menu []string) string {
	name = strings.Join(strings.Fields(strings.ToLower(punctRe.ReplaceAllString(name, ""))), " ")
	if name == "" || len(menu) == 0 {
		return name
	}

	best, bestRatio := "", 0.0
	for _, candidate := range menu {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == name {
			return candidate
		}
		r := similarity(candidate, name)
		if r >= MenuMatchCutoff && r > bestRatio {
			best, bestRatio = candidate, r
		}
	}

	if best == "" {
		return name
	}
	return best
}

func similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
