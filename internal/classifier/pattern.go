package classifier

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/mmeshcher/orderbot/internal/catalog"
)

// softmaxTemperature переводит косинусную близость [0,1] в распределение вероятностей.
const softmaxTemperature = 10.0

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}']+`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "am": {}, "be": {},
	"to": {}, "of": {}, "for": {}, "and": {}, "or": {}, "it": {}, "this": {},
	"that": {}, "i": {}, "me": {}, "you": {}, "please": {}, "can": {}, "could": {},
	"would": {}, "will": {}, "do": {}, "does": {}, "on": {}, "in": {},
}

type vector map[string]float64

type pattern struct {
	tag string
	vec vector
}

// PatternModel встроенная модель: TF-IDF по униграммам и биграммам обучающих фраз
// и максимальная косинусная близость к фразам каждого намерения.
type PatternModel struct {
	tags     []string
	idf      map[string]float64
	patterns []pattern
}

// NewPatternModel строит модель по обучающим фразам каталога.
func NewPatternModel(examples []catalog.Example) *PatternModel {
	m := &PatternModel{idf: make(map[string]float64)}

	seen := make(map[string]bool)
	df := make(map[string]int)
	docs := make([][]string, 0, len(examples))

	for _, ex := range examples {
		if !seen[ex.Tag] {
			seen[ex.Tag] = true
			m.tags = append(m.tags, ex.Tag)
		}
		feats := features(ex.Text)
		docs = append(docs, feats)

		uniq := make(map[string]struct{}, len(feats))
		for _, f := range feats {
			uniq[f] = struct{}{}
		}
		for f := range uniq {
			df[f]++
		}
	}

	n := float64(len(examples))
	for f, d := range df {
		m.idf[f] = math.Log((1+n)/(1+float64(d))) + 1
	}

	for i, ex := range examples {
		vec := m.vectorize(docs[i])
		if len(vec) == 0 {
			continue
		}
		m.patterns = append(m.patterns, pattern{tag: ex.Tag, vec: vec})
	}

	return m
}

// Probabilities возвращает распределение вероятностей по всем известным меткам.
func (m *PatternModel) Probabilities(_ context.Context, text string) ([]Score, error) {
	if len(m.tags) == 0 {
		return nil, nil
	}

	query := m.vectorize(features(text))

	best := make(map[string]float64, len(m.tags))
	if len(query) > 0 {
		for _, p := range m.patterns {
			if sim := cosine(query, p.vec); sim > best[p.tag] {
				best[p.tag] = sim
			}
		}
	}

	var sum float64
	exps := make([]float64, len(m.tags))
	for i, tag := range m.tags {
		exps[i] = math.Exp(softmaxTemperature * best[tag])
		sum += exps[i]
	}

	scores := make([]Score, len(m.tags))
	for i, tag := range m.tags {
		scores[i] = Score{Label: tag, Probability: exps[i] / sum}
	}
	return scores, nil
}

func (m *PatternModel) vectorize(feats []string) vector {
	vec := make(vector)
	for _, f := range feats {
		if idf, ok := m.idf[f]; ok {
			vec[f] += idf
		}
	}

	var norm float64
	for _, w := range vec {
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for f := range vec {
		vec[f] /= norm
	}
	return vec
}

func cosine(a, b vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for f, w := range a {
		dot += w * b[f]
	}
	return dot
}

func features(text string) []string {
	var toks []string
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if isDigits(t) {
			t = "<num>"
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		toks = append(toks, t)
	}

	feats := make([]string, 0, 2*len(toks))
	feats = append(feats, toks...)
	for i := 1; i < len(toks); i++ {
		feats = append(feats, toks[i-1]+" "+toks[i])
	}
	return feats
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
