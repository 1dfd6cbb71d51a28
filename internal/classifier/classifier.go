// Package classifier определяет намерение сообщения поверх внешней вероятностной модели.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/orderbot/internal/model"
)

// DefaultThreshold порог уверенности по умолчанию.
const DefaultThreshold = 0.45

// Score вероятность одной метки, возвращённая моделью.
type Score struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Model описывает внешнюю модель, возвращающую распределение вероятностей по меткам.
type Model interface {
	Probabilities(ctx context.Context, text string) ([]Score, error)
}

// Prediction результат классификации сообщения.
type Prediction struct {
	Intent model.Intent
	// Label исходная метка модели (или "fallback"), используется для поиска ответа в каталоге.
	Label      string
	Confidence float64
}

// Adapter применяет порог уверенности к ответу модели.
type Adapter struct {
	model     Model
	threshold float64
}

// NewAdapter создаёт адаптер с указанной моделью и порогом уверенности.
func NewAdapter(m Model, threshold float64) *Adapter {
	return &Adapter{
		model:     m,
		threshold: threshold,
	}
}

// Threshold возвращает порог уверенности адаптера.
func (a *Adapter) Threshold() float64 {
	return a.threshold
}

// Predict классифицирует текст. Если вероятность лучшей метки ниже порога,
// возвращается fallback, а сама метка отбрасывается. Пустой текст не передаётся модели.
func (a *Adapter) Predict(ctx context.Context, text string) (Prediction, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return fallback(0), nil
	}

	scores, err := a.model.Probabilities(ctx, text)
	if err != nil {
		return Prediction{}, fmt.Errorf("classify message: %w", err)
	}
	if len(scores) == 0 {
		return fallback(0), nil
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Probability > best.Probability {
			best = s
		}
	}

	conf := clamp(best.Probability)
	if conf < a.threshold {
		return fallback(conf), nil
	}

	label := strings.ToLower(strings.TrimSpace(best.Label))
	return Prediction{
		Intent:     model.ParseIntent(label),
		Label:      label,
		Confidence: conf,
	}, nil
}

func fallback(conf float64) Prediction {
	return Prediction{
		Intent:     model.IntentFallback,
		Label:      string(model.IntentFallback),
		Confidence: conf,
	}
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
