// Package catalog содержит справочник ответов и меню, загружаемые из YAML-файла знаний.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultKnowledge []byte

// ErrInvalidKnowledge возвращается при некорректном содержимом файла знаний.
var ErrInvalidKnowledge = errors.New("invalid knowledge file")

// IntentSpec описывает намерение: обучающие фразы и варианты ответов.
type IntentSpec struct {
	Tag       string   `yaml:"tag"`
	Patterns  []string `yaml:"patterns"`
	Responses []string `yaml:"responses"`
}

// MenuItem описывает позицию меню с ценой в основных единицах валюты.
type MenuItem struct {
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
}

// Knowledge описывает структуру файла знаний.
type Knowledge struct {
	Currency string       `yaml:"currency"`
	Menu     []MenuItem   `yaml:"menu"`
	Intents  []IntentSpec `yaml:"intents"`
}

// Example обучающий пример для модели классификации.
type Example struct {
	Tag  string
	Text string
}

// Catalog предоставляет доступ к ответам по тегу и к ценам меню.
type Catalog struct {
	currency  string
	responses map[string][]string
	menu      []string
	prices    map[string]int64
	examples  []Example
	pick      func(n int) int
}

// Load читает файл знаний. Пустой путь означает встроенный файл по умолчанию.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return Parse(data)
}

// Default возвращает каталог на основе встроенного файла знаний.
func Default() (*Catalog, error) {
	return Parse(defaultKnowledge)
}

// Parse разбирает YAML-содержимое файла знаний.
func Parse(data []byte) (*Catalog, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKnowledge, err)
	}
	return New(k)
}

// New строит каталог из уже разобранной структуры знаний.
func New(k Knowledge) (*Catalog, error) {
	c := &Catalog{
		currency:  k.Currency,
		responses: make(map[string][]string, len(k.Intents)),
		prices:    make(map[string]int64, len(k.Menu)),
		pick:      rand.IntN,
	}

	for _, item := range k.Menu {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: menu item without name", ErrInvalidKnowledge)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("%w: negative price for %q", ErrInvalidKnowledge, name)
		}
		if _, dup := c.prices[name]; dup {
			return nil, fmt.Errorf("%w: duplicate menu item %q", ErrInvalidKnowledge, name)
		}
		c.prices[name] = int64(math.Round(item.Price * 100))
		c.menu = append(c.menu, name)
	}

	for _, in := range k.Intents {
		tag := strings.ToLower(strings.TrimSpace(in.Tag))
		if tag == "" {
			return nil, fmt.Errorf("%w: intent without tag", ErrInvalidKnowledge)
		}
		for _, r := range in.Responses {
			if r = strings.TrimSpace(r); r != "" {
				c.responses[tag] = append(c.responses[tag], r)
			}
		}
		for _, p := range in.Patterns {
			if p = strings.TrimSpace(p); p != "" {
				c.examples = append(c.examples, Example{Tag: tag, Text: p})
			}
		}
	}

	return c, nil
}

// Lookup возвращает случайный ответ для тега или false, если ответов нет.
func (c *Catalog) Lookup(tag string) (string, bool) {
	choices := c.responses[strings.ToLower(tag)]
	if len(choices) == 0 {
		return "", false
	}
	return choices[c.pick(len(choices))], true
}

// MenuNames возвращает названия позиций меню в порядке файла.
func (c *Catalog) MenuNames() []string {
	return append([]string(nil), c.menu...)
}

// UnitPrice возвращает цену позиции в минимальных единицах валюты.
func (c *Catalog) UnitPrice(name string) (int64, bool) {
	p, ok := c.prices[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Currency возвращает символ валюты для ответов.
func (c *Catalog) Currency() string {
	return c.currency
}

// Examples возвращает обучающие фразы всех намерений.
func (c *Catalog) Examples() []Example {
	return append([]Example(nil), c.examples...)
}
