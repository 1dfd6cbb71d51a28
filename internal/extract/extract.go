// Package extract извлекает структурированные сущности из свободного текста.
//
// Все функции чистые: они не обращаются к состоянию и не возвращают ошибок.
// Отсутствие совпадения сигнализируется нулевым результатом.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mmeshcher/orderbot/internal/model"
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var (
	orderIDRe    = regexp.MustCompile(`\b(\d{3,8})\b`)
	digitRunRe   = regexp.MustCompile(`\b(\d+)\b`)
	numberWordRe = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten)\b`)
)

// NumberWord переводит число, записанное цифрами или словом (one..ten), в int.
func NumberWord(w string) (int, bool) {
	w = strings.ToLower(strings.TrimSpace(w))
	if w == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(w); err == nil {
		return n, true
	}
	n, ok := numberWords[w]
	return n, ok
}

// OrderID возвращает первую последовательность из 3–8 цифр.
// Более короткие и более длинные последовательности номером заказа не считаются.
func OrderID(text string) (int64, bool) {
	m := orderIDRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Quantity возвращает первое число из цифр, а при его отсутствии первое числительное-слово.
func Quantity(text string) (int, bool) {
	for _, m := range digitRunRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := numberWordRe.FindStringSubmatch(text); m != nil {
		return numberWords[strings.ToLower(m[1])], true
	}
	return 0, false
}

// All извлекает все типы сущностей из текста. menu может быть пустым.
func All(text string, menu []string) model.Entities {
	var ent model.Entities

	if id, ok := OrderID(text); ok {
		ent.OrderID = &id
	}
	if q, ok := Quantity(text); ok {
		ent.Quantity = &q
	}
	ent.Items = Items(text, menu)
	ent.Booking = Booking(text)

	return ent
}
