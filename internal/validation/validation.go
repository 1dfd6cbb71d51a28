// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// MaxUserIDLength ограничивает длину идентификатора пользователя в байтах.
const MaxUserIDLength = 128

// ErrInvalidID возвращается для номера заказа или бронирования, не являющегося положительным целым.
var ErrInvalidID = errors.New("invalid id")

// ParseID разбирает номер заказа или бронирования из пути запроса.
func ParseID(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrInvalidID
	}

	for _, ch := range raw {
		if !unicode.IsDigit(ch) || ch > unicode.MaxASCII {
			return 0, ErrInvalidID
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}

	return id, nil
}

// IsValidUserID проверяет идентификатор пользователя: непустая строка UTF-8
// без управляющих символов длиной не более MaxUserIDLength.
func IsValidUserID(userID string) bool {
	if userID == "" || len(userID) > MaxUserIDLength {
		return false
	}
	if !utf8.ValidString(userID) {
		return false
	}

	for _, ch := range userID {
		if unicode.IsControl(ch) {
			return false
		}
	}

	return true
}
