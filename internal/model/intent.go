package model

import "strings"

// Intent описывает распознанное назначение сообщения пользователя.
type Intent string

// IntentNone означает отсутствие намерения (например, после завершённой операции).
const IntentNone Intent = ""

const (
	IntentNewOrder     Intent = "new_order"
	IntentOrderItem    Intent = "order_item"
	IntentRemoveItem   Intent = "remove_item"
	IntentConfirmOrder Intent = "confirm_order"
	IntentTrackOrder   Intent = "track_order"
	IntentCancelOrder  Intent = "cancel_order"
	IntentBookTable    Intent = "book_table"
	IntentGreeting     Intent = "greeting"
	IntentThanks       Intent = "thanks"
	IntentAbout        Intent = "about"
	IntentGoodbye      Intent = "goodbye"
	IntentFallback     Intent = "fallback"
	// IntentOther обозначает любую метку модели, для которой нет отдельной ветки диалога.
	IntentOther Intent = "other"
)

var intentAliases = map[string]Intent{
	"about_site": IntentAbout,
}

var knownIntents = map[Intent]struct{}{
	IntentNewOrder:     {},
	IntentOrderItem:    {},
	IntentRemoveItem:   {},
	IntentConfirmOrder: {},
	IntentTrackOrder:   {},
	IntentCancelOrder:  {},
	IntentBookTable:    {},
	IntentGreeting:     {},
	IntentThanks:       {},
	IntentAbout:        {},
	IntentGoodbye:      {},
	IntentFallback:     {},
}

// ParseIntent сопоставляет метку модели закрытому набору намерений.
// Неизвестные метки становятся IntentOther.
func ParseIntent(label string) Intent {
	label = strings.ToLower(strings.TrimSpace(label))
	if alias, ok := intentAliases[label]; ok {
		return alias
	}
	if label == "" {
		return IntentFallback
	}
	if _, ok := knownIntents[Intent(label)]; ok {
		return Intent(label)
	}
	return IntentOther
}
