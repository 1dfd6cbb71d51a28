// Package model содержит доменные сущности сервиса заказов orderbot.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Item описывает одну позицию корзины или заказа.
type Item struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// String возвращает позицию в виде "2 x burger".
func (i Item) String() string {
	return fmt.Sprintf("%d x %s", i.Qty, i.Name)
}

// DescribeItems форматирует список позиций через запятую.
func DescribeItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.String())
	}
	return strings.Join(parts, ", ")
}

// BookingDetails содержит поля бронирования, извлечённые из текста. Каждое поле необязательно.
type BookingDetails struct {
	People     *int    `json:"people,omitempty"`
	Time       *string `json:"time,omitempty"`
	Date       *string `json:"date,omitempty"`
	Preference *string `json:"preference,omitempty"`
	// RelativeDate хранит найденное относительное слово даты ("today", "tomorrow").
	RelativeDate string `json:"relative_date,omitempty"`
}

// Entities объединяет все сущности, извлечённые из одного сообщения.
type Entities struct {
	OrderID  *int64         `json:"order_id,omitempty"`
	Quantity *int           `json:"quantity,omitempty"`
	Items    []Item         `json:"items,omitempty"`
	Booking  BookingDetails `json:"booking"`
}

// DialogState описывает состояние диалога пользователя.
type DialogState string

const (
	StateIdle          DialogState = "IDLE"
	StateAwaitingItems DialogState = "AWAITING_ITEMS"
	StateHasDraftItems DialogState = "HAS_DRAFT_ITEMS"
)

// Session хранит состояние диалога одного пользователя.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	LastIntent     Intent    `json:"last_intent,omitempty"`
	Draft          []Item    `json:"cart_draft"`
	LastBotMessage string    `json:"last_bot_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// State вычисляет состояние диалога по последнему намерению и корзине.
func (s *Session) State() DialogState {
	switch {
	case s.LastIntent == IntentNewOrder:
		return StateAwaitingItems
	case len(s.Draft) > 0:
		return StateHasDraftItems
	default:
		return StateIdle
	}
}

// Clone возвращает копию сессии, не разделяющую корзину с оригиналом.
func (s *Session) Clone() *Session {
	c := *s
	c.Draft = append([]Item(nil), s.Draft...)
	return &c
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPreparing OrderStatus = "confirmed-preparing"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order описывает подтверждённый заказ пользователя.
// Total хранится в минимальных единицах валюты.
type Order struct {
	ID        int64       `json:"order_id"`
	UserID    string      `json:"user_id"`
	Items     []Item      `json:"items"`
	Total     int64       `json:"-"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// TotalAmount возвращает сумму заказа в основных единицах валюты.
func (o *Order) TotalAmount() float64 {
	return float64(o.Total) / 100
}

// BookingStatus описывает статус бронирования столика.
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking описывает бронирование столика.
type Booking struct {
	ID         int64         `json:"booking_id"`
	UserID     string        `json:"user_id"`
	People     int           `json:"people"`
	Date       string        `json:"date"`
	Time       string        `json:"time"`
	Preference *string       `json:"preference"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// StatusChange описывает одну запись журнала смены статусов.
type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

// Reply описывает результат обработки одного сообщения.
type Reply struct {
	Text string
	// Label пуст, если намерение не определялось (пустое сообщение).
	Label      string
	Confidence *float64
	Order      *Order
	OrderID    *int64
	Booking    *Booking
}
