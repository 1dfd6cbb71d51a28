// Package repository содержит реестр заказов и бронирований: в памяти и в PostgreSQL.
package repository

import (
	"errors"

	"github.com/mmeshcher/orderbot/internal/model"
)

const (
	// FirstOrderID первый номер заказа.
	FirstOrderID int64 = 1000
	// FirstBookingID первый номер бронирования. Счётчик не зависит от заказов.
	FirstBookingID int64 = 1
)

var (
	// ErrOrderNotFound возвращается, если заказ с указанным номером не существует.
	ErrOrderNotFound = errors.New("order not found")
	// ErrBookingNotFound возвращается, если бронирование с указанным номером не существует.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrInvalidStatusTransition возвращается при недопустимой смене статуса.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// NewBooking описывает данные для создания бронирования.
type NewBooking struct {
	UserID     string
	People     int
	Date       string
	Time       string
	Preference *string
}

// Единственный допустимый переход для обеих сущностей: активная запись отменяется.
func canTransitionOrder(from, to model.OrderStatus) bool {
	return from == model.OrderStatusPreparing && to == model.OrderStatusCancelled
}

func canTransitionBooking(from, to model.BookingStatus) bool {
	return from == model.BookingStatusBooked && to == model.BookingStatusCancelled
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.Item(nil), o.Items...)
	return &c
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.Preference != nil {
		p := *b.Preference
		c.Preference = &p
	}
	return &c
}
