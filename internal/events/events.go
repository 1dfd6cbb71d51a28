// Package events публикует доменные события о заказах и бронированиях во внешние брокеры.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderbot/internal/model"
)

// Type тип доменного события. Используется как subject NATS и routing key RabbitMQ.
type Type string

const (
	TypeOrderConfirmed   Type = "order.confirmed"
	TypeOrderCancelled   Type = "order.cancelled"
	TypeBookingCreated   Type = "booking.created"
	TypeBookingCancelled Type = "booking.cancelled"
)

// Event доменное событие. Сумма передаётся в основных единицах валюты.
type Event struct {
	ID         string       `json:"id"`
	Type       Type         `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	UserID     string       `json:"user_id"`
	OrderID    *int64       `json:"order_id,omitempty"`
	BookingID  *int64       `json:"booking_id,omitempty"`
	Status     string       `json:"status"`
	Total      *float64     `json:"total,omitempty"`
	Items      []model.Item `json:"items,omitempty"`
}

// Publisher отправляет событие во внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// OrderEvent создаёт событие по заказу.
func OrderEvent(t Type, o *model.Order, at time.Time) Event {
	id := o.ID
	total := o.TotalAmount()
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: at,
		UserID:     o.UserID,
		OrderID:    &id,
		Status:     string(o.Status),
		Total:      &total,
		Items:      append([]model.Item(nil), o.Items...),
	}
}

// BookingEvent создаёт событие по бронированию.
func BookingEvent(t Type, b *model.Booking, at time.Time) Event {
	id := b.ID
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: at,
		UserID:     b.UserID,
		BookingID:  &id,
		Status:     string(b.Status),
	}
}

// Multi рассылает событие всем издателям и объединяет их ошибки.
type Multi []Publisher

// Publish отправляет событие каждому издателю, даже если кто-то из них вернул ошибку.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
