package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
)

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

var occurred = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func testOrder() *model.Order {
	return &model.Order{
		ID:     1000,
		UserID: "alice",
		Items:  []model.Item{{Name: "burger", Qty: 2}},
		Total:  19800,
		Status: model.OrderStatusPreparing,
	}
}

func TestOrderEvent(t *testing.T) {
	e := OrderEvent(TypeOrderConfirmed, testOrder(), occurred)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypeOrderConfirmed, e.Type)
	assert.Equal(t, "alice", e.UserID)
	require.NotNil(t, e.OrderID)
	assert.Equal(t, int64(1000), *e.OrderID)
	assert.Nil(t, e.BookingID)
	require.NotNil(t, e.Total)
	assert.InDelta(t, 198.0, *e.Total, 1e-9)
	assert.Equal(t, "confirmed-preparing", e.Status)
}

func TestBookingEvent(t *testing.T) {
	b := &model.Booking{ID: 3, UserID: "bob", Status: model.BookingStatusCancelled}
	e := BookingEvent(TypeBookingCancelled, b, occurred)

	require.NotNil(t, e.BookingID)
	assert.Equal(t, int64(3), *e.BookingID)
	assert.Nil(t, e.OrderID)
	assert.Nil(t, e.Total)
	assert.Equal(t, "cancelled", e.Status)
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeNATS{}
	p := &NATSPublisher{conn: conn}

	e := OrderEvent(TypeOrderConfirmed, testOrder(), occurred)
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "order.confirmed", conn.subjects[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Items, decoded.Items)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisherError(t *testing.T) {
	p := &NATSPublisher{conn: &fakeNATS{err: errors.New("nats: connection closed")}}

	err := p.Publish(context.Background(), OrderEvent(TypeOrderCancelled, testOrder(), occurred))
	assert.Error(t, err)
}

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch}

	e := OrderEvent(TypeOrderCancelled, testOrder(), occurred)
	require.NoError(t, p.Publish(context.Background(), e))

	assert.Equal(t, Exchange, ch.exchange)
	assert.Equal(t, "order.cancelled", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, e.ID, ch.msg.MessageId)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	failing := &recorder{err: boom}
	ok := &recorder{}

	m := Multi{failing, ok}
	err := m.Publish(context.Background(), BookingEvent(TypeBookingCreated, &model.Booking{ID: 1}, occurred))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1, "publishers after a failing one still receive the event")

	assert.NoError(t, Multi(nil).Publish(context.Background(), Event{}))
}
