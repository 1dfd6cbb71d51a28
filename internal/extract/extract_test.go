package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
)

func TestOrderID(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int64
		wantOK bool
	}{
		{name: "bare id", text: "1042", want: 1042, wantOK: true},
		{name: "id with verb", text: "track 1042 please", want: 1042, wantOK: true},
		{name: "hash prefix", text: "where is #55501", want: 55501, wantOK: true},
		{name: "eight digits", text: "order 12345678", want: 12345678, wantOK: true},
		{name: "too short", text: "2 burgers", wantOK: false},
		{name: "too long", text: "call 123456789", wantOK: false},
		{name: "first matching run", text: "give 12 of 1000 and 2000", want: 1000, wantOK: true},
		{name: "no digits", text: "where is my order", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OrderID(tt.text)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int
		wantOK bool
	}{
		{name: "digits", text: "3 pizzas", want: 3, wantOK: true},
		{name: "digits win over words", text: "one burger and 4 cokes", want: 4, wantOK: true},
		{name: "first word by position", text: "five fries and two cokes", want: 5, wantOK: true},
		{name: "capitalised word", text: "Two tacos", want: 2, wantOK: true},
		{name: "none", text: "a burger", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Quantity(tt.text)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberWord(t *testing.T) {
	n, ok := NumberWord("Seven")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = NumberWord("12")
	require.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = NumberWord("eleven")
	assert.False(t, ok)
}

func TestAll(t *testing.T) {
	ent := All("table for 4 at 7pm", nil)

	assert.Nil(t, ent.OrderID)
	require.NotNil(t, ent.Quantity)
	assert.Equal(t, 4, *ent.Quantity)
	require.NotNil(t, ent.Booking.People)
	assert.Equal(t, 4, *ent.Booking.People)
	require.NotNil(t, ent.Booking.Time)
	assert.Equal(t, "19:00", *ent.Booking.Time)
	assert.Nil(t, ent.Booking.Date)
	assert.Nil(t, ent.Booking.Preference)
}

func TestAllEmpty(t *testing.T) {
	assert.Equal(t, model.Entities{}, All("", nil))
}
