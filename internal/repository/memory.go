package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/orderbot/internal/model"
)

// MemoryRepository хранит заказы и бронирования в памяти процесса.
// Выдача номера и вставка записи выполняются под одной блокировкой.
type MemoryRepository struct {
	mu sync.RWMutex

	nextOrderID   int64
	nextBookingID int64

	orders     map[int64]*model.Order
	bookings   map[int64]*model.Booking
	orderLog   map[int64][]model.StatusChange
	bookingLog map[int64][]model.StatusChange

	now func() time.Time
}

// NewMemoryRepository создаёт пустой реестр в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextOrderID:   FirstOrderID,
		nextBookingID: FirstBookingID,
		orders:        make(map[int64]*model.Order),
		bookings:      make(map[int64]*model.Booking),
		orderLog:      make(map[int64][]model.StatusChange),
		bookingLog:    make(map[int64][]model.StatusChange),
		now:           time.Now,
	}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateOrder сохраняет подтверждённый заказ под новым номером.
func (r *MemoryRepository) CreateOrder(_ context.Context, userID string, items []model.Item, total int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	o := &model.Order{
		ID:        r.nextOrderID,
		UserID:    userID,
		Items:     append([]model.Item(nil), items...),
		Total:     total,
		Status:    model.OrderStatusPreparing,
		CreatedAt: now,
	}
	r.nextOrderID++

	r.orders[o.ID] = o
	r.orderLog[o.ID] = []model.StatusChange{{Status: string(o.Status), ChangedAt: now}}
	return cloneOrder(o), nil
}

// GetOrder возвращает заказ по номеру.
func (r *MemoryRepository) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// UpdateOrderStatus меняет статус заказа и дописывает запись в журнал.
func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !canTransitionOrder(o.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, status)
	}

	o.Status = status
	r.orderLog[id] = append(r.orderLog[id], model.StatusChange{Status: string(status), ChangedAt: r.now()})
	return cloneOrder(o), nil
}

// ListOrders возвращает заказы пользователя по возрастанию номера.
func (r *MemoryRepository) ListOrders(_ context.Context, userID string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Order
	for id := FirstOrderID; id < r.nextOrderID; id++ {
		if o, ok := r.orders[id]; ok && o.UserID == userID {
			res = append(res, *cloneOrder(o))
		}
	}
	return res, nil
}

// OrderStatusHistory возвращает журнал статусов заказа, начиная с создания.
func (r *MemoryRepository) OrderStatusHistory(_ context.Context, id int64) ([]model.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.orderLog[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return append([]model.StatusChange(nil), log...), nil
}

// CreateBooking сохраняет бронирование под новым номером.
func (r *MemoryRepository) CreateBooking(_ context.Context, nb NewBooking) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b := &model.Booking{
		ID:         r.nextBookingID,
		UserID:     nb.UserID,
		People:     nb.People,
		Date:       nb.Date,
		Time:       nb.Time,
		Preference: nb.Preference,
		Status:     model.BookingStatusBooked,
		CreatedAt:  now,
	}
	r.nextBookingID++

	stored := cloneBooking(b)
	r.bookings[b.ID] = stored
	r.bookingLog[b.ID] = []model.StatusChange{{Status: string(b.Status), ChangedAt: now}}
	return cloneBooking(stored), nil
}

// GetBooking возвращает бронирование по номеру.
func (r *MemoryRepository) GetBooking(_ context.Context, id int64) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// UpdateBookingStatus меняет статус бронирования и дописывает запись в журнал.
func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if !canTransitionBooking(b.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, status)
	}

	b.Status = status
	r.bookingLog[id] = append(r.bookingLog[id], model.StatusChange{Status: string(status), ChangedAt: r.now()})
	return cloneBooking(b), nil
}

// ListBookings возвращает бронирования пользователя по возрастанию номера.
func (r *MemoryRepository) ListBookings(_ context.Context, userID string) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Booking
	for id := FirstBookingID; id < r.nextBookingID; id++ {
		if b, ok := r.bookings[id]; ok && b.UserID == userID {
			res = append(res, *cloneBooking(b))
		}
	}
	return res, nil
}

// BookingStatusHistory возвращает журнал статусов бронирования.
func (r *MemoryRepository) BookingStatusHistory(_ context.Context, id int64) ([]model.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.bookingLog[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return append([]model.StatusChange(nil), log...), nil
}
