// Package service реализует диалоговый автомат заказов и бронирований.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/classifier"
	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/session"
)

// DefaultUnitPrice цена позиции, отсутствующей в меню, в минимальных единицах валюты.
const DefaultUnitPrice int64 = 9900

// Repository описывает контракт реестра заказов и бронирований, используемый сервисом.
type Repository interface {
	Close() error
	CreateOrder(ctx context.Context, userID string, items []model.Item, total int64) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	OrderStatusHistory(ctx context.Context, id int64) ([]model.StatusChange, error)
	CreateBooking(ctx context.Context, nb repository.NewBooking) (*model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) (*model.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]model.Booking, error)
	BookingStatusHistory(ctx context.Context, id int64) ([]model.StatusChange, error)
}

// SessionStore описывает хранилище сессий диалога.
type SessionStore interface {
	GetOrCreate(ctx context.Context, userID string) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	List(ctx context.Context) ([]*model.Session, error)
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}

// Classifier определяет намерение сообщения.
type Classifier interface {
	Predict(ctx context.Context, text string) (classifier.Prediction, error)
}

// Catalog даёт готовые ответы и цены меню.
type Catalog interface {
	Lookup(tag string) (string, bool)
	MenuNames() []string
	UnitPrice(name string) (int64, bool)
	Currency() string
}

// EventPublisher публикует доменные события.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Service содержит логику диалога.
type Service struct {
	repo       Repository
	sessions   SessionStore
	classifier Classifier
	catalog    Catalog
	publisher  EventPublisher
	locks      *session.Locker
	logger     *zap.Logger
	now        func() time.Time

	idleTimeout      time.Duration
	defaultUnitPrice int64
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher задаёт издателя доменных событий.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdleTimeout включает истечение сессий, простаивающих дольше d. Ноль отключает истечение.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Service) { s.idleTimeout = d }
}

// WithDefaultUnitPrice задаёт цену позиций, отсутствующих в меню, в минимальных единицах валюты.
func WithDefaultUnitPrice(cents int64) Option {
	return func(s *Service) { s.defaultUnitPrice = cents }
}

// NewService создаёт сервис с указанными реестром, хранилищем сессий, классификатором и каталогом.
func NewService(repo Repository, sessions SessionStore, clf Classifier, cat Catalog, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		sessions:         sessions,
		classifier:       clf,
		catalog:          cat,
		locks:            session.NewLocker(),
		logger:           zap.NewNop(),
		now:              time.Now,
		defaultUnitPrice: DefaultUnitPrice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetOrder возвращает заказ по номеру.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders возвращает заказы пользователя.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, userID)
}

// OrderHistory возвращает журнал статусов заказа.
func (s *Service) OrderHistory(ctx context.Context, id int64) ([]model.StatusChange, error) {
	return s.repo.OrderStatusHistory(ctx, id)
}

// GetBooking возвращает бронирование по номеру.
func (s *Service) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings возвращает бронирования пользователя.
func (s *Service) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.repo.ListBookings(ctx, userID)
}

// BookingHistory возвращает журнал статусов бронирования.
func (s *Service) BookingHistory(ctx context.Context, id int64) ([]model.StatusChange, error) {
	return s.repo.BookingStatusHistory(ctx, id)
}

// Sessions возвращает снимок всех сессий.
func (s *Service) Sessions(ctx context.Context) ([]*model.Session, error) {
	return s.sessions.List(ctx)
}

// SweepIdleSessions удаляет сессии, простаивающие дольше таймаута, и возвращает их количество.
func (s *Service) SweepIdleSessions(ctx context.Context) (int, error) {
	if s.idleTimeout <= 0 {
		return 0, nil
	}
	return s.sessions.DeleteIdle(ctx, s.now().Add(-s.idleTimeout))
}

// StartSessionSweeper запускает фоновое удаление простаивающих сессий.
func (s *Service) StartSessionSweeper(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}

	interval := s.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.SweepIdleSessions(ctx)
				if err != nil {
					s.logger.Warn("sweep idle sessions", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("idle sessions removed", zap.Int("count", n))
				}
			}
		}
	}()
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event",
			zap.String("type", string(e.Type)),
			zap.String("user_id", e.UserID),
			zap.Error(err),
		)
	}
}
