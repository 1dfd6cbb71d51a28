package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/orderbot/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит заказы, бронирования и журналы статусов в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при конфликте сериализации, взаимоблокировке или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(r.delays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateOrder сохраняет заказ и первую запись журнала статусов в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID string, items []model.Item, total int64) (*model.Order, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	var o *model.Order
	err = r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		created := model.Order{
			UserID: userID,
			Items:  append([]model.Item(nil), items...),
			Total:  total,
			Status: model.OrderStatusPreparing,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, items, total, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
			userID, itemsJSON, total, string(created.Status),
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO order_status_log (order_id, status, changed_at) VALUES ($1, $2, $3)`,
			created.ID, string(created.Status), created.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		o = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder возвращает заказ по номеру.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, items, total, status, created_at FROM orders WHERE id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateOrderStatus меняет статус заказа. Строка заказа блокируется на время проверки перехода.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	var o *model.Order
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		current, err := scanOrder(tx.QueryRow(ctx,
			`SELECT id, user_id, items, total, status, created_at FROM orders WHERE id = $1 FOR UPDATE`,
			id,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if !canTransitionOrder(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, status)
		}

		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_status_log (order_id, status) VALUES ($1, $2)`,
			id, string(status),
		); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		current.Status = status
		o = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders возвращает заказы пользователя по возрастанию номера.
func (r *PostgresRepository) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, items, total, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// OrderStatusHistory возвращает журнал статусов заказа.
func (r *PostgresRepository) OrderStatusHistory(ctx context.Context, id int64) ([]model.StatusChange, error) {
	return r.statusHistory(ctx,
		`SELECT status, changed_at FROM order_status_log WHERE order_id = $1 ORDER BY id`,
		id, ErrOrderNotFound,
	)
}

// CreateBooking сохраняет бронирование и первую запись журнала статусов в одной транзакции.
func (r *PostgresRepository) CreateBooking(ctx context.Context, nb NewBooking) (*model.Booking, error) {
	var b *model.Booking
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		created := model.Booking{
			UserID:     nb.UserID,
			People:     nb.People,
			Date:       nb.Date,
			Time:       nb.Time,
			Preference: nb.Preference,
			Status:     model.BookingStatusBooked,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO bookings (user_id, people, date, time, preference, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			nb.UserID, nb.People, nb.Date, nb.Time, nb.Preference, string(created.Status),
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO booking_status_log (booking_id, status, changed_at) VALUES ($1, $2, $3)`,
			created.ID, string(created.Status), created.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		b = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking возвращает бронирование по номеру.
func (r *PostgresRepository) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, people, date, time, preference, status, created_at FROM bookings WHERE id = $1`,
		id,
	)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus меняет статус бронирования под блокировкой строки.
func (r *PostgresRepository) UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	var b *model.Booking
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		current, err := scanBooking(tx.QueryRow(ctx,
			`SELECT id, user_id, people, date, time, preference, status, created_at
			 FROM bookings WHERE id = $1 FOR UPDATE`,
			id,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("lock booking: %w", err)
		}

		if !canTransitionBooking(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, status)
		}

		if _, err := tx.Exec(ctx, `UPDATE bookings SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO booking_status_log (booking_id, status) VALUES ($1, $2)`,
			id, string(status),
		); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		current.Status = status
		b = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookings возвращает бронирования пользователя по возрастанию номера.
func (r *PostgresRepository) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, people, date, time, preference, status, created_at
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// BookingStatusHistory возвращает журнал статусов бронирования.
func (r *PostgresRepository) BookingStatusHistory(ctx context.Context, id int64) ([]model.StatusChange, error) {
	return r.statusHistory(ctx,
		`SELECT status, changed_at FROM booking_status_log WHERE booking_id = $1 ORDER BY id`,
		id, ErrBookingNotFound,
	)
}

func (r *PostgresRepository) statusHistory(ctx context.Context, query string, id int64, notFound error) ([]model.StatusChange, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("select status log: %w", err)
	}
	defer rows.Close()

	var res []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		if err := rows.Scan(&c.Status, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	// Журнал пишется при создании, поэтому пустой журнал означает отсутствие записи.
	if len(res) == 0 {
		return nil, notFound
	}
	return res, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o         model.Order
		status    string
		itemsJSON []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &itemsJSON, &o.Total, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.People, &b.Date, &b.Time, &b.Preference, &status, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	return &b, nil
}
