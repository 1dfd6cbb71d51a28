// Package handler содержит HTTP-обработчики API сервиса orderbot.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// AnonymousUserID используется, если запрос не содержит user_id и посетитель не опознан.
const AnonymousUserID = "anonymous"

// maxFrameBytes ограничивает тело /api/chat и кадр WebSocket.
const maxFrameBytes = 64 * 1024

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	HandleMessage(ctx context.Context, userID, text string) (model.Reply, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	OrderHistory(ctx context.Context, id int64) ([]model.StatusChange, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	BookingHistory(ctx context.Context, id int64) ([]model.StatusChange, error)
	ListBookings(ctx context.Context, userID string) ([]model.Booking, error)
	Sessions(ctx context.Context) ([]*model.Session, error)
}

// Handler реализует HTTP-обработчики API сервиса orderbot.
type Handler struct {
	service  Service
	logger   *zap.Logger
	identity *middleware.Identity
	upgrader websocket.Upgrader
	debug    bool
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// При debug регистрируется отладочный маршрут /_sessions.
func NewHandler(s Service, logger *zap.Logger, identity *middleware.Identity, debug bool) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		debug: debug,
	}
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type orderResponse struct {
	OrderID   int64        `json:"order_id"`
	UserID    string       `json:"user_id"`
	Items     []model.Item `json:"items"`
	Total     float64      `json:"total"`
	Status    string       `json:"status"`
	CreatedAt string       `json:"created_at"`
}

type chatResponse struct {
	Reply      string         `json:"reply"`
	Intent     *string        `json:"intent"`
	Confidence *float64       `json:"confidence,omitempty"`
	Order      *orderResponse `json:"order,omitempty"`
	OrderID    *int64         `json:"order_id,omitempty"`
	Booking    *model.Booking `json:"booking,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var errInvalidUserID = errors.New("invalid user_id")

// Chat принимает одно сообщение пользователя и возвращает ответ бота.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
		return
	}

	userID, err := resolveUserID(r.Context(), req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid user_id"})
		return
	}

	resp, err := h.converse(r.Context(), userID, req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) converse(ctx context.Context, userID, message string) (chatResponse, error) {
	reply, err := h.service.HandleMessage(ctx, userID, message)
	if err != nil {
		h.logger.Error("handle message error", zap.Error(err), zap.String("userID", userID))
		return chatResponse{}, err
	}
	return newChatResponse(reply), nil
}

func resolveUserID(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		if !validation.IsValidUserID(requested) {
			return "", errInvalidUserID
		}
		return requested, nil
	}
	if id, ok := middleware.VisitorIDFromContext(ctx); ok {
		return id, nil
	}
	return AnonymousUserID, nil
}

func newChatResponse(reply model.Reply) chatResponse {
	resp := chatResponse{
		Reply:      reply.Text,
		Confidence: reply.Confidence,
		OrderID:    reply.OrderID,
		Booking:    reply.Booking,
	}
	if reply.Label != "" {
		label := reply.Label
		resp.Intent = &label
	}
	if reply.Order != nil {
		o := newOrderResponse(*reply.Order)
		resp.Order = &o
	}
	return resp
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Items:     o.Items,
		Total:     o.TotalAmount(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

// GetOrder возвращает заказ по номеру.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(*order))
}

// GetOrderHistory возвращает журнал статусов заказа.
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	history, err := h.service.OrderHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order history error", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// GetUserOrders возвращает заказы пользователя в порядке оформления.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validation.IsValidUserID(userID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetBooking возвращает бронирование по номеру.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	booking, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get booking error", zap.Error(err), zap.Int64("bookingID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// GetBookingHistory возвращает журнал статусов бронирования.
func (h *Handler) GetBookingHistory(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	history, err := h.service.BookingHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get booking history error", zap.Error(err), zap.Int64("bookingID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// GetUserBookings возвращает бронирования пользователя.
func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validation.IsValidUserID(userID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), userID)
	if err != nil {
		h.logger.Error("get bookings error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(bookings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

type sessionResponse struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	State          string       `json:"state"`
	LastIntent     string       `json:"last_intent,omitempty"`
	CartDraft      []model.Item `json:"cart_draft"`
	LastBotMessage string       `json:"last_bot_message,omitempty"`
	UpdatedAt      string       `json:"updated_at"`
}

// GetSessions выдаёт снимок всех сессий диалога. Доступен только в отладочном режиме.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions(r.Context())
	if err != nil {
		h.logger.Error("list sessions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		draft := s.Draft
		if draft == nil {
			draft = []model.Item{}
		}
		resp = append(resp, sessionResponse{
			ID:             s.ID,
			UserID:         s.UserID,
			State:          string(s.State()),
			LastIntent:     string(s.LastIntent),
			CartDraft:      draft,
			LastBotMessage: s.LastBotMessage,
			UpdatedAt:      s.UpdatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
