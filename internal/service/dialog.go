package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/classifier"
	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/extract"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
)

// shortcutConfidence уверенность, с которой сообщается найденный по номеру заказ.
const shortcutConfidence = 0.99

const (
	defaultPeople = 2
	defaultTime   = "19:00"
)

const (
	msgEmptyInput      = "Please type something so I can help."
	msgFallback        = "I didn't get that. I can help with ordering or tracking orders. Try 'order' or 'track <order_id>'."
	msgFinalFallback   = "Sorry, I couldn't process that."
	msgNewOrder        = "Sure, what would you like to order?"
	msgNoItems         = "I couldn't find any items in that. Tell me what you'd like, for example '2 burgers and 1 coke'."
	msgCartEmpty       = "There are no items in your cart. Tell me what you want to order."
	msgAskOrderID      = "Please provide your order id (e.g., 1001)."
	msgAskCancelID     = "Which order would you like to cancel? Please give me the order id."
	msgNothingRemoved  = "I couldn't find that in your cart."
	msgDraftDiscarded  = "Okay, I've cleared your cart."
	msgNoActiveBooking = "I couldn't find an active booking to cancel."
)

var (
	confirmRe = regexp.MustCompile(`(?i)\b(confirm|place order|yes confirm|place it|confirm order|checkout)\b`)
	bookingRe = regexp.MustCompile(`(?i)\b(booking|reservation|table)s?\b`)
	// Бронирования нумеруются с 1, поэтому номер ищется рядом с ключевым словом.
	bookingIDRe = regexp.MustCompile(`(?i)\b(?:booking|reservation)\s*(?:id\s*)?#?\s*(\d{1,8})\b`)
	wordRe      = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// Слова, которые могут окружать номер заказа, не меняя смысла сообщения.
var shortcutWords = map[string]struct{}{
	"order": {}, "orders": {}, "id": {}, "no": {}, "number": {}, "status": {},
	"track": {}, "tracking": {}, "check": {}, "my": {}, "of": {}, "for": {},
	"is": {}, "the": {}, "what": {}, "whats": {}, "s": {}, "where": {}, "please": {},
}

// HandleMessage обрабатывает одно сообщение пользователя и возвращает ответ.
// Ошибка возвращается только при сбое классификатора или хранилищ; в этом случае сессия не сохраняется.
func (s *Service) HandleMessage(ctx context.Context, userID, text string) (model.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Reply{Text: msgEmptyInput}, nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	sess, err := s.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return model.Reply{}, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if s.idleTimeout > 0 && now.Sub(sess.UpdatedAt) > s.idleTimeout {
		sess.LastIntent = model.IntentNone
		sess.Draft = nil
		sess.LastBotMessage = ""
		sess.CreatedAt = now
	}

	before := sess.State()

	reply, err := s.dispatch(ctx, sess, text, now)
	if err != nil {
		return model.Reply{}, err
	}

	sess.LastBotMessage = reply.Text
	sess.UpdatedAt = now
	if err := s.sessions.Save(ctx, sess); err != nil {
		return model.Reply{}, fmt.Errorf("save session: %w", err)
	}

	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("intent", reply.Label),
		zap.String("state_before", string(before)),
		zap.String("state_after", string(sess.State())),
	}
	if reply.Confidence != nil {
		fields = append(fields, zap.Float64("confidence", *reply.Confidence))
	}
	s.logger.Debug("dialog turn", fields...)

	return reply, nil
}

type turn struct {
	sess *model.Session
	text string
	ents model.Entities
	pred classifier.Prediction
	now  time.Time
}

func (t *turn) reply(label model.Intent, text string) model.Reply {
	conf := t.pred.Confidence
	return model.Reply{Text: text, Label: string(label), Confidence: &conf}
}

func (s *Service) dispatch(ctx context.Context, sess *model.Session, text string, now time.Time) (model.Reply, error) {
	t := &turn{
		sess: sess,
		text: text,
		ents: extract.All(text, s.catalog.MenuNames()),
		now:  now,
	}

	if t.ents.OrderID != nil && idOnly(text) {
		o, err := s.repo.GetOrder(ctx, *t.ents.OrderID)
		switch {
		case err == nil:
			sess.LastIntent = model.IntentNone
			conf := shortcutConfidence
			return model.Reply{
				Text:       describeOrder(o),
				Label:      string(model.IntentTrackOrder),
				Confidence: &conf,
				Order:      o,
				OrderID:    &o.ID,
			}, nil
		case !errors.Is(err, repository.ErrOrderNotFound):
			return model.Reply{}, fmt.Errorf("get order: %w", err)
		}
	}

	pred, err := s.classifier.Predict(ctx, text)
	if err != nil {
		return model.Reply{}, err
	}
	t.pred = pred

	intent := pred.Intent
	awaiting := sess.LastIntent == model.IntentNewOrder

	switch {
	case intent == model.IntentFallback:
		return s.fallback(t), nil
	case intent == model.IntentNewOrder:
		return s.startOrder(t), nil
	// После new_order любое сообщение разбирается как список позиций.
	case intent == model.IntentOrderItem || awaiting:
		return s.addItems(t), nil
	case intent == model.IntentRemoveItem:
		return s.removeItems(t), nil
	case intent == model.IntentConfirmOrder || confirmRe.MatchString(text):
		return s.confirmOrder(ctx, t)
	case intent == model.IntentTrackOrder:
		return s.trackOrder(ctx, t)
	case intent == model.IntentCancelOrder:
		return s.cancel(ctx, t)
	case intent == model.IntentBookTable:
		return s.bookTable(ctx, t)
	default:
		return s.canned(t), nil
	}
}

func (s *Service) fallback(t *turn) model.Reply {
	t.sess.LastIntent = model.IntentFallback
	return t.reply(model.IntentFallback, s.lookup(string(model.IntentFallback), msgFallback))
}

func (s *Service) startOrder(t *turn) model.Reply {
	t.sess.LastIntent = model.IntentNewOrder
	t.sess.Draft = nil
	return t.reply(model.IntentNewOrder, s.lookup(string(model.IntentNewOrder), msgNewOrder))
}

func (s *Service) addItems(t *turn) model.Reply {
	items := t.ents.Items
	if len(items) == 0 {
		return t.reply(model.IntentOrderItem, msgNoItems)
	}

	t.sess.Draft = append(t.sess.Draft, items...)
	t.sess.LastIntent = model.IntentOrderItem
	return t.reply(model.IntentOrderItem, fmt.Sprintf(
		"Added %s to your cart. Say 'confirm' to place order or add more items.",
		model.DescribeItems(items),
	))
}

func (s *Service) removeItems(t *turn) model.Reply {
	t.sess.LastIntent = model.IntentRemoveItem

	var removed []model.Item
	for _, req := range t.ents.Items {
		idx := -1
		for i, line := range t.sess.Draft {
			if strings.EqualFold(line.Name, req.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		line := t.sess.Draft[idx]
		if line.Qty > req.Qty {
			t.sess.Draft[idx].Qty -= req.Qty
			removed = append(removed, model.Item{Name: line.Name, Qty: req.Qty})
			continue
		}
		t.sess.Draft = append(t.sess.Draft[:idx], t.sess.Draft[idx+1:]...)
		removed = append(removed, line)
	}

	if len(removed) == 0 {
		return t.reply(model.IntentRemoveItem, msgNothingRemoved)
	}

	cart := "Your cart is now empty."
	if len(t.sess.Draft) > 0 {
		cart = "Your cart: " + model.DescribeItems(t.sess.Draft) + "."
	}
	return t.reply(model.IntentRemoveItem, fmt.Sprintf("Removed %s. %s", model.DescribeItems(removed), cart))
}

func (s *Service) confirmOrder(ctx context.Context, t *turn) (model.Reply, error) {
	if len(t.sess.Draft) == 0 {
		return t.reply(model.IntentConfirmOrder, msgCartEmpty), nil
	}

	var total int64
	for _, it := range t.sess.Draft {
		total += int64(it.Qty) * s.unitPrice(it.Name)
	}

	o, err := s.repo.CreateOrder(ctx, t.sess.UserID, t.sess.Draft, total)
	if err != nil {
		return model.Reply{}, fmt.Errorf("create order: %w", err)
	}
	s.publish(ctx, events.OrderEvent(events.TypeOrderConfirmed, o, t.now))

	t.sess.Draft = nil
	t.sess.LastIntent = model.IntentNone

	r := t.reply(model.IntentConfirmOrder, fmt.Sprintf(
		"Order placed! Your order id is %d. Total %s. Use 'track %d' to follow progress.",
		o.ID, s.money(o.Total), o.ID,
	))
	r.Order = o
	r.OrderID = &o.ID
	return r, nil
}

func (s *Service) trackOrder(ctx context.Context, t *turn) (model.Reply, error) {
	if t.ents.OrderID == nil {
		return t.reply(model.IntentTrackOrder, s.lookup(string(model.IntentTrackOrder), msgAskOrderID)), nil
	}

	id := *t.ents.OrderID
	o, err := s.repo.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return t.reply(model.IntentTrackOrder, orderNotFound(id)), nil
	}
	if err != nil {
		return model.Reply{}, fmt.Errorf("get order: %w", err)
	}

	t.sess.LastIntent = model.IntentNone
	r := t.reply(model.IntentTrackOrder, describeOrder(o))
	r.Order = o
	r.OrderID = &o.ID
	return r, nil
}

func (s *Service) cancel(ctx context.Context, t *turn) (model.Reply, error) {
	if bookingRe.MatchString(t.text) {
		return s.cancelBooking(ctx, t)
	}

	if t.ents.OrderID == nil && len(t.sess.Draft) > 0 {
		t.sess.Draft = nil
		t.sess.LastIntent = model.IntentNone
		return t.reply(model.IntentCancelOrder, msgDraftDiscarded), nil
	}

	o, err := s.cancelTarget(ctx, t)
	if err != nil {
		return model.Reply{}, err
	}
	if o == nil {
		if t.ents.OrderID != nil {
			return t.reply(model.IntentCancelOrder, orderNotFound(*t.ents.OrderID)), nil
		}
		t.sess.LastIntent = model.IntentCancelOrder
		return t.reply(model.IntentCancelOrder, s.lookup(string(model.IntentCancelOrder), msgAskCancelID)), nil
	}

	t.sess.LastIntent = model.IntentNone

	if o.Status != model.OrderStatusCancelled {
		updated, err := s.repo.UpdateOrderStatus(ctx, o.ID, model.OrderStatusCancelled)
		switch {
		case err == nil:
			s.publish(ctx, events.OrderEvent(events.TypeOrderCancelled, updated, t.now))
			r := t.reply(model.IntentCancelOrder, fmt.Sprintf("Order #%d has been cancelled.", updated.ID))
			r.Order = updated
			r.OrderID = &updated.ID
			return r, nil
		case !errors.Is(err, repository.ErrInvalidStatusTransition):
			return model.Reply{}, fmt.Errorf("cancel order: %w", err)
		}
		// Заказ отменён параллельным запросом.
	}

	r := t.reply(model.IntentCancelOrder, fmt.Sprintf("Order #%d is already cancelled.", o.ID))
	r.OrderID = &o.ID
	return r, nil
}

// cancelTarget возвращает заказ пользователя по явному номеру или последний созданный.
// Чужие заказы считаются ненайденными.
func (s *Service) cancelTarget(ctx context.Context, t *turn) (*model.Order, error) {
	if t.ents.OrderID != nil {
		o, err := s.repo.GetOrder(ctx, *t.ents.OrderID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if o.UserID != t.sess.UserID {
			return nil, nil
		}
		return o, nil
	}

	orders, err := s.repo.ListOrders(ctx, t.sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[len(orders)-1], nil
}

func (s *Service) cancelBooking(ctx context.Context, t *turn) (model.Reply, error) {
	t.sess.LastIntent = model.IntentNone

	var target *model.Booking
	if m := bookingIDRe.FindStringSubmatch(t.text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return t.reply(model.IntentCancelOrder, msgNoActiveBooking), nil
		}
		b, err := s.repo.GetBooking(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrBookingNotFound) {
			return model.Reply{}, fmt.Errorf("get booking: %w", err)
		}
		if err != nil || b.UserID != t.sess.UserID {
			return t.reply(model.IntentCancelOrder, fmt.Sprintf("I couldn't find booking #%d. Please check the ID.", id)), nil
		}
		target = b
	} else {
		bookings, err := s.repo.ListBookings(ctx, t.sess.UserID)
		if err != nil {
			return model.Reply{}, fmt.Errorf("list bookings: %w", err)
		}
		for i := len(bookings) - 1; i >= 0; i-- {
			if bookings[i].Status == model.BookingStatusBooked {
				target = &bookings[i]
				break
			}
		}
	}

	if target == nil {
		return t.reply(model.IntentCancelOrder, msgNoActiveBooking), nil
	}
	if target.Status == model.BookingStatusCancelled {
		return t.reply(model.IntentCancelOrder, fmt.Sprintf("Booking #%d is already cancelled.", target.ID)), nil
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, target.ID, model.BookingStatusCancelled)
	if errors.Is(err, repository.ErrInvalidStatusTransition) {
		return t.reply(model.IntentCancelOrder, fmt.Sprintf("Booking #%d is already cancelled.", target.ID)), nil
	}
	if err != nil {
		return model.Reply{}, fmt.Errorf("cancel booking: %w", err)
	}
	s.publish(ctx, events.BookingEvent(events.TypeBookingCancelled, updated, t.now))

	r := t.reply(model.IntentCancelOrder, fmt.Sprintf("Booking #%d has been cancelled.", updated.ID))
	r.Booking = updated
	return r, nil
}

func (s *Service) bookTable(ctx context.Context, t *turn) (model.Reply, error) {
	d := t.ents.Booking

	nb := repository.NewBooking{
		UserID:     t.sess.UserID,
		People:     defaultPeople,
		Time:       defaultTime,
		Date:       t.now.Format(time.DateOnly),
		Preference: d.Preference,
	}
	if d.People != nil {
		nb.People = *d.People
	}
	if d.Time != nil {
		nb.Time = *d.Time
	}
	switch {
	case d.Date != nil:
		nb.Date = *d.Date
	case d.RelativeDate == "tomorrow":
		nb.Date = t.now.AddDate(0, 0, 1).Format(time.DateOnly)
	}

	b, err := s.repo.CreateBooking(ctx, nb)
	if err != nil {
		return model.Reply{}, fmt.Errorf("create booking: %w", err)
	}
	s.publish(ctx, events.BookingEvent(events.TypeBookingCreated, b, t.now))

	t.sess.LastIntent = model.IntentNone

	text := fmt.Sprintf("Table booked for %d on %s at %s", b.People, b.Date, b.Time)
	if b.Preference != nil {
		text += fmt.Sprintf(" (%s)", *b.Preference)
	}
	text += fmt.Sprintf(". Your booking id is %d.", b.ID)

	r := t.reply(model.IntentBookTable, text)
	r.Booking = b
	return r, nil
}

// canned отвечает готовой фразой каталога: сначала по исходной метке модели, затем по намерению.
func (s *Service) canned(t *turn) model.Reply {
	label := t.pred.Label
	if t.pred.Intent != model.IntentOther {
		label = string(t.pred.Intent)
	}

	text, ok := s.catalog.Lookup(t.pred.Label)
	if !ok {
		text, ok = s.catalog.Lookup(string(t.pred.Intent))
	}
	if ok {
		t.sess.LastIntent = t.pred.Intent
		return t.reply(model.Intent(label), text)
	}

	t.sess.LastIntent = model.IntentFallback
	return t.reply(model.IntentFallback, s.lookup(string(model.IntentFallback), msgFinalFallback))
}

func (s *Service) lookup(tag, def string) string {
	if text, ok := s.catalog.Lookup(tag); ok {
		return text
	}
	return def
}

func (s *Service) unitPrice(name string) int64 {
	if p, ok := s.catalog.UnitPrice(name); ok {
		return p
	}
	return s.defaultUnitPrice
}

func (s *Service) money(cents int64) string {
	return fmt.Sprintf("%s%.2f", s.catalog.Currency(), float64(cents)/100)
}

func describeOrder(o *model.Order) string {
	return fmt.Sprintf("Order #%d: %s. Status: %s (placed %s)",
		o.ID, model.DescribeItems(o.Items), o.Status, o.CreatedAt.Format(time.DateTime))
}

func orderNotFound(id int64) string {
	return fmt.Sprintf("I couldn't find order #%d. Please check the ID.", id)
}

// idOnly сообщает, что кроме номера заказа в тексте только служебные слова.
func idOnly(text string) bool {
	var sawID bool
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if isOrderID(w) {
			if sawID {
				return false
			}
			sawID = true
			continue
		}
		if _, ok := shortcutWords[w]; !ok {
			return false
		}
	}
	return sawID
}

func isOrderID(w string) bool {
	if len(w) < 3 || len(w) > 8 {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
