// Package middleware содержит HTTP middleware сервиса orderbot.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const visitorIDKey contextKey = "visitorID"

const (
	visitorCookieName = "orderbot_visitor"
	visitorCookieTTL  = 365 * 24 * time.Hour
)

// Identity назначает посетителю устойчивый идентификатор в подписанном cookie.
// Запрос без cookie или с неверной подписью не отклоняется: посетитель получает новый идентификатор.
type Identity struct {
	secretKey []byte
}

// NewIdentity создаёт Identity с указанным секретом подписи.
func NewIdentity(secret string) *Identity {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("orderbot-secret")
		}
	}

	return &Identity{
		secretKey: key,
	}
}

// Middleware кладёт идентификатор посетителя в контекст запроса и при необходимости выдаёт cookie.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visitorID := ""
		if cookie, err := r.Cookie(visitorCookieName); err == nil {
			if id, ok := i.parseCookie(cookie.Value); ok {
				visitorID = id
			}
		}

		if visitorID == "" {
			visitorID = uuid.NewString()
			i.SetCookie(w, visitorID)
		}

		ctx := context.WithValue(r.Context(), visitorIDKey, visitorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetCookie устанавливает подписанный cookie для указанного посетителя.
func (i *Identity) SetCookie(w http.ResponseWriter, visitorID string) {
	cookie := &http.Cookie{
		Name:     visitorCookieName,
		Value:    visitorID + "." + i.sign(visitorID),
		Path:     "/",
		Expires:  time.Now().Add(visitorCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (i *Identity) sign(visitorID string) string {
	mac := hmac.New(sha256.New, i.secretKey)
	mac.Write([]byte(visitorID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (i *Identity) parseCookie(value string) (string, bool) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}

	visitorID, signature := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(signature), []byte(i.sign(visitorID))) {
		return "", false
	}

	return visitorID, true
}

// VisitorIDFromContext извлекает идентификатор посетителя из контекста запроса.
func VisitorIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(visitorIDKey).(string)
	return id, ok && id != ""
}
