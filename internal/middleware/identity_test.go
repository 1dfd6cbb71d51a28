package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func visitorCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == visitorCookieName {
			return c
		}
	}
	return nil
}

func TestIdentity_WithValidCookie(t *testing.T) {
	m := NewIdentity("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := VisitorIDFromContext(r.Context())
		if !ok {
			t.Fatalf("visitor id not in context")
		}
		if id != "visitor-42" {
			t.Fatalf("visitor id from context = %q, want %q", id, "visitor-42")
		}
	})

	issued := httptest.NewRecorder()
	m.SetCookie(issued, "visitor-42")
	cookie := visitorCookie(t, issued.Result())
	if cookie == nil {
		t.Fatalf("no cookie set by SetCookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()

	m.Middleware(next).ServeHTTP(w, r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
	if visitorCookie(t, w.Result()) != nil {
		t.Fatalf("cookie reissued for a known visitor")
	}
}

func TestIdentity_WithoutCookie(t *testing.T) {
	m := NewIdentity("test-secret")

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := VisitorIDFromContext(r.Context())
		if !ok {
			t.Fatalf("visitor id not in context")
		}
		got = id
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	m.Middleware(next).ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	cookie := visitorCookie(t, res)
	if cookie == nil {
		t.Fatalf("no visitor cookie issued")
	}
	if !strings.HasPrefix(cookie.Value, got+".") {
		t.Fatalf("cookie %q does not carry visitor id %q", cookie.Value, got)
	}
	if !cookie.HttpOnly {
		t.Fatalf("cookie must be HttpOnly")
	}
}

func TestIdentity_TamperedCookie(t *testing.T) {
	m := NewIdentity("test-secret")

	tests := []struct {
		name  string
		value string
	}{
		{name: "no signature", value: "alice"},
		{name: "empty signature", value: "alice."},
		{name: "wrong signature", value: "alice.deadbeef"},
		{name: "signed by other secret", value: "alice." + NewIdentity("other").sign("alice")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = VisitorIDFromContext(r.Context())
			})

			r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
			r.AddCookie(&http.Cookie{Name: visitorCookieName, Value: tt.value})
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)

			if got == "" || got == "alice" {
				t.Fatalf("visitor id = %q, want a freshly issued id", got)
			}
			if visitorCookie(t, w.Result()) == nil {
				t.Fatalf("no replacement cookie issued")
			}
		})
	}
}

func TestIdentity_SignatureWithDotsInID(t *testing.T) {
	m := NewIdentity("test-secret")

	id, ok := m.parseCookie("user.name@example.com." + m.sign("user.name@example.com"))
	if !ok {
		t.Fatalf("valid cookie rejected")
	}
	if id != "user.name@example.com" {
		t.Fatalf("visitor id = %q, want %q", id, "user.name@example.com")
	}
}

func TestVisitorIDFromContext_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := VisitorIDFromContext(r.Context()); ok {
		t.Fatalf("visitor id found in empty context")
	}
}
