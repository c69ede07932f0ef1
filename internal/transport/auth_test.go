package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestAuth_TokenSourceEquivalence is spec §8's "Token-validation
// equivalence: Bearer <T>, x-agmux-token: <T>, ?token=<T> are accepted
// iff <T> equals the configured token."
func TestAuth_TokenSourceEquivalence(t *testing.T) {
	a, err := NewAuth(true, "secret-token", nil)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	mk := func(mutate func(r *http.Request)) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		mutate(r)
		return r
	}

	cases := []struct {
		name string
		req  *http.Request
		want bool
	}{
		{"header correct", mk(func(r *http.Request) { r.Header.Set("x-agmux-token", "secret-token") }), true},
		{"header wrong", mk(func(r *http.Request) { r.Header.Set("x-agmux-token", "nope") }), false},
		{"bearer correct", mk(func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-token") }), true},
		{"bearer wrong", mk(func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }), false},
		{"query correct", mk(func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "secret-token")
			r.URL.RawQuery = q.Encode()
		}), true},
		{"query wrong", mk(func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "nope")
			r.URL.RawQuery = q.Encode()
		}), false},
		{"no token", mk(func(r *http.Request) {}), false},
	}

	for _, c := range cases {
		got := a.Validate(TokenFromRequest(c.req))
		if got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAuth_DisabledSkipsTokenCheck(t *testing.T) {
	a, err := NewAuth(false, "", nil)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !a.CheckUpgrade(r) {
		t.Fatalf("expected upgrade to pass when auth disabled")
	}
}

func TestAuth_GeneratesTokenWhenEnabledAndUnconfigured(t *testing.T) {
	a, err := NewAuth(true, "", nil)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	if a.Token() == "" {
		t.Fatalf("expected a generated token")
	}
	if len(a.Token()) != 64 { // 32 bytes hex-encoded
		t.Fatalf("expected 64 hex chars, got %d", len(a.Token()))
	}
}

func TestAuth_OriginAllowlist(t *testing.T) {
	a, err := NewAuth(false, "", []string{"127.0.0.1:4317"})
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "http://127.0.0.1:4317")
	if !a.CheckUpgrade(allowed) {
		t.Fatalf("expected allowlisted origin to pass")
	}

	blocked := httptest.NewRequest(http.MethodGet, "/ws", nil)
	blocked.Header.Set("Origin", "http://evil.example.com")
	if a.CheckUpgrade(blocked) {
		t.Fatalf("expected non-allowlisted origin to be rejected")
	}
}
