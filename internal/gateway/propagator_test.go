package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novadent/clinic-core/internal/identity"
)

var testPolicy = CookiePolicy{Name: "clinic_session", Path: "/", Secure: true}

func testCredential(access, refresh string) *identity.Credential {
	return &identity.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(15 * time.Minute),
		SubjectID:    "usr-001",
		Email:        "staff@clinic.example",
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestPropagator_SetCredential(t *testing.T) {
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))

	rr := httptest.NewRecorder()
	prop.Apply(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2 (session + refresh)", len(cookies))
	}

	sess := findCookie(cookies, "clinic_session")
	if sess == nil {
		t.Fatal("session cookie missing")
	}
	if sess.Value != "access-1" {
		t.Errorf("session value = %q, want access-1", sess.Value)
	}
	if !sess.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if !sess.Secure {
		t.Error("session cookie must be Secure under a secure policy")
	}
	if sess.Path != "/" {
		t.Errorf("session path = %q, want /", sess.Path)
	}

	refresh := findCookie(cookies, "clinic_session_refresh")
	if refresh == nil {
		t.Fatal("refresh cookie missing")
	}
	if refresh.Path != "/auth" {
		t.Errorf("refresh path = %q, want /auth", refresh.Path)
	}
}

func TestPropagator_LastWriteWins(t *testing.T) {
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))
	prop.SetCredential(testCredential("access-2", "refresh-2"))

	rr := httptest.NewRecorder()
	prop.Apply(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2 (earlier writes must be superseded, not stacked)", len(cookies))
	}

	sess := findCookie(cookies, "clinic_session")
	if sess.Value != "access-2" {
		t.Errorf("session value = %q, want access-2 (last write wins)", sess.Value)
	}
}

func TestPropagator_ApplyIsIdempotent(t *testing.T) {
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))

	rr := httptest.NewRecorder()
	prop.Apply(rr)
	prop.Apply(rr)

	if got := len(rr.Result().Cookies()); got != 2 {
		t.Errorf("cookies after double Apply = %d, want 2", got)
	}
}

func TestPropagator_Clear(t *testing.T) {
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))
	prop.Clear()

	rr := httptest.NewRecorder()
	prop.Apply(rr)

	for _, c := range rr.Result().Cookies() {
		if c.Value != "" {
			t.Errorf("cookie %q value = %q, want empty after Clear", c.Name, c.Value)
		}
		if c.MaxAge != -1 {
			t.Errorf("cookie %q MaxAge = %d, want -1", c.Name, c.MaxAge)
		}
	}
}

func TestPropagator_WrapAppliesOnRedirect(t *testing.T) {
	// The credential staged before a redirect decision must ride on the
	// redirect response.
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))

	rr := httptest.NewRecorder()
	ww := prop.Wrap(rr)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	http.Redirect(ww, req, "/dashboard", http.StatusFound)

	res := rr.Result()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", res.StatusCode)
	}
	if findCookie(res.Cookies(), "clinic_session") == nil {
		t.Error("session cookie missing from redirect response")
	}
}

func TestPropagator_WrapAppliesOnImplicitOK(t *testing.T) {
	prop := NewPropagator(testPolicy)
	prop.SetCredential(testCredential("access-1", "refresh-1"))

	rr := httptest.NewRecorder()
	ww := prop.Wrap(rr)

	// Write without an explicit WriteHeader.
	if _, err := ww.Write([]byte("ok")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if findCookie(rr.Result().Cookies(), "clinic_session") == nil {
		t.Error("session cookie missing from implicit 200 response")
	}
}

func TestSessionCookie_Sources(t *testing.T) {
	// Cookie wins over header.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "clinic_session", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	if got := SessionCookie(req, testPolicy); got != "from-cookie" {
		t.Errorf("SessionCookie() = %q, want from-cookie", got)
	}

	// Bearer header is the fallback for non-browser clients.
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer from-header")

	if got := SessionCookie(req, testPolicy); got != "from-header" {
		t.Errorf("SessionCookie() = %q, want from-header", got)
	}

	// Nothing present.
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if got := SessionCookie(req, testPolicy); got != "" {
		t.Errorf("SessionCookie() = %q, want empty", got)
	}
}
