package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hackerdigest/bounce"
	"hackerdigest/pkg/digest"
	"hackerdigest/storage"
	"hackerdigest/subscribe"
)

// nopMailer satisfies the lifecycle mailer without sending anything.
type nopMailer struct{}

func (nopMailer) SendVerification(context.Context, string, string, string) error   { return nil }
func (nopMailer) SendPreferenceUpdate(context.Context, string, string, string) error { return nil }

// stubRunner records trigger calls.
type stubRunner struct {
	runs int
	err  error
}

func (r *stubRunner) Run(context.Context, time.Time) error {
	r.runs++
	return r.err
}

// allowCaptcha always passes.
type allowCaptcha struct{}

func (allowCaptcha) Verify(context.Context, string) (bool, error) { return true, nil }

func newTestServer(t *testing.T, store *storage.MemoryStore) (*Server, *stubRunner) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	strategies, err := digest.NewStrategySet([]int{10, 20}, []int{200})
	if err != nil {
		t.Fatalf("NewStrategySet() error = %v", err)
	}
	runner := &stubRunner{}
	srv := New(&Config{
		Subscriptions: subscribe.NewService(store, nopMailer{}, "https://digest.example.com", logger),
		Events:        bounce.NewHandler(store, logger),
		Runner:        runner,
		Captcha:       allowCaptcha{},
		Strategies:    strategies,
		Logger:        logger,
	})
	return srv, runner
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestSubscribeCreatesPending(t *testing.T) {
	store := storage.NewMemoryStore()
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/subscribe",
		`{"email":"user@example.com","strategy":"TOP_N#10","turnstile_token":"tok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Check your email") {
		t.Errorf("body = %q, want generic confirmation", rec.Body.String())
	}

	pending, err := store.GetPendingByEmail(context.Background(), "user@example.com")
	if err != nil || pending == nil {
		t.Fatalf("pending = %v, err = %v, want record", pending, err)
	}
}

func TestSubscribeHoneypotHasNoSideEffects(t *testing.T) {
	store := storage.NewMemoryStore()
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/subscribe",
		`{"email":"bot@example.com","strategy":"TOP_N#10","website":"http://spam.example"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for honeypot", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Check your email") {
		t.Errorf("honeypot body = %q, want generic confirmation", rec.Body.String())
	}

	pending, err := store.GetPendingByEmail(context.Background(), "bot@example.com")
	if err != nil {
		t.Fatalf("GetPendingByEmail() error = %v", err)
	}
	if pending != nil {
		t.Error("honeypot request created a pending subscription")
	}
}

func TestSubscribeValidation(t *testing.T) {
	srv, _ := newTestServer(t, storage.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid email", body: `{"email":"not-an-email","strategy":"TOP_N#10","turnstile_token":"t"}`},
		{name: "unknown strategy value", body: `{"email":"a@example.com","strategy":"TOP_N#999","turnstile_token":"t"}`},
		{name: "malformed strategy", body: `{"email":"a@example.com","strategy":"WEEKLY","turnstile_token":"t"}`},
		{name: "bad json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/subscribe", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSubscribeUniformResponseForExistingSubscriber(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	newRec := doRequest(srv, http.MethodPost, "/api/subscribe",
		`{"email":"fresh@example.com","strategy":"TOP_N#20","turnstile_token":"t"}`)
	existingRec := doRequest(srv, http.MethodPost, "/api/subscribe",
		`{"email":"user@example.com","strategy":"TOP_N#20","turnstile_token":"t"}`)

	if newRec.Code != existingRec.Code || newRec.Body.String() != existingRec.Body.String() {
		t.Errorf("responses differ: new = (%d, %q), existing = (%d, %q)",
			newRec.Code, newRec.Body.String(), existingRec.Code, existingRec.Body.String())
	}
}

func TestVerifyRedirects(t *testing.T) {
	pending := digest.NewPendingSubscription("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithPending(*pending))
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodGet,
		"/api/verify?email=user%40example.com&token="+pending.Token.String(), "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/verify-success.html" {
		t.Errorf("Location = %q, want success page", loc)
	}

	rec = doRequest(srv, http.MethodGet,
		"/api/verify?email=user%40example.com&token=wrong-token", "")
	if loc := rec.Header().Get("Location"); loc != "/verify-error.html" {
		t.Errorf("Location = %q, want error page", loc)
	}
}

func TestUnsubscribeConfirmPage(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodGet, "/api/unsubscribe?token="+sub.UnsubscribeToken.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "user@example.com") {
		t.Error("confirmation page missing subscriber email")
	}

	rec = doRequest(srv, http.MethodGet, "/api/unsubscribe?token=unknown", "")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/unsubscribe-error.html" {
		t.Errorf("unknown token: status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUnsubscribeOneClick(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost,
		"/api/unsubscribe?token="+sub.UnsubscribeToken.String(), "List-Unsubscribe=One-Click")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.HasSubscriber("user@example.com") {
		t.Error("one-click unsubscribe did not remove subscriber")
	}

	// Unknown token gets a plain 404 for the mail client.
	rec = doRequest(srv, http.MethodPost, "/api/unsubscribe?token=gone", "List-Unsubscribe=One-Click")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnsubscribeBrowserForm(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/unsubscribe?token="+sub.UnsubscribeToken.String(), "")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/unsubscribe-success.html" {
		t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if store.HasSubscriber("user@example.com") {
		t.Error("form unsubscribe did not remove subscriber")
	}
}

func TestEventsWebhook(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	// Raw SES event.
	rec := doRequest(srv, http.MethodPost, "/api/events",
		`{"eventType":"Bounce","bounce":{"bounceType":"Permanent","bouncedRecipients":[{"emailAddress":"user@example.com"}]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.HasSubscriber("user@example.com") {
		t.Error("bounced subscriber not removed")
	}
}

func TestEventsWebhookSNSEnvelope(t *testing.T) {
	sub := digest.NewSubscriber("user@example.com", digest.TopNStrategy(10))
	store := storage.NewMemoryStore(storage.WithSubscriber(*sub))
	srv, _ := newTestServer(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/events",
		`{"Type":"Notification","Message":"{\"eventType\":\"Complaint\",\"complaint\":{\"complainedRecipients\":[{\"emailAddress\":\"user@example.com\"}]}}"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.HasSubscriber("user@example.com") {
		t.Error("complained subscriber not removed")
	}
}

func TestDigestTrigger(t *testing.T) {
	srv, runner := newTestServer(t, storage.NewMemoryStore())

	rec := doRequest(srv, http.MethodPost, "/digestz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if runner.runs != 1 {
		t.Errorf("runner triggered %d times, want 1", runner.runs)
	}

	rec = doRequest(srv, http.MethodGet, "/digestz", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, storage.NewMemoryStore())

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
