package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hackerdigest/pkg/digest"
)

// genericSubscribeResponse is returned for every accepted subscribe
// request, whether it created a pending subscription, updated an existing
// one, or hit the honeypot. Identical responses keep the endpoint from
// leaking who is subscribed.
const genericSubscribeResponse = `{"message":"Check your email to confirm your subscription"}`

type subscribeRequest struct {
	Email          string `json:"email"`
	Strategy       string `json:"strategy"`
	Website        string `json:"website"` // honeypot, must stay empty
	TurnstileToken string `json:"turnstile_token"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	securityHeaders(w)

	ip := clientIP(r)
	if !s.rateLimiter.allow(ip) {
		s.logger.Warn("Subscribe rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	var req subscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	// Bots fill every field; real users never see this one.
	if req.Website != "" {
		s.logger.Info("Honeypot triggered", "ip", ip)
		writeJSON(w, http.StatusOK, genericSubscribeResponse)
		return
	}

	email := digest.NormalizeEmail(req.Email)
	if !digest.ValidEmail(email) {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}
	strategy, err := s.strategies.Parse(req.Strategy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.captcha.Verify(r.Context(), req.TurnstileToken)
	if err != nil {
		s.logger.Error("Captcha verification unavailable", "error", err)
		http.Error(w, "Verification unavailable", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Captcha verification failed", http.StatusBadRequest)
		return
	}

	if err := s.subs.Request(r.Context(), email, strategy); err != nil {
		s.logger.Error("Subscribe request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, genericSubscribeResponse)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	email := digest.NormalizeEmail(r.URL.Query().Get("email"))
	token, err := digest.ParseToken(r.URL.Query().Get("token"))
	if !digest.ValidEmail(email) || err != nil {
		// Bad input looks exactly like an unknown token.
		http.Redirect(w, r, "/verify-error.html", http.StatusSeeOther)
		return
	}

	sub, err := s.subs.Verify(r.Context(), email, token)
	if err != nil {
		s.logger.Error("Verification failed", "error", err)
		http.Redirect(w, r, "/verify-error.html", http.StatusSeeOther)
		return
	}
	if sub == nil {
		http.Redirect(w, r, "/verify-error.html", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/verify-success.html", http.StatusSeeOther)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.unsubscribeConfirmPage(w, r)
	case http.MethodPost:
		s.unsubscribeExecute(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// unsubscribeConfirmPage shows the confirmation page for a valid token.
func (s *Server) unsubscribeConfirmPage(w http.ResponseWriter, r *http.Request) {
	token, err := digest.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
		return
	}

	sub, err := s.subs.ByToken(r.Context(), token)
	if err != nil {
		s.logger.Error("Unsubscribe lookup failed", "error", err)
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
		return
	}
	if sub == nil {
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(w)
	data := map[string]string{
		"Email": sub.Email,
		"Token": token.String(),
	}
	if err := templates.ExecuteTemplate(w, "unsubscribe.tmpl", data); err != nil {
		s.logger.Error("Failed to render template", "template", "unsubscribe.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// unsubscribeExecute removes the subscriber. Mail clients use RFC 8058
// one-click POSTs and get plain status codes; browsers get redirects.
func (s *Server) unsubscribeExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<10))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	oneClick := strings.Contains(string(body), "List-Unsubscribe=One-Click")

	token, tokenErr := digest.ParseToken(r.URL.Query().Get("token"))
	if tokenErr != nil {
		if oneClick {
			http.Error(w, "Invalid token", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
		return
	}

	removed, err := s.subs.RemoveByToken(r.Context(), token)
	switch {
	case err != nil:
		s.logger.Error("Unsubscribe failed", "error", err)
		if oneClick {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
	case !removed:
		if oneClick {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, "/unsubscribe-error.html", http.StatusSeeOther)
	default:
		if oneClick {
			w.WriteHeader(http.StatusOK)
			if _, err := fmt.Fprintln(w, "Unsubscribed"); err != nil {
				s.logger.Warn("Failed to write response", "error", err)
			}
			return
		}
		http.Redirect(w, r, "/unsubscribe-success.html", http.StatusSeeOther)
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}
