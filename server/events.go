package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"hackerdigest/bounce"
)

// snsEnvelope is the wrapper SNS puts around SES notifications when the
// webhook is subscribed through a topic.
type snsEnvelope struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// handleEvents receives SES delivery notifications, unwrapping the SNS
// envelope when present.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	payload := body
	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type != "" {
		switch envelope.Type {
		case "SubscriptionConfirmation":
			// Confirmation is done manually; just surface the URL.
			s.logger.Info("SNS subscription confirmation received", "subscribe_url", envelope.SubscribeURL)
			w.WriteHeader(http.StatusOK)
			return
		case "Notification":
			payload = []byte(envelope.Message)
		}
	}

	var notification bounce.Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		s.logger.Warn("Undecodable delivery event", "error", err)
		http.Error(w, "Invalid notification", http.StatusBadRequest)
		return
	}

	if err := s.events.Handle(r.Context(), &notification); err != nil {
		s.logger.Error("Delivery event failed", "event_type", notification.EventType, "error", err)
		http.Error(w, "Event handling failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "OK"); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
