package websocket

import (
	"encoding/base64"
	"testing"

	"go.uber.org/zap"
)

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{
		BroadcastRedactions: true,
		BroadcastRequests:   false,
		BroadcastSystem:     true,
	}, zap.NewNop())

	tests := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeRedaction, true},
		{EventTypeRequestLog, false},
		{EventTypeSystemStatus, true},
		{EventTypeConnection, false},
		{"unknown", false},
	}

	for _, tt := range tests {
		if got := hub.shouldBroadcastEvent(tt.eventType); got != tt.want {
			t.Errorf("shouldBroadcastEvent(%q) = %v, want %v", tt.eventType, got, tt.want)
		}
	}
}

func TestShouldSendToClient(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())

	t.Run("NoSubscriptionReceivesAll", func(t *testing.T) {
		client := &Client{}
		if !hub.shouldSendToClient(client, Event{Type: EventTypeRedaction}) {
			t.Error("Client without subscription should receive all events")
		}
	})

	t.Run("FilteredSubscription", func(t *testing.T) {
		client := &Client{Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypeRedaction},
		}}

		if !hub.shouldSendToClient(client, Event{Type: EventTypeRedaction}) {
			t.Error("Subscribed event type should be delivered")
		}
		if hub.shouldSendToClient(client, Event{Type: EventTypeRequestLog}) {
			t.Error("Unsubscribed event type should be filtered")
		}
	})
}

func TestParseBasicAuth(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
		user, pass, ok := parseBasicAuth(auth)
		if !ok {
			t.Fatal("Valid auth header should parse")
		}
		if user != "admin" || pass != "secret" {
			t.Errorf("Parsed %q/%q, want admin/secret", user, pass)
		}
	})

	t.Run("WrongScheme", func(t *testing.T) {
		if _, _, ok := parseBasicAuth("Bearer token"); ok {
			t.Error("Non-basic scheme should fail")
		}
	})

	t.Run("BadEncoding", func(t *testing.T) {
		if _, _, ok := parseBasicAuth("Basic not-base64!!"); ok {
			t.Error("Invalid base64 should fail")
		}
	})

	t.Run("MissingColon", func(t *testing.T) {
		auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("nopassword"))
		if _, _, ok := parseBasicAuth(auth); ok {
			t.Error("Credentials without a colon should fail")
		}
	})
}
