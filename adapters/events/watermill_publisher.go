package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/zenderhuis/portier/ports"
)

// Topics for auth state transitions.
const (
	LoginTopic          = "portier.login"
	LogoutTopic         = "portier.logout"
	ReauthRequiredTopic = "portier.reauth_required"
)

// LoginEvent announces a completed login handshake.
type LoginEvent struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	At        time.Time `json:"at"`
}

// LogoutEvent announces that the local session was cleared.
type LogoutEvent struct {
	At time.Time `json:"at"`
}

// ReauthRequiredEvent announces that the session can no longer be refreshed.
type ReauthRequiredEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill-backed publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a login event.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, firstName, lastName string) error {
	return p.publish(LoginTopic, LoginEvent{
		FirstName: firstName,
		LastName:  lastName,
		At:        time.Now().UTC(),
	})
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context) error {
	return p.publish(LogoutTopic, LogoutEvent{At: time.Now().UTC()})
}

// PublishReauthRequired publishes a reauth-required event.
func (p *WatermillPublisher) PublishReauthRequired(ctx context.Context, reason string) error {
	return p.publish(ReauthRequiredTopic, ReauthRequiredEvent{
		Reason: reason,
		At:     time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
