package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TypeAlertTriggered is published once per alert that crossed its threshold
const TypeAlertTriggered = "alert.triggered"

// AlertTriggered records a threshold crossing
type AlertTriggered struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	AlertID    string    `json:"alert_id"`
	ChatID     int64     `json:"chat_id"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Threshold  float64   `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAlertTriggered stamps a fresh event ID
func NewAlertTriggered(alertID string, chatID int64, symbol string, price, threshold float64, at time.Time) AlertTriggered {
	return AlertTriggered{
		EventID:    uuid.NewString(),
		Type:       TypeAlertTriggered,
		AlertID:    alertID,
		ChatID:     chatID,
		Symbol:     symbol,
		Price:      price,
		Threshold:  threshold,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, ev AlertTriggered) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AlertTriggered) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

// MultiPublisher fans an event out to every publisher and joins their errors
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev AlertTriggered) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
