package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no alert exists for a chat and symbol
var ErrNotFound = errors.New("alert not found")

// Alert is a user's price threshold for one symbol. A chat holds at most one
// alert per symbol; adding another replaces it.
type Alert struct {
	ID            string        `json:"id"`
	ChatID        int64         `json:"chat_id"`
	Symbol        string        `json:"symbol"`
	Threshold     float64       `json:"threshold"`
	Interval      time.Duration `json:"interval"`
	CreatedAt     time.Time     `json:"created_at"`
	LastCheckedAt time.Time     `json:"last_checked_at,omitempty"`
}

// NewAlert stamps a fresh ID and creation time
func NewAlert(chatID int64, symbol string, threshold float64, interval time.Duration, now time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Symbol:    symbol,
		Threshold: threshold,
		Interval:  interval,
		CreatedAt: now,
	}
}

// Due reports whether the alert's own interval has elapsed since its last check
func (a Alert) Due(now time.Time) bool {
	return a.LastCheckedAt.IsZero() || now.Sub(a.LastCheckedAt) >= a.Interval
}

// Triggered reports whether price has reached the threshold
func (a Alert) Triggered(price float64) bool {
	return price >= a.Threshold
}

func (a Alert) key() string {
	return alertKey(a.ChatID, a.Symbol)
}

func alertKey(chatID int64, symbol string) string {
	return fmt.Sprintf("%d:%s", chatID, symbol)
}

// Store persists alerts and the set of chats that paused notifications
type Store interface {
	Add(ctx context.Context, a Alert) error
	List(ctx context.Context, chatID int64) ([]Alert, error)
	All(ctx context.Context) ([]Alert, error)
	Remove(ctx context.Context, chatID int64, symbol string) error
	MarkChecked(ctx context.Context, chatID int64, symbol string, at time.Time) error
	SetPaused(ctx context.Context, chatID int64, paused bool) error
	IsPaused(ctx context.Context, chatID int64) (bool, error)
}

// sortAlerts orders by chat then symbol so listings are stable
func sortAlerts(list []Alert) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ChatID != list[j].ChatID {
			return list[i].ChatID < list[j].ChatID
		}
		return list[i].Symbol < list[j].Symbol
	})
}
