package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Outbox appends events to a local JSONL journal. An alert ID is written at
// most once, so a retried trigger does not produce a second entry.
type Outbox struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// NewOutbox opens (or creates) the journal at path and indexes alert IDs
// already in it
func NewOutbox(path string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	o := &Outbox{path: path, seen: make(map[string]struct{})}
	if err := o.load(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Outbox) load() error {
	f, err := os.Open(o.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AlertTriggered
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // tolerate a torn last line
		}
		o.seen[ev.AlertID] = struct{}{}
	}
	return scanner.Err()
}

func (o *Outbox) Publish(ctx context.Context, ev AlertTriggered) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, dup := o.seen[ev.AlertID]; dup {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	o.seen[ev.AlertID] = struct{}{}
	return nil
}

// HasAlert reports whether an alert ID is already journaled
func (o *Outbox) HasAlert(alertID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.seen[alertID]
	return ok
}

func (o *Outbox) Close() error { return nil }
