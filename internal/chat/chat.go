// Package chat keeps an append-only conversation log between the runner and
// the story companion.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/verte-zerg/lovefit/internal/model"
)

// DefaultPollInterval is how often Listen checks for new messages.
const DefaultPollInterval = 2 * time.Second

var ErrEmptyMessage = errors.New("message text is empty")

// Store is the persistence surface the log needs.
type Store interface {
	InsertMessage(ctx context.Context, m model.Message) error
	ListMessages(ctx context.Context, userID string, after time.Time, limit int) ([]model.Message, error)
}

type Log struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewLog(store Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Send appends a message. Timestamps are strictly increasing per process so
// the log order matches send order.
func (l *Log) Send(ctx context.Context, userID, text, audioURL string, isUser bool) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && audioURL == "" {
		return model.Message{}, ErrEmptyMessage
	}

	l.mu.Lock()
	ts := l.now().UTC()
	if !ts.After(l.last) {
		ts = l.last.Add(time.Microsecond)
	}
	l.last = ts
	l.mu.Unlock()

	msg := model.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		AudioURL:  audioURL,
		IsUser:    isUser,
		Timestamp: ts,
	}
	if err := l.store.InsertMessage(ctx, msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// History returns the whole conversation for userID, oldest first.
func (l *Log) History(ctx context.Context, userID string) ([]model.Message, error) {
	return l.store.ListMessages(ctx, userID, time.Time{}, 0)
}

// Listen delivers batches of messages newer than since until ctx is done.
// The channel is closed when the poller exits.
func (l *Log) Listen(ctx context.Context, userID string, since time.Time, interval time.Duration) <-chan []model.Message {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan []model.Message)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cursor := since
		for {
			msgs, err := l.store.ListMessages(ctx, userID, cursor, 0)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("chat: poll messages: %s", err)
			} else if len(msgs) > 0 {
				select {
				case out <- msgs:
					cursor = msgs[len(msgs)-1].Timestamp
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
