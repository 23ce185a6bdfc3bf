package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// SpotsChangedChannel is the NOTIFY channel the spot writer signals on. The
// payload is the owner id whose spots changed.
const SpotsChangedChannel = "spots_changed"

const (
	minReconnect = 2 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

// SpotChangeListener calls onChange whenever the owner's spots may have
// changed, including after a reconnect where notifications could have been lost.
type SpotChangeListener struct {
	listener *pq.Listener
	ownerID  string
	onChange func()
	log      *slog.Logger
}

func NewSpotChangeListener(dsn, ownerID string, onChange func(), log *slog.Logger) (*SpotChangeListener, error) {
	l := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("spot listener event", "event", int(ev), "err", err)
		}
	})
	if err := l.Listen(SpotsChangedChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", SpotsChangedChannel, err)
	}
	return &SpotChangeListener{listener: l, ownerID: ownerID, onChange: onChange, log: log}, nil
}

func (s *SpotChangeListener) Run(ctx context.Context) error {
	defer func() { _ = s.listener.Close() }()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-s.listener.Notify:
			if relevant(n, s.ownerID) {
				s.onChange()
			}
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				s.log.Warn("spot listener ping failed", "err", err)
			}
		}
	}
}

// relevant reports whether a notification concerns ownerID. A nil
// notification marks a reconnect and is always relevant.
func relevant(n *pq.Notification, ownerID string) bool {
	if n == nil {
		return true
	}
	return n.Extra == "" || n.Extra == ownerID
}
