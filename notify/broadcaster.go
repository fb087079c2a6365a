package notify

import (
	"context"
	"sync"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/metrics"
)

const notifierNameBroadcaster = "broadcaster"

var _ Notifier = &Broadcaster{}

// Broadcaster delivers notifications to in-process subscribers.
// A subscriber whose buffer is full misses the notification rather than stalling the write.
type Broadcaster struct {
	logger polylog.Logger

	mu          sync.Mutex
	subscribers map[int]chan Notification
	nextID      int
}

func NewBroadcaster(logger polylog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:      logger.With("component", "notification_broadcaster"),
		subscribers: make(map[int]chan Notification),
	}
}

// Subscribe returns a channel receiving every notification from now on, and a function
// ending the subscription and closing the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Notification, buffer)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(_ context.Context, notification Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- notification:
		default:
			metrics.ObserveNotificationFailure(notifierNameBroadcaster)
			b.logger.Warn().
				Str("operation", notification.OperationName).
				Str("phase", string(notification.Phase)).
				Msg("subscriber buffer full: dropping notification")
		}
	}
}
