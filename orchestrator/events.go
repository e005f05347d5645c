package orchestrator

import (
	"sync"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/logging"
)

// eventBus fans task events out to subscribers without blocking publishers.
type eventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan core.TaskEvent
	nextID int
	logger logging.Logger
}

func newEventBus(logger logging.Logger) *eventBus {
	return &eventBus{
		subs:   make(map[int]chan core.TaskEvent),
		logger: logger,
	}
}

func (b *eventBus) subscribe(buffer int) (<-chan core.TaskEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan core.TaskEvent, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *eventBus) publish(ev core.TaskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropping event for slow subscriber", "subscriber", id, "event", string(ev.Type))
		}
	}
}

// Subscribe returns a channel receiving every task and workflow event from now
// on, and a function that cancels the subscription and closes the channel.
// Events are dropped for a subscriber whose buffer is full. A non-positive
// buffer uses Config.EventBufferSize.
func (o *Orchestrator) Subscribe(buffer int) (<-chan core.TaskEvent, func()) {
	if buffer <= 0 {
		buffer = o.config.EventBufferSize
	}
	return o.events.subscribe(buffer)
}
