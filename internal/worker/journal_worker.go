package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/journal"
)

// JournalPump decouples the synchronous dispatcher from the Kafka journal.
// Events are queued and produced on a single goroutine, so a slow broker
// never stalls the request path; per-session order is preserved because
// the queue is FIFO and there is one consumer.
type JournalPump struct {
	queue   chan events.Event
	journal *journal.Journal
	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// StartJournalPump subscribes the pump to the dispatcher and starts its
// drain loop. Returns nil when the journal is disabled.
func StartJournalPump(dispatcher events.Dispatcher, j *journal.Journal, logger *zap.Logger) *JournalPump {
	if j == nil {
		return nil
	}
	p := &JournalPump{
		queue:   make(chan events.Event, 1024),
		journal: j,
		logger:  logger,
		done:    make(chan struct{}),
	}
	dispatcher.SubscribeAll(p.enqueue)
	go p.run()
	return p
}

func (p *JournalPump) enqueue(_ context.Context, event events.Event) error {
	select {
	case p.queue <- event:
	default:
		p.logger.Warn("journal queue full, dropping event",
			zap.String("event_id", event.ID), zap.String("session_id", event.SessionID))
	}
	return nil
}

func (p *JournalPump) run() {
	for {
		select {
		case event := <-p.queue:
			p.journal.Record(event)
		case <-p.done:
			// drain what is already queued before exiting
			for {
				select {
				case event := <-p.queue:
					p.journal.Record(event)
				default:
					return
				}
			}
		}
	}
}

// Stop drains the queue and stops the pump. Safe to call on a nil pump.
func (p *JournalPump) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() { close(p.done) })
}
