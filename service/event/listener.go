package event

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener delivers published events to a handler on its own goroutine.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    logrus.FieldLogger
	mux       sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger logrus.FieldLogger) *Listener[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins consuming; it returns immediately.
func (l *Listener[T]) Start(ctx context.Context) {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

func (l *Listener[T]) run(ctx context.Context) {
	defer close(l.done)
	for {
		event, err := l.publisher.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.WithError(err).Warn("failed to consume event")
			continue
		}
		if event == nil {
			continue
		}
		l.dispatch(event)
	}
}

func (l *Listener[T]) dispatch(event *Event[T]) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Warn("event handler panicked")
		}
	}()
	l.handler(event)
}

// Stop cancels consumption and waits for the in-flight handler to return.
// Stop must not be called from within the handler.
func (l *Listener[T]) Stop() {
	l.mux.Lock()
	cancel := l.cancel
	l.mux.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-l.done
}
