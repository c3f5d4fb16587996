package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
//
// With DropIfFull, an event that finds the queue full is discarded unless
// its type is listed in Critical; critical events wait for room like they
// would without DropIfFull. OnDrop is told the type of every discarded
// event, including events whose sink panicked.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Critical   []string
	OnDrop     func(eventType string)
}

// Dispatcher relays engine events to a Sink from a single goroutine so the
// request path never waits on sink I/O.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	critical   map[string]struct{}
	onDrop     func(string)

	// mu guards queue against a send racing Close.
	mu     sync.RWMutex
	queue  chan Event
	closed bool

	delivery sync.WaitGroup
	dropped  atomic.Uint64
}

// NewDispatcher starts delivery. It returns nil when auditing is disabled;
// a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		critical:   make(map[string]struct{}, len(cfg.Critical)),
		onDrop:     cfg.OnDrop,
		queue:      make(chan Event, size),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = struct{}{}
	}
	d.delivery.Go(d.deliverAll)
	return d
}

func (d *Dispatcher) deliverAll() {
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.drop(event.EventType)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. A full queue drops droppable events and otherwise
// waits until there is room or ctx is done. Events emitted after Close are
// ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull && !d.isCritical(event.EventType) {
		select {
		case d.queue <- event:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

func (d *Dispatcher) isCritical(eventType string) bool {
	_, ok := d.critical[eventType]
	return ok
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(eventType)
	}
}

// Close stops intake and returns once every queued event reached the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.delivery.Wait()
}

// Dropped returns how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
