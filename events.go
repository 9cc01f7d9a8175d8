package loopback

import (
	"log"
)

// EventKind identifies a test lifecycle notification.
type EventKind int

const (
	// RecordingStarted is emitted once a test session is capturing.
	RecordingStarted EventKind = iota + 1
	// RecordingComplete is emitted when a running test session ends.
	RecordingComplete
)

// String returns the name of the event kind.
func (k EventKind) String() string {
	switch k {
	case RecordingStarted:
		return "RECORDING_STARTED"
	case RecordingComplete:
		return "RECORDING_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a notification sent to the UI message queue.
type Event struct {
	Kind EventKind
}

// Notifier receives lifecycle events from the playback worker.
// Notify is called on the audio path and must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev Event) {
	f(ev)
}

// ChanNotifier delivers events to a buffered channel and drops them when it is full.
type ChanNotifier struct {
	ch     chan Event
	logger *log.Logger
}

// NewChanNotifier creates a ChanNotifier with room for size pending events.
func NewChanNotifier(size int) *ChanNotifier {
	return &ChanNotifier{
		ch:     make(chan Event, size),
		logger: log.Default(),
	}
}

// SetLogger sets where dropped events are reported. A nil logger is ignored.
func (n *ChanNotifier) SetLogger(l *log.Logger) {
	if l != nil {
		n.logger = l
	}
}

// Notify queues ev without blocking.
func (n *ChanNotifier) Notify(ev Event) {
	select {
	case n.ch <- ev:
	default:
		n.logger.Printf("[events] queue full, dropping %s", ev.Kind)
	}
}

// C returns the receive side of the queue.
func (n *ChanNotifier) C() <-chan Event {
	return n.ch
}
