package scanner

import (
	"context"

	"github.com/sadopc/dux/internal/model"
)

// Event is a message from the scan engine to an observing consumer.
type Event interface{ scanEvent() }

// ProgressEvent is emitted before the engine begins work on an object.
// Events may be dropped when the consumer lags; each delivered snapshot
// is monotonically non-decreasing per counter.
type ProgressEvent struct {
	Path  string
	Stats model.StatsSnapshot
}

// CompleteEvent carries the finished root. It is the last event of a
// successful scan.
type CompleteEvent struct {
	Root *model.Entry
}

// ErrorEvent reports a fatal scan-level failure.
type ErrorEvent struct {
	Message string
}

func (ProgressEvent) scanEvent() {}
func (CompleteEvent) scanEvent() {}
func (ErrorEvent) scanEvent()    {}

// publisher wraps the event channel so scan workers never stall on a
// slow or absent consumer: progress events are dropped when the buffer
// is full, terminal events wait but give up on cancellation.
type publisher struct {
	ch chan<- Event
}

func (p publisher) progress(path string, stats model.StatsSnapshot) {
	if p.ch == nil {
		return
	}
	select {
	case p.ch <- ProgressEvent{Path: path, Stats: stats}:
	default:
	}
}

func (p publisher) terminal(ctx context.Context, ev Event) {
	if p.ch == nil {
		return
	}
	select {
	case p.ch <- ev:
	case <-ctx.Done():
	}
}
