package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const flushTimeout = 5 * time.Second

// Log queues entries for a Recorder so sessions never wait on the database.
// A nil *Log drops everything, which is how the trail is switched off.
type Log struct {
	rec   Recorder
	queue chan Entry
	log   *zap.Logger
}

func NewLog(rec Recorder, size int, log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{rec: rec, queue: make(chan Entry, size), log: log}
}

// Record enqueues e. When the queue is full the entry is dropped with a warning.
func (l *Log) Record(e Entry) {
	if l == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case l.queue <- e:
	default:
		l.log.Warn("audit.drop", zap.String("room", e.Room), zap.Int("version", e.Version))
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is left.
func (l *Log) Run(ctx context.Context) error {
	for {
		select {
		case e := <-l.queue:
			l.write(ctx, e)
		case <-ctx.Done():
			l.flush()
			return nil
		}
	}
}

func (l *Log) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case e := <-l.queue:
			l.write(ctx, e)
		default:
			return
		}
	}
}

func (l *Log) write(ctx context.Context, e Entry) {
	if err := l.rec.Record(ctx, e); err != nil {
		l.log.Error("audit.write", zap.String("room", e.Room), zap.Int("version", e.Version), zap.Error(err))
	}
}
