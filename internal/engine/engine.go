package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
)

// Log is the durable call log the engine appends to. *store.Store
// implements it.
type Log interface {
	WriteCall(ctx context.Context, rec store.CallRecord) error
	ReadCalls(ctx context.Context, afterSeq int64) ([]store.CallRecord, error)
}

// Engine is the single writer in front of a protocol.
//
// Thread-safety model:
//   - Submit(), Query(), Seq(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Execute(): serialized internally; used directly by one-shot callers
//     such as the CLI that do not run the loop
//
// INVARIANTS:
//   - seq values are contiguous from 1; a call that fails to persist
//     does not consume one
//   - ledger time never decreases from one call to the next
//   - a call is final only once it is in the log
type Engine struct {
	proto *protocol.Protocol
	log   Log
	clock *Clock
	ids   IDGenerator
	time  TimeSource
	queue *callQueue

	mu       sync.Mutex
	lastTime int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the transaction id source. Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithTimeSource sets the ledger time source. Default: WallTime.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) { e.time = ts }
}

// New creates an engine. log may be nil for an in-memory ledger.
func New(proto *protocol.Protocol, log Log, opts ...Option) *Engine {
	e := &Engine{
		proto: proto,
		log:   log,
		clock: NewClock(),
		ids:   UUIDv7Generator{},
		time:  WallTime{},
		queue: newCallQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Protocol returns the protocol the engine writes to.
func (e *Engine) Protocol() *protocol.Protocol { return e.proto }

// Seq returns the sequence number of the last committed call.
func (e *Engine) Seq() int64 { return e.clock.Current() }

// Now returns the ledger time the next call would observe.
func (e *Engine) Now() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nowLocked()
}

func (e *Engine) nowLocked() int64 {
	now := e.time.Now()
	if now < e.lastTime {
		return e.lastTime
	}
	return now
}

// Submit queues call for the Run loop and waits for its receipt.
//
// If ctx ends first Submit returns ctx.Err(), but a call that was already
// dequeued still runs and is logged.
func (e *Engine) Submit(ctx context.Context, call protocol.Call) (protocol.Receipt, error) {
	req := request{call: call, reply: make(chan reply, 1)}
	if !e.queue.Enqueue(req) {
		return protocol.Receipt{}, newStoppedError()
	}

	select {
	case r := <-req.reply:
		return r.receipt, r.err
	case <-ctx.Done():
		return protocol.Receipt{}, ctx.Err()
	}
}

// Run processes submitted calls in FIFO order until ctx is cancelled or
// Stop is called. Calls still queued at exit are answered with a stopped
// error.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "seq", e.clock.Current())
	defer e.drain()

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			rec, err := e.Execute(ctx, req.call)
			req.reply <- reply{receipt: rec, err: err}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue; it fires
			// immediately from then on.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting calls. Run finishes the queued ones and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) drain() {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		req.reply <- reply{err: newStoppedError()}
	}
}

// Execute sequences and applies one call synchronously. A ledger rejection
// is returned in the receipt with a nil error; the error is set only when
// the call could not be persisted, in which case it was reverted.
func (e *Engine) Execute(ctx context.Context, call protocol.Call) (protocol.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if call.Args == nil {
		call.Args = canon.Object{}
	}
	now := e.nowLocked()
	meta := protocol.Meta{Seq: e.clock.Peek(), TxID: e.ids.Generate(), Time: now}

	rec, err := e.proto.Apply(call, meta, func(r protocol.Receipt) error {
		if e.log == nil {
			return nil
		}
		return e.log.WriteCall(ctx, Record(r))
	})
	if err != nil {
		slog.Error("call not persisted",
			"seq", meta.Seq,
			"tx", meta.TxID,
			"call", call.Name(),
			"error", err,
		)
		return rec, &RuntimeError{
			Code:    ErrCodePersistFailed,
			Message: "call log write failed, call reverted",
			Seq:     meta.Seq,
			Call:    call.Name(),
			Err:     err,
		}
	}

	e.clock.Next()
	e.lastTime = now
	logReceipt(rec)
	return rec, nil
}

// Query runs a read-only method at the current ledger time.
func (e *Engine) Query(name string, args canon.Object) (canon.Value, error) {
	return e.proto.Query(name, args, e.Now())
}

// Record converts a receipt to its call log row.
func Record(r protocol.Receipt) store.CallRecord {
	return store.CallRecord{
		Seq:          r.Seq,
		TxID:         r.TxID,
		Component:    r.Call.Component,
		Method:       r.Call.Method,
		Caller:       r.Call.Caller,
		Args:         r.Call.Args,
		Time:         r.Time,
		Status:       r.Status(),
		ErrorCode:    r.Code(),
		EventsDigest: r.Digest(),
		Events:       r.Events,
	}
}

func logReceipt(r protocol.Receipt) {
	if r.Err != nil {
		slog.Info("call rejected",
			"seq", r.Seq,
			"tx", r.TxID,
			"call", r.Call.Name(),
			"code", r.Code(),
		)
		slog.Debug("rejection detail", "seq", r.Seq, "error", r.Err)
		return
	}
	slog.Info("call applied",
		"seq", r.Seq,
		"tx", r.TxID,
		"call", r.Call.Name(),
		"events", len(r.Events),
	)
}
