package events

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

type Type int

const (
	// All event types supported.
	PositionUpdateEvent Type = iota + 1
	PositionClosedEvent
	LiquidationCompletedEvent
	RedemptionCompletedEvent
	StabilityDepositEvent
	StabilityWithdrawEvent
	CollateralSurplusClaimedEvent
)

var eventStrings = map[Type]string{
	PositionUpdateEvent:           "PositionUpdate",
	PositionClosedEvent:           "PositionClosed",
	LiquidationCompletedEvent:     "LiquidationCompleted",
	RedemptionCompletedEvent:      "RedemptionCompleted",
	StabilityDepositEvent:         "StabilityDeposit",
	StabilityWithdrawEvent:        "StabilityWithdraw",
	CollateralSurplusClaimedEvent: "CollateralSurplusClaimed",
}

func (t Type) String() string {
	s, ok := eventStrings[t]
	if !ok {
		return "UNKNOWN EVENT"
	}
	return s
}

// Event is the interface for events sent through the broker.
type Event interface {
	Type() Type
	Context() context.Context
	TraceID() string
	Sequence() uint64
}

type traceIDKey int

const traceIDCtxKey traceIDKey = 0

// WithTraceID returns a context carrying the given trace ID, events
// created from it inherit the ID instead of generating a fresh one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey, traceID)
}

var eventSeq uint64

// Base common denominator all events share.
type Base struct {
	ctx     context.Context
	traceID string
	seq     uint64
	et      Type
}

func newBase(ctx context.Context, t Type) *Base {
	traceID, ok := ctx.Value(traceIDCtxKey).(string)
	if !ok {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
	}
	return &Base{
		ctx:     ctx,
		traceID: traceID,
		seq:     atomic.AddUint64(&eventSeq, 1),
		et:      t,
	}
}

// TraceID returns the... wait for it... TraceID.
func (b Base) TraceID() string {
	return b.traceID
}

// Sequence returns the event sequence number.
func (b Base) Sequence() uint64 {
	return b.seq
}

// Context returns the context from the event.
func (b Base) Context() context.Context {
	return b.ctx
}

// Type returns the event type.
func (b Base) Type() Type {
	return b.et
}
