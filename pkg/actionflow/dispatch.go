package actionflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/actionflow/pkg/actionflow/event"
	"github.com/randalmurphal/actionflow/pkg/actionflow/observability"
	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// dispatch invokes the channel's handler with in and records the outcome.
func (e *Engine) dispatch(ctx context.Context, ch *Channel, in any, callID string, scheduled bool) Response {
	id := ch.action.ID
	meta := Metadata{CallID: callID}

	h, ok := e.handlers.Get(id)
	if !ok || h == nil {
		e.logger.Warn("no subscriber", slog.String("channel_id", id))
		return e.fail(ctx, id, callID, ErrNoSubscriber, meta)
	}

	if err := e.payloads.SetReq(id, in); errors.Is(err, payload.ErrFrozen) {
		e.logger.Debug("request not stored, payload frozen", slog.String("channel_id", id))
	}
	e.payloads.MarkPending(id)

	execution := ch.executions.Add(1)
	logger := observability.EnrichLogger(e.logger, id, callID, execution)

	spanCtx, span := e.spans.StartDispatchSpan(ctx, id)
	hctx := &dispatchContext{
		Context:   spanCtx,
		logger:    logger,
		channelID: id,
		callID:    callID,
		execution: execution,
		scheduled: scheduled,
	}

	elapsed := observability.TimedOperation(e.clock)
	out, err := invoke(hctx, id, h, in)
	dur := elapsed()
	now := e.clock.Now()

	e.spans.EndSpanWithError(span, err)
	e.metrics.RecordDispatch(ctx, id, dur, err)
	st := e.monitor.Record(dur, err != nil)
	e.metrics.RecordStress(ctx, st.Stress, st.IsRecuperating)
	ch.recordExecution(now, dur, err != nil)
	if current, ok := e.channels.Get(id); ok && current.plan != nil && current.plan.Protected {
		e.markExecuted(id, now)
	}
	meta.ExecutionTime = dur

	if err != nil {
		e.payloads.SetFailed(id, err)
		observability.LogDispatchError(logger, id, err, observability.Milliseconds(dur))
		herr := &HandlerError{ChannelID: id, Err: err}
		e.publish(ctx, event.TypeError, id, event.WithCallID(callID), event.WithError(herr), event.WithDuration(dur))
		resp := e.fail(ctx, id, callID, herr, meta)
		resp.Message = err.Error()
		return resp
	}

	result := out
	link, linked := asLink(out)
	if linked {
		result = link.Payload
	}
	e.payloads.SetRes(id, result)

	observability.LogDispatchComplete(logger, id, observability.Milliseconds(dur))
	e.metrics.RecordCall(ctx, id, observability.OutcomeDispatched)
	e.publish(ctx, event.TypeDispatch, id, event.WithCallID(callID), event.WithDuration(dur))

	if linked && link.ID != "" {
		meta.IntraLink = link.ID
		e.chain(id, callID, link)
	}

	return Response{OK: true, Payload: result, Message: "dispatched", Metadata: meta}
}

// invoke calls the handler, converting a panic into a *PanicError.
func invoke(ctx Context, id string, h Handler, in any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &PanicError{
				ChannelID: id,
				Stage:     "handler",
				Value:     r,
				Stack:     string(debug.Stack()),
			}
		}
	}()
	return h(ctx, in)
}

func asLink(v any) (Link, bool) {
	switch l := v.(type) {
	case Link:
		return l, true
	case *Link:
		if l != nil {
			return *l, true
		}
	}
	return Link{}, false
}

// chain starts the linked call on its own goroutine. The triggering call
// does not wait for it.
func (e *Engine) chain(fromID, callID string, link Link) {
	observability.LogChain(e.logger, fromID, link.ID)
	e.metrics.RecordChain(e.ctx, fromID, link.ID)
	e.publish(e.ctx, event.TypeChain, link.ID,
		event.WithCausationID(callID),
		event.WithMessage(fromID+" -> "+link.ID))

	if e.closed.Load() {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		resp := e.call(e.ctx, link.ID, link.Payload, false)
		if !resp.Error {
			return
		}
		e.logger.Warn("chained call failed",
			slog.String("from", fromID),
			slog.String("channel_id", link.ID),
			slog.String("call_id", resp.Metadata.CallID),
			slog.Any("error", resp.Err))
		if errors.Is(resp.Err, ErrChannelNotFound) || errors.Is(resp.Err, ErrNotCallable) {
			e.publish(e.ctx, event.TypeError, link.ID,
				event.WithCallID(resp.Metadata.CallID),
				event.WithCausationID(callID),
				event.WithError(resp.Err))
		}
	}()
}

// schedule hands the processed payload to the scheduler under the channel id.
func (e *Engine) schedule(ctx context.Context, ch *Channel, in any, callID string) Response {
	a := ch.action
	meta := Metadata{
		CallID:    callID,
		Scheduled: true,
		Delay:     a.Delay,
		Interval:  a.Interval,
		Repeat:    a.Repeat,
	}

	_, err := e.scheduler.Keep(schedule.Entry{
		ID:       a.ID,
		Delay:    a.Delay,
		Interval: a.Interval,
		Repeat:   a.Repeat,
		Overlap:  a.Overlap,
		Payload:  in,
		Callback: e.timerFired(ch),
	})
	if err != nil {
		return e.fail(ctx, a.ID, callID, errors.Join(ErrSchedulingFailed, err), meta)
	}

	if a.Repeat.IsNever() {
		meta.Scheduled = false
		e.metrics.RecordCall(ctx, a.ID, observability.OutcomeSkipped)
		e.publish(ctx, event.TypeSkipped, a.ID, event.WithCallID(callID), event.WithMessage("repeat is zero"))
		return Response{OK: true, Payload: in, Message: "not scheduled: repeat is zero", Metadata: meta}
	}

	observability.LogCallScheduled(e.logger, a.ID, a.Delay, a.Interval, a.Repeat.String())
	e.metrics.RecordCall(ctx, a.ID, observability.OutcomeScheduled)
	e.publish(ctx, event.TypeScheduled, a.ID, event.WithCallID(callID), event.WithData(meta))
	return Response{OK: true, Payload: in, Message: "scheduled", Metadata: meta}
}

// timerFired dispatches one scheduled execution. The payload went through
// protection and processing when the call was made.
func (e *Engine) timerFired(ch *Channel) schedule.Callback {
	return func(ctx context.Context, f schedule.Fire) {
		current, ok := e.channels.Get(ch.action.ID)
		if !ok {
			return
		}
		e.dispatch(ctx, current, f.Payload, uuid.NewString(), true)
	}
}

// reject builds a soft rejection response and reports it.
func (e *Engine) reject(ctx context.Context, id, callID, outcome string, typ event.Type, err error, meta Metadata) Response {
	meta.CallID = callID
	e.metrics.RecordCall(ctx, id, outcome)
	e.publish(ctx, typ, id, event.WithCallID(callID), event.WithError(err))
	return Response{Message: err.Error(), Err: err, Metadata: meta}
}

// fail builds a hard failure response and reports it.
func (e *Engine) fail(ctx context.Context, id, callID string, err error, meta Metadata) Response {
	meta.CallID = callID
	e.metrics.RecordCall(ctx, id, observability.OutcomeFailed)
	return Response{Message: err.Error(), Error: true, Err: err, Metadata: meta}
}

// publish sends a lifecycle event when a bus is configured. Errors are
// ignored; the bus is diagnostic only.
func (e *Engine) publish(ctx context.Context, typ event.Type, id string, opts ...event.Option) {
	if e.bus == nil {
		return
	}
	opts = append(opts, event.WithTimestamp(e.clock.Now()))
	_ = e.bus.Publish(ctx, event.New(typ, id, opts...))
}

// recordExecution updates the channel's runtime counters.
func (c *Channel) recordExecution(at time.Time, dur time.Duration, failed bool) {
	c.lastExec.Store(at.UnixNano())
	c.totalNanos.Add(int64(dur))
	c.completed.Add(1)
	if failed {
		c.failures.Add(1)
	}
}
