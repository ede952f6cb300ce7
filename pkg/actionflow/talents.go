package actionflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/randalmurphal/actionflow/pkg/actionflow/event"
	"github.com/randalmurphal/actionflow/pkg/actionflow/observability"
)

// talentResult is what one talent reports. OK false with a nil Err is a
// soft skip; a non-nil Err is a hard failure.
type talentResult struct {
	OK      bool
	Payload any
	Message string
	Err     error
}

func pass(payload any) talentResult {
	return talentResult{OK: true, Payload: payload}
}

type talentFunc func(e *Engine, ch *Channel, payload any) talentResult

var talents = map[Talent]talentFunc{
	TalentRequired:      (*Engine).required,
	TalentSchema:        (*Engine).schema,
	TalentSelector:      (*Engine).selector,
	TalentCondition:     (*Engine).condition,
	TalentTransform:     (*Engine).transform,
	TalentDetectChanges: (*Engine).detectChanges,
}

// skipErrs maps soft-skipping talents to the error reported to callers.
var skipErrs = map[Talent]error{
	TalentCondition:     ErrConditionNotMet,
	TalentDetectChanges: ErrPayloadUnchanged,
}

// process runs the channel's plan. It returns the final payload, or false
// with the response for the first talent that stopped the call.
func (e *Engine) process(ctx context.Context, ch *Channel, in any, callID string) (any, Response, bool) {
	plan := ch.plan
	if plan.Kind == PlanZeroOverhead {
		return in, Response{}, true
	}

	payload := in
	for _, t := range plan.Talents {
		res := talents[t](e, ch, payload)
		if res.OK {
			payload = res.Payload
			continue
		}

		id := ch.action.ID
		if res.Err == nil {
			observability.LogCallSkipped(e.logger, id, string(t), res.Message)
			resp := e.reject(ctx, id, callID, observability.OutcomeSkipped, event.TypeSkipped, skipErrs[t], Metadata{})
			resp.Message = res.Message
			return nil, resp, false
		}

		observability.LogTalentError(e.logger, id, string(t), res.Err)
		err := &TalentError{ChannelID: id, Talent: t, Err: res.Err}
		resp := e.fail(ctx, id, callID, err, Metadata{})
		resp.Message = res.Message
		return nil, resp, false
	}
	return payload, Response{}, true
}

// guard runs fn and converts a panic into a *PanicError.
func guard[T any](channelID string, stage Talent, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				ChannelID: channelID,
				Stage:     string(stage),
				Value:     r,
				Stack:     string(debug.Stack()),
			}
		}
	}()
	return fn()
}

func (e *Engine) required(ch *Channel, payload any) talentResult {
	if isNil(payload) {
		return talentResult{Message: "payload is required", Err: errors.New("payload is nil")}
	}
	if ch.plan.Required == RequiredNonEmpty && isEmpty(payload) {
		return talentResult{Message: "payload must not be empty", Err: errors.New("payload is empty")}
	}
	return pass(payload)
}

func (e *Engine) schema(ch *Channel, payload any) talentResult {
	res, err := guard(ch.action.ID, TalentSchema, func() (SchemaResult, error) {
		return ch.action.Schema(payload), nil
	})
	if err != nil {
		return talentResult{Message: "schema validation failed", Err: err}
	}
	if !res.OK {
		msg := "schema validation failed"
		if len(res.Errors) > 0 {
			msg = msg + ": " + strings.Join(res.Errors, "; ")
		}
		return talentResult{Message: msg, Err: errors.New(msg)}
	}
	if res.Data != nil {
		return pass(res.Data)
	}
	return pass(payload)
}

func (e *Engine) selector(ch *Channel, payload any) talentResult {
	out, err := guard(ch.action.ID, TalentSelector, func() (any, error) {
		return ch.action.Selector(payload)
	})
	if err != nil {
		return talentResult{Message: fmt.Sprintf("selector failed: %v", err), Err: err}
	}
	return pass(out)
}

func (e *Engine) condition(ch *Channel, payload any) talentResult {
	ok, err := guard(ch.action.ID, TalentCondition, func() (bool, error) {
		if fn := ch.action.Condition; fn != nil && !fn(payload) {
			return false, nil
		}
		if ch.plan.when != nil {
			return ch.plan.when.Eval(payload)
		}
		return true, nil
	})
	if err != nil {
		return talentResult{Message: fmt.Sprintf("condition failed: %v", err), Err: err}
	}
	if !ok {
		return talentResult{Message: "condition not met"}
	}
	return pass(payload)
}

func (e *Engine) transform(ch *Channel, payload any) talentResult {
	out, err := guard(ch.action.ID, TalentTransform, func() (any, error) {
		return ch.action.Transform(payload)
	})
	if err != nil {
		return talentResult{Message: fmt.Sprintf("transform failed: %v", err), Err: err}
	}
	return pass(out)
}

func (e *Engine) detectChanges(ch *Channel, payload any) talentResult {
	prev, ok := e.payloads.Req(ch.action.ID)
	if ok && !changed(prev, payload) {
		return talentResult{Message: "payload unchanged"}
	}
	return pass(payload)
}

// isNil reports nil and typed nil pointers, maps, slices, funcs and channels.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
