package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"callhub/internal/calls"
	"callhub/internal/metrics"
)

// Recorder receives finished calls for persistence. Record must not block.
type Recorder interface {
	Record(rec calls.Record)
}

// EventSink publishes the lifecycle event of a finished call.
type EventSink interface {
	CallFinished(ctx context.Context, rec calls.Record) error
}

// ConnPresence is what the controller needs from the presence registry.
type ConnPresence interface {
	Presence
	IsOnline(userID string) bool
}

// Policy holds the configurable parts of the state machine.
type Policy struct {
	// CancelOutcome is persisted when a caller withdraws a ringing call.
	CancelOutcome calls.Outcome

	// RingTimeout ends calls that ring longer than this. Zero disables it.
	RingTimeout time.Duration
}

// Deps are the collaborators of a Controller. Events, Metrics and Log are
// optional.
type Deps struct {
	Presence ConnPresence
	Tracker  *calls.Tracker
	Recorder Recorder
	Events   EventSink
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Controller runs the call state machine.
//
// Every terminal path removes the call from the tracker before doing
// anything else, so concurrent terminal events produce one record.
// Nothing here returns an error to the remote peer: missing calls and
// unexpected senders are logged and ignored.
type Controller struct {
	presence ConnPresence
	tracker  *calls.Tracker
	relay    *Relay
	recorder Recorder
	events   EventSink
	metrics  *metrics.Metrics
	log      *slog.Logger

	Policy Policy
	Now    func() time.Time
}

func NewController(d Deps, p Policy) *Controller {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if p.CancelOutcome == "" {
		p.CancelOutcome = calls.OutcomeCancelled
	}
	tracker := d.Tracker
	if tracker == nil {
		tracker = calls.NewTracker()
	}
	return &Controller{
		presence: d.Presence,
		tracker:  tracker,
		relay:    NewRelay(d.Presence, log, d.Metrics),
		recorder: d.Recorder,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      log.With("component", "call_controller"),
		Policy:   p,
		Now:      time.Now,
	}
}

// Initiate starts a call from caller. If the receiver is not connected the
// call is recorded as missed and the caller is told right away.
func (c *Controller) Initiate(ctx context.Context, caller string, req InitiateRequest) error {
	switch {
	case caller == "":
		return fmt.Errorf("%w: initiate without an authenticated caller", ErrMalformed)
	case req.To == "":
		return fmt.Errorf("%w: initiate missing to", ErrMalformed)
	case !req.Type.Valid():
		return fmt.Errorf("%w: initiate type %q", ErrMalformed, req.Type)
	case req.From != "" && req.From != caller:
		return fmt.Errorf("%w: initiate from %q on connection of %q", ErrMalformed, req.From, caller)
	case req.To == caller:
		return fmt.Errorf("%w: initiate to self", ErrMalformed)
	}

	now := c.Now()
	callID := req.CallID
	if callID == "" {
		callID = calls.DeriveCallID(caller, req.To, now)
	}
	log := c.log.With("call_id", callID, "caller", caller, "receiver", req.To)

	if !c.presence.IsOnline(req.To) {
		c.missOffline(ctx, calls.Call{ID: callID, Caller: caller, Receiver: req.To, Type: req.Type, CreatedAt: now}, now)
		log.Info("receiver offline, call missed")
		return nil
	}

	call, ok := c.tracker.Create(callID, caller, req.To, req.Type, now)
	if !ok {
		log.Warn("call id already in use")
		return ErrDuplicateCall
	}
	c.metrics.SetActiveCalls(c.tracker.Len())
	c.inspectOffer(log, req.Type, req.Offer)

	delivered := c.presence.SendTo(req.To, EventCallIncoming, IncomingCall{
		CallID:     callID,
		From:       caller,
		Type:       req.Type,
		CallerInfo: req.CallerInfo,
	})
	if !delivered {
		// receiver left between the lookup and the notice
		if gone, ok := c.tracker.Remove(callID); ok {
			c.missOffline(ctx, gone, now)
			log.Info("receiver went offline while ringing started")
		}
		return nil
	}
	if len(req.Offer) > 0 {
		c.relay.Forward(KindOffer, caller, req.To, callID, req.Offer)
	}
	log.Info("call ringing", "type", call.Type)
	return nil
}

func (c *Controller) missOffline(ctx context.Context, call calls.Call, now time.Time) {
	c.presence.SendTo(call.Caller, EventCallUserOffline, UserOffline{To: call.Receiver, CallID: call.ID})
	c.finish(ctx, call, calls.OutcomeMissed, calls.ReasonOffline, now)
}

// Answer connects a ringing call. Only the receiver can answer.
func (c *Controller) Answer(ctx context.Context, responder string, req AnswerRequest) error {
	if req.CallID == "" {
		return fmt.Errorf("%w: answer missing callId", ErrMalformed)
	}
	log := c.log.With("call_id", req.CallID, "user_id", responder)

	call, ok := c.tracker.Get(req.CallID)
	if !ok {
		log.Warn("answer for unknown call")
		return nil
	}
	if responder != call.Receiver {
		log.Warn("answer from non-receiver ignored", "receiver", call.Receiver)
		return nil
	}
	call, ok = c.tracker.MarkConnected(req.CallID, c.Now())
	if !ok {
		log.Warn("answer for call that is no longer ringing")
		return nil
	}
	if len(req.Answer) > 0 {
		c.inspectAnswer(log, call.Type, req.Answer)
	}
	c.presence.SendTo(call.Caller, EventCallAnswered, CallAnswered{CallID: call.ID, Answer: req.Answer})
	log.Info("call connected")
	return nil
}

// Reject declines a ringing call. Only the receiver can reject; a reject that
// arrives after the call connected is handled as a hangup.
func (c *Controller) Reject(ctx context.Context, responder string, req CallRequest) error {
	if req.CallID == "" {
		return fmt.Errorf("%w: reject missing callId", ErrMalformed)
	}
	log := c.log.With("call_id", req.CallID, "user_id", responder)

	call, ok := c.tracker.Get(req.CallID)
	if !ok {
		log.Warn("reject for unknown call")
		return nil
	}
	if responder != call.Receiver {
		log.Warn("reject from non-receiver ignored", "receiver", call.Receiver)
		return nil
	}
	return c.decline(ctx, log, req.CallID, responder)
}

func (c *Controller) decline(ctx context.Context, log *slog.Logger, callID, responder string) error {
	call, ok := c.tracker.Remove(callID)
	if !ok {
		log.Warn("call already finished")
		return nil
	}
	now := c.Now()
	if call.Connected() {
		c.hangup(ctx, call, responder, now)
		return nil
	}
	c.finish(ctx, call, calls.OutcomeRejected, calls.ReasonRejected, now)
	c.presence.SendTo(call.Caller, EventCallRejected, CallRejected{CallID: call.ID})
	log.Info("call rejected")
	return nil
}

// End hangs up a call on behalf of one participant. A call that never
// connected is recorded as cancelled.
func (c *Controller) End(ctx context.Context, requester string, req CallRequest) error {
	if req.CallID == "" {
		return fmt.Errorf("%w: end missing callId", ErrMalformed)
	}
	log := c.log.With("call_id", req.CallID, "user_id", requester)

	call, ok := c.tracker.Get(req.CallID)
	if !ok {
		log.Warn("end for unknown call")
		return nil
	}
	if !call.Involves(requester) {
		log.Warn("end from non-participant ignored")
		return nil
	}
	call, ok = c.tracker.Remove(req.CallID)
	if !ok {
		log.Warn("call already finished")
		return nil
	}
	c.hangup(ctx, call, requester, c.Now())
	log.Info("call ended")
	return nil
}

func (c *Controller) hangup(ctx context.Context, call calls.Call, requester string, now time.Time) {
	outcome, reason := calls.OutcomeAnswered, calls.ReasonHangup
	if !call.Connected() {
		outcome, reason = calls.OutcomeCancelled, calls.ReasonCancelled
	}
	rec := c.finish(ctx, call, outcome, reason, now)
	c.presence.SendTo(call.Peer(requester), EventCallEnded, CallEnded{CallID: call.ID, Duration: rec.DurationSeconds})
}

// Cancel withdraws a ringing call. From the caller it is recorded with the
// configured cancel outcome and the receiver gets call:missed; from the
// receiver it is a reject. Once connected it is a hangup.
func (c *Controller) Cancel(ctx context.Context, requester string, req CallRequest) error {
	if req.CallID == "" {
		return fmt.Errorf("%w: cancel missing callId", ErrMalformed)
	}
	log := c.log.With("call_id", req.CallID, "user_id", requester)

	call, ok := c.tracker.Get(req.CallID)
	if !ok {
		log.Warn("cancel for unknown call")
		return nil
	}
	switch requester {
	case call.Caller:
	case call.Receiver:
		return c.decline(ctx, log, req.CallID, requester)
	default:
		log.Warn("cancel from non-participant ignored")
		return nil
	}

	call, ok = c.tracker.Remove(req.CallID)
	if !ok {
		log.Warn("call already finished")
		return nil
	}
	now := c.Now()
	if call.Connected() {
		c.hangup(ctx, call, requester, now)
		log.Info("cancel after connect, call ended")
		return nil
	}
	c.finish(ctx, call, c.Policy.CancelOutcome, calls.ReasonCancelled, now)
	c.presence.SendTo(call.Receiver, EventCallMissed, CallMissed{CallID: call.ID, From: call.Caller, Reason: string(calls.ReasonCancelled)})
	log.Info("call cancelled", "outcome", c.Policy.CancelOutcome)
	return nil
}

// Signal relays an offer, answer or ICE candidate. It does not consult the
// tracker; candidates may arrive before or after the call changes state.
func (c *Controller) Signal(ctx context.Context, from string, kind Kind, req SignalRequest) error {
	if kind.Event() == "" {
		return fmt.Errorf("%w: signal kind %q", ErrUnknownEvent, kind)
	}
	if req.To == "" {
		return fmt.Errorf("%w: %s missing to", ErrMalformed, kind)
	}
	body := req.body(kind)
	if len(body) == 0 {
		return fmt.Errorf("%w: %s missing payload", ErrMalformed, kind)
	}
	if kind == KindICECandidate {
		if _, err := InspectCandidate(body); err != nil {
			c.log.Debug("unparsed ice candidate relayed", "call_id", req.CallID, "err", err)
		}
	}
	c.relay.Forward(kind, from, req.To, req.CallID, body)
	return nil
}

// Disconnect finishes every call involving userID. Peers are told the call
// ended; a call that never connected is recorded as missed.
//
// It must run before the user is removed from presence.
func (c *Controller) Disconnect(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}
	open := c.tracker.RemoveInvolving(userID)
	now := c.Now()
	for _, call := range open {
		outcome := calls.OutcomeMissed
		if call.Connected() {
			outcome = calls.OutcomeAnswered
		}
		rec := c.finish(ctx, call, outcome, calls.ReasonDisconnect, now)
		c.presence.SendTo(call.Peer(userID), EventCallEnded, CallEnded{
			CallID:   call.ID,
			Duration: rec.DurationSeconds,
			Reason:   string(calls.ReasonDisconnect),
		})
		c.log.Info("call ended by disconnect", "call_id", call.ID, "user_id", userID, "status", outcome)
	}
	return len(open)
}

// ExpireRinging records calls that rang past the ring timeout as missed.
func (c *Controller) ExpireRinging(ctx context.Context) int {
	if c.Policy.RingTimeout <= 0 {
		return 0
	}
	now := c.Now()
	expired := c.tracker.ExpireRinging(now.Add(-c.Policy.RingTimeout))
	for _, call := range expired {
		c.finish(ctx, call, calls.OutcomeMissed, calls.ReasonTimeout, now)
		reason := string(calls.ReasonTimeout)
		c.presence.SendTo(call.Caller, EventCallMissed, CallMissed{CallID: call.ID, Reason: reason})
		c.presence.SendTo(call.Receiver, EventCallEnded, CallEnded{CallID: call.ID, Reason: reason})
		c.log.Info("ringing call timed out", "call_id", call.ID, "caller", call.Caller, "receiver", call.Receiver)
	}
	return len(expired)
}

// Run sweeps for ring timeouts until ctx is done. It returns immediately when
// the timeout is disabled.
func (c *Controller) Run(ctx context.Context) {
	if c.Policy.RingTimeout <= 0 {
		return
	}
	every := c.Policy.RingTimeout / 4
	if every > time.Second {
		every = time.Second
	}
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.ExpireRinging(ctx)
		}
	}
}

// ActiveCalls returns the calls currently ringing or connected.
func (c *Controller) ActiveCalls() []calls.Call {
	return c.tracker.Snapshot()
}

func (c *Controller) finish(ctx context.Context, call calls.Call, outcome calls.Outcome, reason calls.EndReason, now time.Time) calls.Record {
	rec := call.Finish(outcome, reason, now)
	if outcome != calls.OutcomeAnswered {
		rec.DurationSeconds = 0
	}
	if c.recorder != nil {
		c.recorder.Record(rec)
	}
	c.metrics.CallFinished(string(outcome), string(reason))
	c.metrics.SetActiveCalls(c.tracker.Len())

	if c.events != nil {
		if err := c.events.CallFinished(ctx, rec); err != nil {
			c.metrics.PublishFailed()
			c.log.Warn("call event publish failed", "call_id", call.ID, "err", err)
		}
	}
	return rec
}

func (c *Controller) inspectOffer(log *slog.Logger, typ calls.Type, offer json.RawMessage) {
	if len(offer) == 0 {
		return
	}
	sum, err := InspectSDP(offer)
	if err != nil {
		log.Debug("offer not inspectable", "err", err)
		return
	}
	if typ == calls.TypeVideo && !sum.HasVideo() {
		log.Warn("video call offer has no video section", "audio_sections", sum.Audio)
	}
}

func (c *Controller) inspectAnswer(log *slog.Logger, typ calls.Type, answer json.RawMessage) {
	sum, err := InspectSDP(answer)
	if err != nil {
		log.Debug("answer not inspectable", "err", err)
		return
	}
	if typ == calls.TypeVideo && !sum.HasVideo() {
		log.Info("video call answered without video", "audio_sections", sum.Audio)
	}
}
