package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

type handlerFunc func(ctx context.Context, userID string, data json.RawMessage) error

// Dispatcher maps inbound event names to controller operations. userID is
// always the authenticated owner of the connection the event arrived on.
type Dispatcher struct {
	controller *Controller
	handlers   map[string]handlerFunc
}

func NewDispatcher(c *Controller) *Dispatcher {
	d := &Dispatcher{controller: c}
	d.handlers = map[string]handlerFunc{
		EventCallInitiate: func(ctx context.Context, userID string, data json.RawMessage) error {
			var req InitiateRequest
			if err := decode(data, &req); err != nil {
				return err
			}
			return c.Initiate(ctx, userID, req)
		},
		EventCallAnswer: func(ctx context.Context, userID string, data json.RawMessage) error {
			var req AnswerRequest
			if err := decode(data, &req); err != nil {
				return err
			}
			return c.Answer(ctx, userID, req)
		},
		EventCallReject: d.callRequest(c.Reject),
		EventCallEnd:    d.callRequest(c.End),
		EventCallCancel: d.callRequest(c.Cancel),

		EventCallOffer:        d.signal(KindOffer),
		EventCallAnswerSignal: d.signal(KindAnswer),
		EventCallICECandidate: d.signal(KindICECandidate),

		EventMessageSend: func(ctx context.Context, userID string, data json.RawMessage) error {
			var msg struct {
				ReceiverID string `json:"receiverId"`
			}
			if err := decode(data, &msg); err != nil {
				return err
			}
			if msg.ReceiverID == "" {
				return fmt.Errorf("%w: message missing receiverId", ErrMalformed)
			}
			c.relay.Message(userID, msg.ReceiverID, data)
			return nil
		},
		EventTypingStart: d.typing(true),
		EventTypingStop:  d.typing(false),
	}
	return d
}

// Dispatch runs one inbound event. Returned errors wrap ErrMalformed or
// ErrUnknownEvent and are meant for logging, never for the client.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, event string, data json.RawMessage) error {
	h, ok := d.handlers[event]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if userID == "" {
		return fmt.Errorf("%w: %s without user", ErrMalformed, event)
	}
	return h(ctx, userID, data)
}

func (d *Dispatcher) callRequest(op func(context.Context, string, CallRequest) error) handlerFunc {
	return func(ctx context.Context, userID string, data json.RawMessage) error {
		var req CallRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		return op(ctx, userID, req)
	}
}

func (d *Dispatcher) signal(kind Kind) handlerFunc {
	return func(ctx context.Context, userID string, data json.RawMessage) error {
		var req SignalRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		return d.controller.Signal(ctx, userID, kind, req)
	}
}

// typing accepts a bare receiver id or {"receiverId": "..."}.
func (d *Dispatcher) typing(started bool) handlerFunc {
	return func(ctx context.Context, userID string, data json.RawMessage) error {
		to, err := receiverID(data)
		if err != nil {
			return err
		}
		d.controller.relay.Typing(userID, to, started)
		return nil
	}
}

func receiverID(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty typing event", ErrMalformed)
	}
	var id string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		var v struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		id = v.ReceiverID
	}
	if id == "" {
		return "", fmt.Errorf("%w: typing without receiver", ErrMalformed)
	}
	return id, nil
}

func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
