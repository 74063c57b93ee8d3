package signaling_test

import (
	"context"
	"encoding/json"
	"testing"

	"callhub/internal/signaling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UnknownAndMalformed(t *testing.T) {
	h := newHarness(t, signaling.Policy{})
	ctx := context.Background()

	err := h.dispatcher.Dispatch(ctx, "A", "call:teleport", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, signaling.ErrUnknownEvent)

	cases := []struct {
		name  string
		event string
		data  string
	}{
		{"empty payload", signaling.EventCallInitiate, ``},
		{"not json", signaling.EventCallInitiate, `{"to":`},
		{"missing to", signaling.EventCallInitiate, `{"type":"audio"}`},
		{"bad type", signaling.EventCallInitiate, `{"to":"B","type":"fax"}`},
		{"answer without call id", signaling.EventCallAnswer, `{"answer":{}}`},
		{"end without call id", signaling.EventCallEnd, `{"to":"B"}`},
		{"offer without target", signaling.EventCallOffer, `{"payload":{"type":"offer"}}`},
		{"candidate without body", signaling.EventCallICECandidate, `{"to":"B"}`},
		{"message without receiver", signaling.EventMessageSend, `{"text":"hi"}`},
		{"typing without receiver", signaling.EventTypingStart, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.dispatcher.Dispatch(ctx, "A", tc.event, json.RawMessage(tc.data))
			assert.ErrorIs(t, err, signaling.ErrMalformed)
		})
	}
	assert.Equal(t, 0, h.tracker.Len())
	assert.Empty(t, h.recorder.Records())
}

func TestDispatch_RequiresUser(t *testing.T) {
	h := newHarness(t, signaling.Policy{})
	err := h.dispatcher.Dispatch(context.Background(), "", signaling.EventCallEnd, json.RawMessage(`{"callId":"c1"}`))
	assert.ErrorIs(t, err, signaling.ErrMalformed)
}

func TestDispatch_SignalRelay(t *testing.T) {
	h := newHarness(t, signaling.Policy{})
	h.connect("A")
	bob := h.connect("B")
	ctx := context.Background()

	require.NoError(t, h.dispatcher.Dispatch(ctx, "A", signaling.EventCallICECandidate,
		json.RawMessage(`{"to":"B","callId":"c1","payload":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}}`)))

	f, ok := bob.Last(signaling.EventCallICECandidate)
	require.True(t, ok)
	msg := f.Payload.(signaling.SignalMessage)
	assert.Equal(t, "A", msg.From)
	assert.Equal(t, "c1", msg.CallID)
	assert.JSONEq(t, `{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`, string(msg.Payload))
	assert.Equal(t, msg.Payload, msg.Candidate)

	// legacy key
	require.NoError(t, h.dispatcher.Dispatch(ctx, "A", signaling.EventCallAnswerSignal,
		json.RawMessage(`{"to":"B","callId":"c1","answer":{"type":"answer","sdp":"v=0"}}`)))
	f, ok = bob.Last(signaling.EventCallAnswerSignal)
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, string(f.Payload.(signaling.SignalMessage).Payload))

	// relay ignores call state entirely
	assert.Equal(t, 0, h.tracker.Len())
}

func TestDispatch_SignalToOfflinePeerIsDropped(t *testing.T) {
	h := newHarness(t, signaling.Policy{})
	h.connect("A")
	err := h.dispatcher.Dispatch(context.Background(), "A", signaling.EventCallOffer,
		json.RawMessage(`{"to":"B","payload":{"type":"offer","sdp":"v=0"}}`))
	assert.NoError(t, err)
}

func TestDispatch_ChatRelay(t *testing.T) {
	h := newHarness(t, signaling.Policy{})
	h.connect("A")
	bob := h.connect("B")
	ctx := context.Background()

	msg := json.RawMessage(`{"receiverId":"B","text":"hello"}`)
	require.NoError(t, h.dispatcher.Dispatch(ctx, "A", signaling.EventMessageSend, msg))
	f, ok := bob.Last(signaling.EventMessageReceive)
	require.True(t, ok)
	assert.JSONEq(t, string(msg), string(f.Payload.(json.RawMessage)))

	require.NoError(t, h.dispatcher.Dispatch(ctx, "A", signaling.EventTypingStart, json.RawMessage(`"B"`)))
	require.NoError(t, h.dispatcher.Dispatch(ctx, "A", signaling.EventTypingStop, json.RawMessage(`{"receiverId":"B"}`)))

	typing, ok := bob.Last(signaling.EventUserTyping)
	require.True(t, ok)
	assert.Equal(t, "A", typing.Payload)
	_, ok = bob.Last(signaling.EventUserStopTyping)
	assert.True(t, ok)
}
