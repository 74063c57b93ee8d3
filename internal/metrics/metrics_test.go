package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CallFinished("answered", "hangup")
	m.CallFinished("answered", "hangup")
	m.CallFinished("missed", "offline")
	m.PersistFailed()
	m.SignalDropped("ice-candidate")
	m.SetOnlineUsers(3)
	m.SetActiveCalls(1)

	if got := testutil.ToFloat64(m.callsFinished.WithLabelValues("answered", "hangup")); got != 2 {
		t.Fatalf("expected 2 answered calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.persistFailures); got != 1 {
		t.Fatalf("expected 1 persist failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.signalsDropped.WithLabelValues("ice-candidate")); got != 1 {
		t.Fatalf("expected 1 dropped signal, got %v", got)
	}
	if got := testutil.ToFloat64(m.onlineUsers); got != 3 {
		t.Fatalf("expected 3 online users, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeCalls); got != 1 {
		t.Fatalf("expected 1 active call, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.CallFinished("answered", "hangup")
	m.PersistFailed()
	m.PersistDropped()
	m.SignalDropped("offer")
	m.PublishFailed()
	m.FrameDropped()
	m.SetOnlineUsers(1)
	m.SetActiveCalls(1)
}
