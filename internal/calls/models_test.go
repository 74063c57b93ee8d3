package calls

import (
	"testing"
	"time"
)

func TestDurationSeconds(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()

	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"exact", start.Add(30 * time.Second), 30},
		{"floors partial seconds", start.Add(30*time.Second + 999*time.Millisecond), 30},
		{"same instant", start, 0},
		{"clock went backwards", start.Add(-5 * time.Second), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DurationSeconds(start, tc.end); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}

	if got := DurationSeconds(time.Time{}, start); got != 0 {
		t.Fatalf("expected 0 for zero start, got %d", got)
	}
}

func TestDeriveCallID(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := DeriveCallID("alice", "bob", at); got != "alice-bob-1700000000123" {
		t.Fatalf("unexpected id %q", got)
	}
}

func TestCall_PeerAndInvolves(t *testing.T) {
	c := Call{ID: "c1", Caller: "alice", Receiver: "bob"}
	if c.Peer("alice") != "bob" || c.Peer("bob") != "alice" {
		t.Fatalf("unexpected peers")
	}
	if c.Peer("carol") != "" {
		t.Fatalf("expected no peer for outsider")
	}
	if !c.Involves("bob") || c.Involves("carol") || c.Involves("") {
		t.Fatalf("unexpected Involves result")
	}
}

func TestCall_FinishUsesStartTime(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	c := Call{ID: "c1", Caller: "alice", Receiver: "bob", Type: TypeVideo, CreatedAt: now}

	rec := c.Finish(OutcomeCancelled, ReasonCancelled, now.Add(10*time.Second))
	if rec.DurationSeconds != 0 {
		t.Fatalf("expected 0 duration for unanswered call, got %d", rec.DurationSeconds)
	}

	c.StartTime = now.Add(2 * time.Second)
	rec = c.Finish(OutcomeAnswered, ReasonHangup, now.Add(32*time.Second))
	if rec.DurationSeconds != 30 || rec.Status != OutcomeAnswered || rec.CallID != "c1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestValidateRecord(t *testing.T) {
	ok := Record{ID: "r1", Caller: "a", Receiver: "b", Type: TypeAudio, Status: OutcomeAnswered, DurationSeconds: 12}
	if err := validateRecord(ok); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	bad := []Record{
		{Caller: "a", Receiver: "b", Type: TypeAudio, Status: OutcomeAnswered},
		{ID: "r", Caller: "a", Receiver: "b", Type: "fax", Status: OutcomeAnswered},
		{ID: "r", Caller: "a", Receiver: "b", Type: TypeAudio, Status: "busy"},
		{ID: "r", Caller: "a", Receiver: "b", Type: TypeAudio, Status: OutcomeAnswered, DurationSeconds: -1},
		{ID: "r", Caller: "a", Receiver: "b", Type: TypeAudio, Status: OutcomeMissed, DurationSeconds: 3},
	}
	for i, r := range bad {
		if err := validateRecord(r); err != ErrInvalidRecord {
			t.Fatalf("case %d: expected ErrInvalidRecord, got %v", i, err)
		}
	}
}
