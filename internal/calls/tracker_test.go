package calls

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_CreateRejectsDuplicateID(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1700000000, 0).UTC()

	if _, ok := tr.Create("c1", "alice", "bob", TypeAudio, now); !ok {
		t.Fatalf("expected first create to succeed")
	}
	if _, ok := tr.Create("c1", "carol", "dave", TypeVideo, now); ok {
		t.Fatalf("expected duplicate create to fail")
	}
	c, _ := tr.Get("c1")
	if c.Caller != "alice" || c.Status != StatusRinging {
		t.Fatalf("original call was modified: %+v", c)
	}
}

func TestTracker_MarkConnectedOnlyFromRinging(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1700000000, 0).UTC()
	tr.Create("c1", "alice", "bob", TypeAudio, now)

	c, ok := tr.MarkConnected("c1", now.Add(3*time.Second))
	if !ok || c.Status != StatusConnected || !c.StartTime.Equal(now.Add(3*time.Second)) {
		t.Fatalf("unexpected connect result: ok=%v call=%+v", ok, c)
	}
	if _, ok := tr.MarkConnected("c1", now.Add(10*time.Second)); ok {
		t.Fatalf("expected second answer to be ignored")
	}
	c, _ = tr.Get("c1")
	if !c.StartTime.Equal(now.Add(3 * time.Second)) {
		t.Fatalf("start time moved: %v", c.StartTime)
	}
	if _, ok := tr.MarkConnected("missing", now); ok {
		t.Fatalf("expected unknown call to fail")
	}
}

func TestTracker_GetReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Create("c1", "alice", "bob", TypeAudio, time.Unix(1700000000, 0))

	c, _ := tr.Get("c1")
	c.Status = StatusEnded
	again, _ := tr.Get("c1")
	if again.Status != StatusRinging {
		t.Fatalf("tracker state leaked through copy")
	}
}

func TestTracker_ConcurrentRemoveYieldsOneWinner(t *testing.T) {
	tr := NewTracker()
	tr.Create("c1", "alice", "bob", TypeAudio, time.Unix(1700000000, 0))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if i%2 == 0 {
				_, ok = tr.Remove("c1")
			} else {
				ok = len(tr.RemoveInvolving("bob")) == 1
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker")
	}
}

func TestTracker_RemoveInvolving(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1700000000, 0).UTC()
	tr.Create("c1", "alice", "bob", TypeAudio, now)
	tr.Create("c2", "carol", "alice", TypeVideo, now.Add(time.Second))
	tr.Create("c3", "carol", "dave", TypeAudio, now)

	got := tr.RemoveInvolving("alice")
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Fatalf("unexpected removed calls: %+v", got)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected 1 remaining call, got %d", tr.Len())
	}
	if got := tr.RemoveInvolving(""); len(got) != 0 {
		t.Fatalf("empty user must not match")
	}
}

func TestTracker_ExpireRinging(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1700000000, 0).UTC()
	tr.Create("old", "alice", "bob", TypeAudio, now)
	tr.Create("old-connected", "carol", "dave", TypeAudio, now)
	tr.MarkConnected("old-connected", now.Add(time.Second))
	tr.Create("fresh", "erin", "frank", TypeAudio, now.Add(40*time.Second))

	expired := tr.ExpireRinging(now.Add(30 * time.Second))
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("unexpected expired calls: %+v", expired)
	}
	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].ID != "old-connected" || snap[1].ID != "fresh" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
