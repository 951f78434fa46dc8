package fix

import (
	"context"
	"testing"
	"time"
)

func TestBadgerStoreAppendFetchIdempotent(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), "epoch-1")
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	defer store.Close()

	runStoreContract(t, store)
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	msg := StoredMessage{Direction: DirectionOut, SeqNum: 1, MsgType: MsgTypeLogon, RawBytes: []byte("8=FIX.4.2\x01..."), Timestamp: now}
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Re-appending the same (direction, seqNum) must be a no-op, not an error.
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("Append (idempotent replay): %v", err)
	}

	if err := store.Append(ctx, StoredMessage{Direction: DirectionOut, SeqNum: 2, MsgType: MsgTypeHeartbeat, RawBytes: []byte("x"), Timestamp: now}); err != nil {
		t.Fatalf("Append seq 2: %v", err)
	}

	high, err := store.HighestSeq(ctx, DirectionOut)
	if err != nil {
		t.Fatalf("HighestSeq: %v", err)
	}
	if high != 2 {
		t.Errorf("HighestSeq = %d, want 2", high)
	}

	recs, err := store.FetchRange(ctx, DirectionOut, 1, 2)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("FetchRange returned %d records, want 2", len(recs))
	}
	if recs[0].SeqNum != 1 || recs[1].SeqNum != 2 {
		t.Errorf("FetchRange out of order: %+v", recs)
	}

	if err := store.Reset(ctx, "epoch-2"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	high, err = store.HighestSeq(ctx, DirectionOut)
	if err != nil {
		t.Fatalf("HighestSeq after reset: %v", err)
	}
	if high != 0 {
		t.Errorf("HighestSeq after reset = %d, want 0", high)
	}
}

func TestSQLStoreAppendFetchIdempotent(t *testing.T) {
	store, err := NewSQLStore("file::memory:?cache=shared", "epoch-1")
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	defer store.Close()

	runStoreContract(t, store)
}
