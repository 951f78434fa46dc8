package fix

import (
	"bufio"
	"bytes"
	"testing"
	"time"
)

func TestBuilderFinalizeRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	if err := b.PushStr(TagTestReqID, "order-1"); err != nil {
		t.Fatalf("PushStr: %v", err)
	}

	raw, err := b.Finalize("BUYER", "SELLER", 7, now)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(finalized) failed: %v", err)
	}
	if msg.MsgType() != MsgTypeNewOrderSingle {
		t.Errorf("MsgType = %q, want %q", msg.MsgType(), MsgTypeNewOrderSingle)
	}
	if seq, _ := msg.GetString(TagMsgSeqNum); seq != "7" {
		t.Errorf("MsgSeqNum = %q, want 7", seq)
	}
	if sender, _ := msg.GetString(TagSenderCompID); sender != "BUYER" {
		t.Errorf("SenderCompID = %q, want BUYER", sender)
	}
	if target, _ := msg.GetString(TagTargetCompID); target != "SELLER" {
		t.Errorf("TargetCompID = %q, want SELLER", target)
	}
}

func TestBuilderRejectsSOHInValue(t *testing.T) {
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	err := b.PushBytes(TagTestReqID, []byte{'a', SOH, 'b'})
	if err == nil {
		t.Fatal("expected error pushing a value containing SOH")
	}
}

func TestBuilderCannotFinalizeTwice(t *testing.T) {
	b := NewMessageBuilder("FIX.4.2", MsgTypeHeartbeat)
	now := time.Now()
	if _, err := b.Finalize("A", "B", 1, now); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if _, err := b.Finalize("A", "B", 2, now); err == nil {
		t.Fatal("expected error finalizing an already-used builder")
	}
}

func TestReadFrameMatchesFinalizedBytes(t *testing.T) {
	now := time.Now()
	b := NewMessageBuilder("FIX.4.2", MsgTypeHeartbeat)
	raw, err := b.Finalize("BUYER", "SELLER", 1, now)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := bufio.NewReader(bytes.NewReader(raw))
	framed, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(framed, raw) {
		t.Errorf("ReadFrame produced different bytes than Finalize:\n got: %q\nwant: %q", framed, raw)
	}
}
