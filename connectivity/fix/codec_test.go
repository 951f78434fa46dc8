package fix

import (
	"testing"
	"time"
)

func TestParseRejectsBadChecksum(t *testing.T) {
	raw := mustFinalize(t, NewMessageBuilder("FIX.4.2", MsgTypeHeartbeat), 1)
	corrupted := append([]byte{}, raw...)
	corrupted[len(corrupted)-2] = '9' // 篡改 CheckSum 的最后一位数字

	_, err := Parse(corrupted)
	if err == nil {
		t.Fatal("expected a checksum error")
	}
	fe, ok := err.(*FramingError)
	if !ok || fe.Kind != FramingBadChecksum {
		t.Fatalf("got %v, want FramingBadChecksum", err)
	}
}

func TestParseRejectsBadBodyLength(t *testing.T) {
	raw := []byte("8=FIX.4.2\x019=999\x0135=0\x0134=1\x0149=A\x0156=B\x0152=20260805-12:00:00.000\x0110=000\x01")
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected a body length error")
	}
	fe, ok := err.(*FramingError)
	if !ok || fe.Kind != FramingBadBodyLength {
		t.Fatalf("got %v, want FramingBadBodyLength", err)
	}
}

func TestParseDataLengthPairing(t *testing.T) {
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	if err := b.PushInt(95, 5); err != nil {
		t.Fatalf("PushInt(95): %v", err)
	}
	if err := b.PushData(118, []byte{'a', SOH, 'b', 'c', 'd'}); err != nil {
		t.Fatalf("PushData(118): %v", err)
	}
	raw := mustFinalize(t, b, 1)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, ok := msg.Get(118)
	if !ok {
		t.Fatal("tag 118 missing after parse")
	}
	if string(data) != "a\x01bcd" {
		t.Errorf("tag 118 = %q, want %q (embedded SOH preserved)", data, "a\x01bcd")
	}
}

func mustFinalize(t *testing.T, b *MessageBuilder, seq uint64) []byte {
	t.Helper()
	raw, err := b.Finalize("BUYER", "SELLER", seq, time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return raw
}
