package fix

import (
	"testing"
	"time"
)

func buildInbound(t *testing.T, sender, target string, extra func(*MessageBuilder)) *Message {
	t.Helper()
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	if extra != nil {
		extra(b)
	}
	raw, err := b.Finalize(sender, target, 1, time.Now())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return msg
}

func TestValidateInboundCompIDMismatchIsFatal(t *testing.T) {
	cfg := testSettings()
	msg := buildInbound(t, "WRONG", "TW", nil)
	rej := validateInbound(msg, cfg, 1, time.Now())
	if rej == nil || rej.Reason != RejectCompIDProblem || !rej.Fatal {
		t.Fatalf("got %+v, want fatal RejectCompIDProblem", rej)
	}
}

func TestValidateInboundSendingTimeOutsideWindowIsFatal(t *testing.T) {
	cfg := testSettings()
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	raw, err := b.Finalize("ISLD", "TW", 1, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rej := validateInbound(msg, cfg, 1, time.Now())
	if rej == nil || rej.Reason != RejectSendingTimeAccuracy || !rej.Fatal {
		t.Fatalf("got %+v, want fatal RejectSendingTimeAccuracy", rej)
	}
}

func TestValidateInboundPossDupWithoutOrigSendingTimeIsNonFatal(t *testing.T) {
	cfg := testSettings()
	msg := buildInbound(t, "ISLD", "TW", func(b *MessageBuilder) {
		_ = b.PushField(TagPossDupFlag, "Y")
	})
	rej := validateInbound(msg, cfg, 1, time.Now())
	if rej == nil || rej.Reason != RejectRequiredTagMissing || rej.Fatal {
		t.Fatalf("got %+v, want non-fatal RejectRequiredTagMissing", rej)
	}
}

func TestValidateInboundAcceptsWellFormedMessage(t *testing.T) {
	cfg := testSettings()
	msg := buildInbound(t, "ISLD", "TW", nil)
	if rej := validateInbound(msg, cfg, 1, time.Now()); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
}
