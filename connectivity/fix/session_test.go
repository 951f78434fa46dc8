package fix

import (
	"testing"
	"time"
)

func testSettings() Settings {
	return Settings{
		SenderCompID: "TW",
		TargetCompID: "ISLD",
		BeginString:  "FIX.4.2",
		HeartBtInt:   30,
	}
}

// inboundFrom builds a wire-valid message as seen from TW's perspective
// (i.e. sent by ISLD, so SenderCompID=ISLD/TargetCompID=TW) and parses it
// back, mirroring what the driver hands to Session.HandleInbound.
func inboundFrom(t *testing.T, msgType MsgType, seq uint64, now time.Time, extra func(*MessageBuilder)) (*Message, uint64) {
	t.Helper()
	b := NewMessageBuilder("FIX.4.2", msgType)
	if extra != nil {
		extra(b)
	}
	raw, err := b.Finalize("ISLD", "TW", seq, now)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return msg, seq
}

func TestCleanLogon(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 1, 1)

	b := s.StartLogon()
	if s.Phase != PhaseLogonSent {
		t.Fatalf("Phase = %v, want LogonSent", s.Phase)
	}
	if _, err := b.Finalize("TW", "ISLD", s.NextOutgoingSeq(), now); err != nil {
		t.Fatalf("Finalize Logon: %v", err)
	}

	msg, seq := inboundFrom(t, MsgTypeLogon, 1, now, func(b *MessageBuilder) {
		_ = b.PushField(TagEncryptMethod, "0")
		_ = b.PushInt(TagHeartBtInt, 30)
	})
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", outcome.Fatal)
	}
	if s.Phase != PhaseLoggedOn {
		t.Fatalf("Phase = %v, want LoggedOn", s.Phase)
	}
	if s.NextInSeq != 2 {
		t.Errorf("NextInSeq = %d, want 2", s.NextInSeq)
	}
	if s.NextOutSeq != 2 {
		t.Errorf("NextOutSeq = %d, want 2", s.NextOutSeq)
	}
}

func TestTestRequestReply(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 2, 2)
	s.Phase = PhaseLoggedOn

	msg, seq := inboundFrom(t, MsgTypeTestRequest, 2, now, func(b *MessageBuilder) {
		_ = b.PushStr(TagTestReqID, "ABC")
	})
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", outcome.Fatal)
	}
	if len(outcome.Outbound) != 1 {
		t.Fatalf("expected exactly one outbound heartbeat, got %d", len(outcome.Outbound))
	}
	hb := outcome.Outbound[0]
	if hb.MsgType() != MsgTypeHeartbeat {
		t.Fatalf("outbound MsgType = %q, want Heartbeat", hb.MsgType())
	}
}

func TestGapTriggersResendRequestAndBuffersMessage(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 2, 2)
	s.Phase = PhaseLoggedOn

	msg, seq := inboundFrom(t, MsgTypeNewOrderSingle, 5, now, nil)
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", outcome.Fatal)
	}
	if len(outcome.Outbound) != 1 || outcome.Outbound[0].MsgType() != MsgTypeResendRequest {
		t.Fatalf("expected a ResendRequest, got %+v", outcome.Outbound)
	}
	if s.Phase != PhaseExpectingResend {
		t.Fatalf("Phase = %v, want ExpectingResend", s.Phase)
	}
	if len(s.gapBuf) != 1 {
		t.Fatalf("expected the out-of-order message to be buffered, gapBuf has %d entries", len(s.gapBuf))
	}

	// gap-fill covering 2..5 arrives (coalesced admin replay), then the
	// buffered seq-5 message should drain in order.
	gapFill, gfSeq := inboundFrom(t, MsgTypeSequenceReset, 2, now, func(b *MessageBuilder) {
		_ = b.PushField(TagGapFillFlag, "Y")
		_ = b.PushInt(TagNewSeqNo, 5)
	})
	gfOutcome := s.HandleInbound(gapFill, gfSeq, now)
	if gfOutcome.Fatal != nil {
		t.Fatalf("unexpected fatal on gap-fill: %v", gfOutcome.Fatal)
	}
	if s.NextInSeq != 5 {
		t.Fatalf("NextInSeq after gap-fill = %d, want 5", s.NextInSeq)
	}

	drained := s.DrainGapBuffer(now)
	if len(drained) != 1 {
		t.Fatalf("expected exactly one drained message, got %d", len(drained))
	}
	if drained[0].Deliver == nil {
		t.Fatal("expected the drained NewOrderSingle to be delivered to the application")
	}
	if s.NextInSeq != 6 {
		t.Errorf("NextInSeq after drain = %d, want 6", s.NextInSeq)
	}
	if s.Phase != PhaseLoggedOn {
		t.Errorf("Phase after drain = %v, want LoggedOn", s.Phase)
	}
}

func TestSeqTooLowIsFatal(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 2, 5)
	s.Phase = PhaseLoggedOn

	msg, seq := inboundFrom(t, MsgTypeNewOrderSingle, 3, now, nil)
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal == nil {
		t.Fatal("expected a fatal error for MsgSeqNum too low")
	}
	if s.Phase != PhaseError {
		t.Errorf("Phase = %v, want Error", s.Phase)
	}
}

func TestPossDupSeqTooLowIsIgnoredNotFatal(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 2, 5)
	s.Phase = PhaseLoggedOn

	msg, seq := inboundFrom(t, MsgTypeNewOrderSingle, 3, now, func(b *MessageBuilder) {
		_ = b.PushField(TagPossDupFlag, "Y")
		_ = b.PushStr(TagOrigSendingTime, now.Add(-time.Minute).UTC().Format(sendingTimeLayout))
	})
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal != nil {
		t.Fatalf("PossDup duplicate below next_in_seq should be ignored, got fatal: %v", outcome.Fatal)
	}
	if s.Phase != PhaseLoggedOn {
		t.Errorf("Phase = %v, want unchanged LoggedOn", s.Phase)
	}
}

func TestSequenceResetCannotMoveBackwards(t *testing.T) {
	now := time.Now()
	s := NewSession(testSettings(), 2, 10)
	s.Phase = PhaseLoggedOn

	msg, seq := inboundFrom(t, MsgTypeSequenceReset, 10, now, func(b *MessageBuilder) {
		_ = b.PushInt(TagNewSeqNo, 3)
	})
	outcome := s.HandleInbound(msg, seq, now)
	if outcome.Fatal == nil {
		t.Fatal("expected a fatal error for a backwards SequenceReset")
	}
}

func TestGracefulLogout(t *testing.T) {
	s := NewSession(testSettings(), 2, 2)
	s.Phase = PhaseLoggedOn
	b := s.RequestLogout()
	if s.Phase != PhaseLogoutSent {
		t.Fatalf("Phase = %v, want LogoutSent", s.Phase)
	}
	if b.MsgType() != MsgTypeLogout {
		t.Fatalf("MsgType = %q, want Logout", b.MsgType())
	}
}
