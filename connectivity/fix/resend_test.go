package fix

import (
	"testing"
	"time"
)

func TestTransformForResendSetsPossDupAndOrigSendingTime(t *testing.T) {
	origTime := time.Date(2026, 8, 5, 9, 0, 0, 0, time.UTC)
	b := NewMessageBuilder("FIX.4.2", MsgTypeNewOrderSingle)
	_ = b.PushStr(TagTestReqID, "keep-me")
	raw, err := b.Finalize("TW", "ISLD", 3, origTime)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	stored := StoredMessage{Direction: DirectionOut, SeqNum: 3, MsgType: MsgTypeNewOrderSingle, RawBytes: raw, Timestamp: origTime}

	now := origTime.Add(time.Hour)
	resent, err := transformForResend("FIX.4.2", "TW", "ISLD", stored, now)
	if err != nil {
		t.Fatalf("transformForResend: %v", err)
	}

	msg, err := Parse(resent)
	if err != nil {
		t.Fatalf("Parse(resent): %v", err)
	}
	if dup, _ := msg.GetString(TagPossDupFlag); dup != "Y" {
		t.Errorf("PossDupFlag = %q, want Y", dup)
	}
	if orig, ok := msg.GetString(TagOrigSendingTime); !ok || orig != origTime.UTC().Format(sendingTimeLayout) {
		t.Errorf("OrigSendingTime = %q, want %q", orig, origTime.UTC().Format(sendingTimeLayout))
	}
	if seq, _ := msg.GetString(TagMsgSeqNum); seq != "3" {
		t.Errorf("MsgSeqNum = %q, want 3 (preserved)", seq)
	}
	if kept, _ := msg.GetString(TagTestReqID); kept != "keep-me" {
		t.Errorf("business field not preserved: got %q", kept)
	}
}

func TestPlanResendReplayCoalescesAdminRuns(t *testing.T) {
	stored := []StoredMessage{
		{SeqNum: 2, MsgType: MsgTypeHeartbeat},
		{SeqNum: 3, MsgType: MsgTypeLogon},
		{SeqNum: 4, MsgType: MsgTypeNewOrderSingle},
		{SeqNum: 5, MsgType: MsgTypeHeartbeat},
	}
	actions := planResendReplay(stored)
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions (gapfill, real, gapfill), got %d: %+v", len(actions), actions)
	}
	if !actions[0].isGapFill || actions[0].gapFillFrom != 2 || actions[0].newSeqNo != 4 {
		t.Errorf("first action wrong: %+v", actions[0])
	}
	if actions[1].isGapFill || actions[1].message.SeqNum != 4 {
		t.Errorf("second action wrong: %+v", actions[1])
	}
	if !actions[2].isGapFill || actions[2].gapFillFrom != 5 || actions[2].newSeqNo != 6 {
		t.Errorf("third action wrong: %+v", actions[2])
	}
}
