package fix

import "testing"

func TestIsAdmin(t *testing.T) {
	cases := []struct {
		mt    MsgType
		admin bool
	}{
		{MsgTypeHeartbeat, true},
		{MsgTypeLogon, true},
		{MsgTypeLogout, true},
		{MsgTypeResendRequest, true},
		{MsgTypeSequenceReset, true},
		{MsgTypeNewOrderSingle, false},
		{MsgTypeExecutionRpt, false},
		{"Z", false},
	}
	for _, c := range cases {
		if got := IsAdmin(c.mt); got != c.admin {
			t.Errorf("IsAdmin(%q) = %v, want %v", c.mt, got, c.admin)
		}
	}
}

func TestDataTagForLength(t *testing.T) {
	dataTag, ok := DataTagForLength(95)
	if !ok || dataTag != 118 {
		t.Fatalf("DataTagForLength(95) = (%d, %v), want (118, true)", dataTag, ok)
	}
	if _, ok := DataTagForLength(TagMsgType); ok {
		t.Fatalf("DataTagForLength(35) should not be a length field")
	}
}

func TestTagNameRoundTrip(t *testing.T) {
	tag, ok := TagOf("SenderCompID")
	if !ok || tag != TagSenderCompID {
		t.Fatalf("TagOf(SenderCompID) = (%d, %v)", tag, ok)
	}
	name, ok := NameOf(TagSenderCompID)
	if !ok || name != "SenderCompID" {
		t.Fatalf("NameOf(49) = (%q, %v)", name, ok)
	}
}
