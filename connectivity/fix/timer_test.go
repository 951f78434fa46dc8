package fix

import (
	"testing"
	"time"
)

func TestTimerSendsHeartbeatAfterInterval(t *testing.T) {
	s := NewSession(testSettings(), 2, 2)
	s.Phase = PhaseLoggedOn
	start := time.Now()
	s.LastSentTime = start
	s.LastRecvTime = start

	timer := NewTimer(30 * time.Second)
	if action := timer.Tick(s, start.Add(10*time.Second)); action != TimerActionNone {
		t.Fatalf("Tick at +10s = %v, want None", action)
	}
	if action := timer.Tick(s, start.Add(31*time.Second)); action != TimerActionSendHeartbeat {
		t.Fatalf("Tick at +31s = %v, want SendHeartbeat", action)
	}
}

func TestTimerEscalatesToTestRequestThenDeath(t *testing.T) {
	s := NewSession(testSettings(), 2, 2)
	s.Phase = PhaseLoggedOn
	start := time.Now()
	s.LastSentTime = start
	s.LastRecvTime = start

	timer := NewTimer(30 * time.Second)

	action := timer.Tick(s, start.Add(31*time.Second))
	if action != TimerActionSendHeartbeat {
		t.Fatalf("first tick = %v, want SendHeartbeat", action)
	}
	s.LastSentTime = start.Add(31 * time.Second)

	action = timer.Tick(s, start.Add(32*time.Second))
	if action != TimerActionSendTestRequest {
		t.Fatalf("tick at +32s with stale LastRecvTime = %v, want SendTestRequest", action)
	}
	_ = timer.BuildTestRequest(s)
	if s.TestRequestOutstanding == "" {
		t.Fatal("expected TestRequestOutstanding to be set")
	}
	s.LastSentTime = start.Add(32 * time.Second) // sending the TestRequest also counts as an outbound send

	action = timer.Tick(s, start.Add(61*time.Second))
	if action != TimerActionDeclareDead {
		t.Fatalf("tick at +61s with outstanding TestRequest = %v, want DeclareDead", action)
	}
}
