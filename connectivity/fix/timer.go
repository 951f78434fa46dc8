package fix

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// tickDivisor 决定计时器轮询粒度的上限 HeartBtInt/tickDivisor，取 spec §4.6 "poll at a resolution
// of at most HeartBtInt/4" 的约束。
const tickDivisor = 4

// TimerAction 描述一次 tick 之后 Driver 需要采取的动作：发送心跳、发送
// TestRequest，或判定对端已失联而终止会话。三者互斥。
type TimerAction int

const (
	TimerActionNone TimerAction = iota
	TimerActionSendHeartbeat
	TimerActionSendTestRequest
	TimerActionDeclareDead
)

// Timer 实现 spec §4.6 的心跳/存活判定调度：出站心跳在
// now-LastSentTime>=H 时触发；入站存活检测先在 now-LastRecvTime>=H 时发
// TestRequest，在 2H 时宣告对端死亡。Timer 本身不持有 wall-clock 状态，
// 只读取 Session 上的时间戳，保持与 Session FSM 相同的单线程协作模型
// （spec §3 Ownership：timer state 属于 Driver）。
type Timer struct {
	heartBtInt time.Duration
}

// NewTimer 按配置的 HeartBtInt 构造一个 Timer。
func NewTimer(heartBtInt time.Duration) *Timer {
	return &Timer{heartBtInt: heartBtInt}
}

// Resolution 返回 Driver 事件循环应当使用的最大轮询间隔。
func (t *Timer) Resolution() time.Duration {
	return t.heartBtInt / tickDivisor
}

// Tick 检查当前时间相对 session 上记录的最近收发时间，返回需要采取的动作。
// 调用方负责在采取动作后更新 TestRequestOutstanding/LastSentTime 等字段。
func (t *Timer) Tick(s *Session, now time.Time) TimerAction {
	if s.Phase != PhaseLoggedOn && s.Phase != PhaseExpectingResend {
		return TimerActionNone
	}

	if !s.LastSentTime.IsZero() && now.Sub(s.LastSentTime) >= t.heartBtInt {
		return TimerActionSendHeartbeat
	}

	if s.LastRecvTime.IsZero() {
		return TimerActionNone
	}
	idle := now.Sub(s.LastRecvTime)
	switch {
	case s.TestRequestOutstanding != "" && idle >= 2*t.heartBtInt:
		return TimerActionDeclareDead
	case idle >= t.heartBtInt && s.TestRequestOutstanding == "":
		return TimerActionSendTestRequest
	default:
		return TimerActionNone
	}
}

// BuildHeartbeat 构造一条无 TestReqID 的主动心跳报文。
func (t *Timer) BuildHeartbeat(s *Session) *MessageBuilder {
	return NewMessageBuilder(s.cfg.BeginString, MsgTypeHeartbeat)
}

// BuildTestRequest 构造一条携带新生成 TestReqID 的 TestRequest 报文，并
// 记录在 session 上等待对应的 Heartbeat 回声。
func (t *Timer) BuildTestRequest(s *Session) *MessageBuilder {
	id := newTestReqID()
	s.TestRequestOutstanding = id
	b := NewMessageBuilder(s.cfg.BeginString, MsgTypeTestRequest)
	_ = b.PushStr(TagTestReqID, id)
	return b
}

func newTestReqID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
