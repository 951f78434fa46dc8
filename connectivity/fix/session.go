package fix

import (
	"fmt"
	"time"
)

// Phase 是会话的登录阶段，spec §3 "logon_state" 的 Go 表示，编码为一个带
// 显式迁移的带标签变体，而不是散落各处的布尔标志（spec §9 Design Notes）。
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseLogonSent
	PhaseLoggedOn
	PhaseExpectingResend // 我们已发出 ResendRequest，等待 gap 被填满
	PhaseLogoutSent
	PhaseEnded
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "Disconnected"
	case PhaseLogonSent:
		return "LogonSent"
	case PhaseLoggedOn:
		return "LoggedOn"
	case PhaseExpectingResend:
		return "ExpectingResend"
	case PhaseLogoutSent:
		return "LogoutSent"
	case PhaseEnded:
		return "Ended"
	default:
		return "Error"
	}
}

// Settings 是 spec §6 settings 表的 Go 映射。
type Settings struct {
	SenderCompID       string        `mapstructure:"sender_comp_id"       validate:"required"`
	TargetCompID       string        `mapstructure:"target_comp_id"       validate:"required"`
	SocketAddr         string        `mapstructure:"socket_addr"          validate:"required"`
	BeginString        string        `mapstructure:"begin_string"         validate:"required,eq=FIX.4.2"`
	Epoch              string        `mapstructure:"epoch"`
	StorePath          string        `mapstructure:"store_path"           validate:"required"`
	LogDir             string        `mapstructure:"log_dir"`
	HeartBtInt         int           `mapstructure:"heartbeat_timeout"    validate:"required,gt=0"`
	StartTime          string        `mapstructure:"start_time"`
	ResetSeqNumOnLogon bool          `mapstructure:"reset_seq_num_on_logon"`
	LogonTimeout       time.Duration `mapstructure:"-"`
	LogoutTimeout      time.Duration `mapstructure:"-"`

	// WireTap, 若非 nil，会在每一帧原始字节被读取或写入套接字时同步调用
	// （dir=DirectionIn 为读取，dir=DirectionOut 为写入），用于旁路审计/
	// 调试日志而不让核心库依赖具体的日志实现（spec §10.1 raw wire log）。
	WireTap func(dir Direction, raw []byte) `mapstructure:"-"`
}

func (s Settings) heartBtInt() time.Duration { return time.Duration(s.HeartBtInt) * time.Second }

func (s Settings) logonTimeout() time.Duration {
	if s.LogonTimeout > 0 {
		return s.LogonTimeout
	}
	return 10 * time.Second
}

func (s Settings) logoutTimeout() time.Duration {
	if s.LogoutTimeout > 0 {
		return s.LogoutTimeout
	}
	return 10 * time.Second
}

// bufferedInbound 暂存在 gap 期间、晚于预期序号到达的报文，等待重发把前
// 面的空洞填满后再按序派发（spec §4.5.2 "queue this message aside"）。
type bufferedInbound struct {
	seqNum uint64
	msg    *Message
}

// Session 持有 spec §3 "Session state" 的全部字段；状态机的纯转移逻辑都
// 挂在它上面。Wire Codec 与 Message Builder 是无状态的，计时器状态归
// Driver 所有（spec §3 Ownership）。
type Session struct {
	cfg Settings

	Phase     Phase
	NextOutSeq uint64
	NextInSeq  uint64

	LastSentTime time.Time
	LastRecvTime time.Time

	TestRequestOutstanding string // 非空即有未回应的 TestRequest(112)

	gapFrom uint64 // ExpectingResend 状态下，我们自己发出的 ResendRequest 覆盖的起点
	gapBuf  []bufferedInbound

	resendQueue []ResendSpan // 不被任何代码读写；对端 ResendRequest 由 Driver 事件循环逐帧处理，因而串行
}

// NewSession 以 spec §3 的默认值构造一个未连接会话：序号从持久化的
// Store 恢复由 Driver.start 负责，这里只负责纯状态初始化。
func NewSession(cfg Settings, nextOutSeq, nextInSeq uint64) *Session {
	return &Session{
		cfg:        cfg,
		Phase:      PhaseDisconnected,
		NextOutSeq: nextOutSeq,
		NextInSeq:  nextInSeq,
	}
}

// ResendSpan 是一个闭区间 [From, To]；To=0 表示 "直到当前"。
type ResendSpan struct {
	From uint64
	To   uint64 // 0 == infinity/"through current"
}

// InboundOutcome 是处理一条入站报文后的结果：需要立即发送的报文、需要上
// 交应用层的报文、需要驱动读取 Store 并重放的请求范围、以及致命错误。
type InboundOutcome struct {
	Outbound        []*MessageBuilder
	Deliver         *Message
	ResendRequested *ResendSpan
	Fatal           *EngineError
}

// StartLogon 构建并返回初始 Logon(35=A) 报文，转移到 LogonSent。对应
// spec §4.5.1。
func (s *Session) StartLogon() *MessageBuilder {
	if s.cfg.ResetSeqNumOnLogon {
		s.NextOutSeq = 1
		s.NextInSeq = 1
	}
	b := NewMessageBuilder(s.cfg.BeginString, MsgTypeLogon)
	_ = b.PushField(TagEncryptMethod, "0")
	_ = b.PushInt(TagHeartBtInt, int64(s.cfg.HeartBtInt))
	if s.cfg.ResetSeqNumOnLogon {
		_ = b.PushField(TagResetSeqNumFlag, "Y")
	}
	s.Phase = PhaseLogonSent
	return b
}

// HandleInbound 是状态机的核心入口：按 spec §4.5.2/4.5.3/4.5.1 处理一条
// 已解析、已通过 CheckSum/BodyLength 校验的入站报文。调用方（Driver）在
// 调用前已完成 Store(In) 的持久化决策（commit 只在这里决定是否 advance）。
func (s *Session) HandleInbound(msg *Message, seqNum uint64, now time.Time) InboundOutcome {
	if rej := validateInbound(msg, s.cfg, seqNum, now); rej != nil {
		if rej.Fatal {
			return s.fatalLogout(fmt.Sprintf("session reject: %s", rej.Text))
		}
		return InboundOutcome{Outbound: []*MessageBuilder{s.buildReject(rej)}}
	}

	msgType := msg.MsgType()
	possDup, _ := msg.GetString(TagPossDupFlag)
	isDup := possDup == "Y"

	if s.Phase == PhaseLogonSent {
		return s.handleLogonPhase(msg, seqNum, isDup, now)
	}

	if msgType == MsgTypeSequenceReset {
		if gapFill, _ := msg.GetString(TagGapFillFlag); gapFill != "Y" {
			return s.handleHardReset(msg, seqNum)
		}
	}

	delta := int64(seqNum) - int64(s.NextInSeq)
	switch {
	case delta == 0:
		s.NextInSeq++
		s.LastRecvTime = now
		return s.dispatchInOrder(msg, seqNum, now)
	case delta > 0:
		if isDup {
			return InboundOutcome{} // 已计数过的重复，忽略
		}
		return s.handleGap(msg, seqNum, now)
	default: // delta < 0
		if isDup {
			return InboundOutcome{} // 重复消息，丢弃
		}
		return s.fatalLogout(fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", s.NextInSeq, seqNum))
	}
}

func (s *Session) handleLogonPhase(msg *Message, seqNum uint64, isDup bool, now time.Time) InboundOutcome {
	if msg.MsgType() != MsgTypeLogon {
		return s.fatalLogout("expected Logon as first message")
	}
	switch {
	case seqNum == s.NextInSeq:
		s.NextInSeq++
		s.Phase = PhaseLoggedOn
		s.LastRecvTime = now
		return InboundOutcome{}
	case seqNum > s.NextInSeq:
		from := s.NextInSeq
		s.Phase = PhaseLoggedOn
		s.LastRecvTime = now
		return s.requestResend(from, 0)
	default:
		if isDup {
			return InboundOutcome{}
		}
		return s.fatalLogout(fmt.Sprintf("MsgSeqNum too low at logon, expecting %d but received %d", s.NextInSeq, seqNum))
	}
}

// handleHardReset 实现 spec §4.5.2 步骤 2：GapFillFlag=N 的 SequenceReset
// 把 next_in_seq 设为 NewSeqNo，不做 gap 检测；NewSeqNo 小于当前
// next_in_seq 时按致命协议错误登出。
func (s *Session) handleHardReset(msg *Message, seqNum uint64) InboundOutcome {
	newSeqStr, ok := msg.GetString(TagNewSeqNo)
	if !ok {
		return InboundOutcome{Outbound: []*MessageBuilder{s.buildReject(&SessionRejectError{
			Reason: RejectRequiredTagMissing, RefSeqNum: seqNum, RefTagID: TagNewSeqNo,
			RefMsgType: MsgTypeSequenceReset, Text: "NewSeqNo missing",
		})}}
	}
	newSeq, ok := asciiToUint([]byte(newSeqStr))
	if !ok {
		return InboundOutcome{Outbound: []*MessageBuilder{s.buildReject(&SessionRejectError{
			Reason: RejectIncorrectDataFormat, RefSeqNum: seqNum, RefTagID: TagNewSeqNo,
			RefMsgType: MsgTypeSequenceReset, Text: "NewSeqNo not numeric",
		})}}
	}
	// spec §9 Open Question 2 resolution: 拒绝向后移动 next_in_seq。
	if uint64(newSeq) < s.NextInSeq {
		return s.fatalLogout(fmt.Sprintf("SequenceReset would move next_in_seq backwards (%d -> %d)", s.NextInSeq, newSeq))
	}
	s.NextInSeq = uint64(newSeq)
	return InboundOutcome{}
}

// handleGap 实现 spec §4.5.2 的 delta>0 分支：发 ResendRequest 并把当前
// 报文暂存待填补。
func (s *Session) handleGap(msg *Message, seqNum uint64, now time.Time) InboundOutcome {
	s.gapBuf = append(s.gapBuf, bufferedInbound{seqNum: seqNum, msg: msg})
	if s.Phase == PhaseExpectingResend {
		return InboundOutcome{} // 已经在等待填补，不需要再发一次请求
	}
	s.gapFrom = s.NextInSeq
	s.Phase = PhaseExpectingResend
	return s.requestResend(s.NextInSeq, 0)
}

func (s *Session) requestResend(from, to uint64) InboundOutcome {
	b := NewMessageBuilder(s.cfg.BeginString, MsgTypeResendRequest)
	_ = b.PushInt(TagBeginSeqNo, int64(from))
	_ = b.PushInt(TagEndSeqNo, int64(to))
	return InboundOutcome{Outbound: []*MessageBuilder{b}}
}

// DrainGapBuffer 在一次 gap-fill 报文（SequenceReset GapFill=Y，或正常
// advance）把空洞填满之后被 Driver 调用，按序派发此前暂存的报文。
func (s *Session) DrainGapBuffer(now time.Time) []InboundOutcome {
	var out []InboundOutcome
	for {
		progressed := false
		for i, buffered := range s.gapBuf {
			if buffered.seqNum != s.NextInSeq {
				continue
			}
			s.gapBuf = append(s.gapBuf[:i], s.gapBuf[i+1:]...)
			s.NextInSeq++
			out = append(out, s.dispatchInOrder(buffered.msg, buffered.seqNum, now))
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	if len(s.gapBuf) == 0 && s.Phase == PhaseExpectingResend {
		s.Phase = PhaseLoggedOn
	}
	return out
}

// dispatchInOrder 处理一条已确认按序到达（delta==0）的报文：admin 消息在
// 状态机内部处理（spec §4.5.3），application 消息交由应用层。
func (s *Session) dispatchInOrder(msg *Message, seqNum uint64, now time.Time) InboundOutcome {
	if !IsAdmin(msg.MsgType()) {
		return InboundOutcome{Deliver: msg}
	}
	switch msg.MsgType() {
	case MsgTypeHeartbeat:
		s.LastRecvTime = now
		if id, ok := msg.GetString(TagTestReqID); ok && id == s.TestRequestOutstanding {
			s.TestRequestOutstanding = ""
		}
		return InboundOutcome{}
	case MsgTypeTestRequest:
		s.LastRecvTime = now
		id, _ := msg.GetString(TagTestReqID)
		b := NewMessageBuilder(s.cfg.BeginString, MsgTypeHeartbeat)
		_ = b.PushStr(TagTestReqID, id)
		return InboundOutcome{Outbound: []*MessageBuilder{b}}
	case MsgTypeResendRequest:
		from, to := parseResendRange(msg)
		return InboundOutcome{ResendRequested: &ResendSpan{From: from, To: to}}
	case MsgTypeSequenceReset:
		// GapFillFlag=Y 在正常 delta==0 路径下等价于一次正常 advance，已在
		// 调用者中把 next_in_seq 推进过；这里只需把 NewSeqNo 采纳为新值
		// （spec §4.5.3 "accept as the normal gap-fill"）。
		if newSeqStr, ok := msg.GetString(TagNewSeqNo); ok {
			if newSeq, ok := asciiToUint([]byte(newSeqStr)); ok && uint64(newSeq) > s.NextInSeq {
				s.NextInSeq = uint64(newSeq)
			}
		}
		return InboundOutcome{}
	case MsgTypeReject:
		return InboundOutcome{Deliver: msg}
	case MsgTypeLogout:
		if s.Phase == PhaseLogoutSent {
			s.Phase = PhaseEnded
			return InboundOutcome{}
		}
		b := NewMessageBuilder(s.cfg.BeginString, MsgTypeLogout)
		s.Phase = PhaseEnded
		return InboundOutcome{Outbound: []*MessageBuilder{b}}
	case MsgTypeLogon:
		return InboundOutcome{} // 已在 LoggedOn 阶段，忽略重复 Logon 形状上的细节
	default:
		return InboundOutcome{}
	}
}

func parseResendRange(msg *Message) (uint64, uint64) {
	var from, to uint64
	if v, ok := msg.GetString(TagBeginSeqNo); ok {
		if n, ok := asciiToUint([]byte(v)); ok {
			from = uint64(n)
		}
	}
	if v, ok := msg.GetString(TagEndSeqNo); ok {
		if n, ok := asciiToUint([]byte(v)); ok {
			to = uint64(n)
		}
	}
	return from, to
}

// buildReject 构造一条 Reject(3) 报文，携带 SessionRejectReason(373)
// （spec §10 第 2 条 Supplemented Features）。
func (s *Session) buildReject(rej *SessionRejectError) *MessageBuilder {
	b := NewMessageBuilder(s.cfg.BeginString, MsgTypeReject)
	_ = b.PushInt(TagRefSeqNum, int64(rej.RefSeqNum))
	if rej.RefTagID != 0 {
		_ = b.PushInt(TagRefTagID, int64(rej.RefTagID))
	}
	if rej.RefMsgType != "" {
		_ = b.PushStr(TagRefMsgType, string(rej.RefMsgType))
	}
	_ = b.PushInt(TagSessionRejectReason, int64(rej.Reason))
	if rej.Text != "" {
		_ = b.PushStr(TagText, rej.Text)
	}
	return b
}

// fatalLogout 构造触发会话终止的结果：附带 Logout 报文，并
// 标记 Fatal 错误供 Driver 关闭连接、持久化计数器、向应用层返回终态错误。
func (s *Session) fatalLogout(reason string) InboundOutcome {
	b := NewMessageBuilder(s.cfg.BeginString, MsgTypeLogout)
	_ = b.PushStr(TagText, reason)
	s.Phase = PhaseError
	return InboundOutcome{
		Outbound: []*MessageBuilder{b},
		Fatal:    newEngineError(ErrKindSessionEnded, reason, nil),
	}
}

// NextOutgoingSeq 原子地分配并自增下一个出站序号（spec §4.5.4 步骤 1）。
func (s *Session) NextOutgoingSeq() uint64 {
	seq := s.NextOutSeq
	s.NextOutSeq++
	return seq
}

// RequestLogout 构造 Graceful Logout 报文，转移到 LogoutSent（spec §4.7
// 的 shutdown 优先级最高分支，以及 S6 场景）。
func (s *Session) RequestLogout() *MessageBuilder {
	s.Phase = PhaseLogoutSent
	return NewMessageBuilder(s.cfg.BeginString, MsgTypeLogout)
}
