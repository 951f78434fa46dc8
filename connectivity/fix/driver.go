package fix

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wyfcoding/pkg/async"
	"github.com/wyfcoding/pkg/retry"
	"github.com/wyfcoding/pkg/worker"
)

// Handle 标识一个运行中的引擎实例，由 Start 分配，供 Submit/PollEvent/End
// 引用（spec §6 公开操作的签名都以 handle 为第一参数）。
type Handle uint64

// EventKind 区分 PollEvent 返回的事件种类。
type EventKind int

const (
	EventApplicationMessage EventKind = iota
	EventSessionEnded
)

// Event 是应用层通过 PollEvent 消费的一条事件。
type Event struct {
	Handle  Handle
	Kind    EventKind
	Message *Message
	Err     error
}

// Driver 是 spec §4.7 描述的单线程协作式事件循环的 Go 化实现：每个
// handle 对应一个独立 goroutine 驱动的连接，彼此互不共享可变状态；跨
// goroutine 的唯一交互面是 Submit 的入队与 events channel 的出队，和
// teacher 仓库 server/ 包 "一个连接一个 goroutine、对外只暴露 channel"
// 的风格一致。
type Driver struct {
	mu       sync.Mutex
	sessions map[Handle]*engineInstance
	handleID *snowflake.Node
	events   chan Event
	pool     *worker.Pool
}

// NewDriver 构造一个可承载多个并发 FIX 会话的 Driver；events 是应用层
// PollEvent 消费的共享出口，pool 用于把“解析完成、交付应用层”这一步从
// socket 读循环中解耦出去，避免慢消费者阻塞线路层。pool 只开一个 worker：
// 多个 worker 会并发地从任务队列取出同一会话先后入队的 Deliver 任务并各自
// 独立地写 events channel，两次写入谁先完成不再由入队顺序决定，破坏
// spec §1/§4.7 要求的“有序”事件通道；单 worker 严格按任务入队顺序逐个
// 执行，保证同一会话连续两次 Deliver 在 events 上的相对顺序不变。
func NewDriver() (*Driver, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, newEngineError(ErrKindUnknown, "creating handle id generator", err)
	}
	return &Driver{
		sessions: make(map[Handle]*engineInstance),
		handleID: node,
		events:   make(chan Event, 256),
		pool: worker.NewPool(
			worker.WithName("fix-driver-dispatch"),
			worker.WithSize(1),
			worker.WithQueueSize(1024),
		),
	}, nil
}

// engineInstance 是单个会话连接的私有状态：socket、Store、Session FSM、
// Timer、出站提交队列。所有字段只在它自己的 runLoop goroutine 内被修改。
type engineInstance struct {
	handle  Handle
	cfg     Settings
	conn    net.Conn
	reader  *bufio.Reader
	store   Store
	session *Session
	timer   *Timer

	submit      chan *MessageBuilder
	shutdownReq chan struct{}
	done        chan struct{}
	driver      *Driver

	logoutDeadline time.Time // 零值表示尚未发起 Logout，不做超时强制关闭判定
	logonDeadline  time.Time // LogonSent 阶段的超时截止：到期仍未收到对端 Logon 即 LogonFailed

	observedPhase atomic.Int32 // session.Phase 的快照，供健康检查等跨 goroutine 读取
}

func (inst *engineInstance) publishPhase() {
	inst.observedPhase.Store(int32(inst.session.Phase))
}

// Start 实现 spec §6 的 start(settings) 操作：从传入的 Store 读取双向序号
// 高水位、拨号、发送 Logon，并启动事件循环 goroutine；对端的 Logon 应答在
// 事件循环中处理。返回的 Handle 供后续操作引用。
func (d *Driver) Start(ctx context.Context, cfg Settings, store Store) (Handle, error) {
	nextOut, err := store.HighestSeq(ctx, DirectionOut)
	if err != nil {
		return 0, newEngineError(ErrKindIoError, "reading stored outgoing high-water mark", err)
	}
	nextIn, err := store.HighestSeq(ctx, DirectionIn)
	if err != nil {
		return 0, newEngineError(ErrKindIoError, "reading stored incoming high-water mark", err)
	}

	var conn net.Conn
	dialErr := retry.Retry(ctx, func() error {
		c, err := net.Dial("tcp", cfg.SocketAddr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, retry.DefaultRetryConfig())
	if dialErr != nil {
		return 0, newEngineError(ErrKindIoError, "dialing counterparty", dialErr)
	}

	session := NewSession(cfg, nextOut+1, nextIn+1)
	inst := &engineInstance{
		handle:      Handle(d.handleID.Generate().Int64()),
		cfg:         cfg,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		store:       store,
		session:     session,
		timer:       NewTimer(session.cfg.heartBtInt()),
		submit:      make(chan *MessageBuilder, 64),
		shutdownReq: make(chan struct{}, 1),
		done:        make(chan struct{}),
		driver:      d,
	}

	d.mu.Lock()
	d.sessions[inst.handle] = inst
	d.mu.Unlock()

	if err := inst.sendLogon(ctx); err != nil {
		_ = conn.Close()
		return 0, err
	}
	inst.logonDeadline = time.Now().Add(cfg.logonTimeout())
	inst.publishPhase()

	async.SafeGo(func() { inst.runLoop() })
	return inst.handle, nil
}

func (inst *engineInstance) sendLogon(ctx context.Context) error {
	builder := inst.session.StartLogon()
	raw, err := builder.Finalize(inst.cfg.SenderCompID, inst.cfg.TargetCompID, inst.session.NextOutgoingSeq(), time.Now())
	if err != nil {
		return newEngineError(ErrKindLogonFailed, "building Logon", err)
	}
	return inst.writeAndStore(ctx, DirectionOut, raw, MsgTypeLogon)
}

// Submit 实现 spec §6 的 submit(handle, builder) 操作：把一条待发送报文
// 入队，由事件循环按 FIFO 顺序分配序号、持久化、写出线路（spec §4.5.4）。
func (d *Driver) Submit(handle Handle, b *MessageBuilder) error {
	inst, ok := d.lookup(handle)
	if !ok {
		return newEngineError(ErrKindSessionEnded, "unknown or ended handle", nil)
	}
	select {
	case inst.submit <- b:
		return nil
	case <-inst.done:
		return newEngineError(ErrKindSessionEnded, "session already ended", nil)
	}
}

// PollEvent 实现 spec §6 的 poll_event(handle) 操作：阻塞直到任一 handle
// 产生一个事件。调用方按 Event.Handle 过滤感兴趣的会话。
func (d *Driver) PollEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-d.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// End 实现 spec §6 的 end(handle) 操作：请求 runLoop 自己的 goroutine 发起
// graceful Logout，对应 S6 场景的优先级最高分支（spec §4.7）。End 本身只
// 投递一个信号，绝不在调用方 goroutine 上触碰 Session 状态（spec §5：
// session state 没有锁，因为它从不被共享，所有变更必须经过 Driver 序列
// 化），避免与 runLoop 并发读写 Phase。
func (d *Driver) End(handle Handle) error {
	inst, ok := d.lookup(handle)
	if !ok {
		return nil
	}
	select {
	case inst.shutdownReq <- struct{}{}:
	case <-inst.done:
	}
	return nil
}

// Phase returns a point-in-time snapshot of the session phase for handle,
// safe to call from any goroutine (e.g. a health checker), unlike reading
// the Session directly which is only owned by the instance's runLoop.
func (d *Driver) Phase(handle Handle) (Phase, bool) {
	inst, ok := d.lookup(handle)
	if !ok {
		return PhaseError, false
	}
	return Phase(inst.observedPhase.Load()), true
}

func (d *Driver) lookup(handle Handle) (*engineInstance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.sessions[handle]
	return inst, ok
}

func (d *Driver) forget(handle Handle) {
	d.mu.Lock()
	delete(d.sessions, handle)
	d.mu.Unlock()
}

// runLoop 是单个会话的协作式事件循环：在同一 goroutine 内轮询入站字节、
// 出站提交队列与计时器，避免对 Session 状态做任何跨 goroutine 加锁
// （spec §3 Concurrency Model："single-threaded, cooperative"）。
func (inst *engineInstance) runLoop() {
	defer func() {
		_ = inst.conn.Close()
		_ = inst.store.Close()
		close(inst.done)
		inst.driver.forget(inst.handle)
	}()

	inbound := make(chan []byte, 16)
	readErrs := make(chan error, 1)
	async.SafeGo(func() { inst.readFrames(inbound, readErrs) })

	ticker := time.NewTicker(inst.timer.Resolution())
	defer ticker.Stop()

	for {
		select {
		case <-inst.shutdownReq:
			if inst.handleSubmit(inst.session.RequestLogout()) {
				return
			}

		case raw, ok := <-inbound:
			if !ok {
				inst.emitEnded(newEngineError(ErrKindIoError, "connection closed by peer", nil))
				return
			}
			if inst.handleFrame(raw) {
				return
			}

		case err := <-readErrs:
			inst.emitEnded(err)
			return

		case b := <-inst.submit:
			if inst.handleSubmit(b) {
				return
			}

		case now := <-ticker.C:
			if !inst.logoutDeadline.IsZero() && now.After(inst.logoutDeadline) {
				inst.emitEnded(newEngineError(ErrKindLogoutFailed, "peer did not acknowledge Logout within timeout", nil))
				return
			}
			if inst.session.Phase == PhaseLogonSent && !inst.logonDeadline.IsZero() && now.After(inst.logonDeadline) {
				inst.emitEnded(newEngineError(ErrKindLogonFailed, "no Logon received from peer within timeout", nil))
				return
			}
			if inst.handleTick(now) {
				return
			}
		}

		inst.publishPhase()

		if inst.session.Phase == PhaseEnded {
			inst.emitEnded(nil)
			return
		}
	}
}

func (inst *engineInstance) readFrames(out chan<- []byte, errs chan<- error) {
	for {
		raw, err := ReadFrame(inst.reader)
		if err != nil {
			errs <- newEngineError(ErrKindIoError, "reading frame", err)
			return
		}
		if inst.cfg.WireTap != nil {
			inst.cfg.WireTap(DirectionIn, raw)
		}
		out <- raw
	}
}

// handleFrame 解析并处理一条入站帧，返回 true 表示循环必须立即退出。
func (inst *engineInstance) handleFrame(raw []byte) bool {
	ctx := context.Background()
	msg, err := Parse(raw)
	if err != nil {
		inst.emitEnded(newEngineError(ErrKindIoError, "framing error", err))
		return true
	}

	seqNumStr, _ := msg.GetString(TagMsgSeqNum)
	seqNum, ok := asciiToUint([]byte(seqNumStr))
	if !ok {
		inst.emitEnded(newEngineError(ErrKindIoError, "malformed MsgSeqNum", nil))
		return true
	}

	if err := inst.store.Append(ctx, StoredMessage{
		Direction: DirectionIn, SeqNum: uint64(seqNum), MsgType: msg.MsgType(),
		RawBytes: raw, Timestamp: time.Now(),
	}); err != nil {
		inst.emitEnded(newEngineError(ErrKindIoError, "persisting inbound message", err))
		return true
	}

	outcome := inst.session.HandleInbound(msg, uint64(seqNum), time.Now())
	if inst.applyOutcome(ctx, outcome) {
		return true
	}
	for _, drained := range inst.session.DrainGapBuffer(time.Now()) {
		if inst.applyOutcome(ctx, drained) {
			return true
		}
	}
	return false
}

// applyOutcome 把一次状态机转移的结果落地：持久化并写出 Outbound 报文，
// 把 Deliver 报文投递给应用层，并响应 ResendRequested/Fatal。
func (inst *engineInstance) applyOutcome(ctx context.Context, outcome InboundOutcome) bool {
	for _, b := range outcome.Outbound {
		if err := inst.sendBuilder(ctx, b); err != nil {
			inst.emitEnded(err)
			return true
		}
	}
	if outcome.Deliver != nil {
		inst.deliverToApplication(outcome.Deliver)
	}
	if outcome.ResendRequested != nil {
		if err := inst.replay(ctx, *outcome.ResendRequested); err != nil {
			inst.emitEnded(err)
			return true
		}
	}
	if outcome.Fatal != nil {
		inst.emitEnded(outcome.Fatal)
		return true
	}
	return false
}

// deliverToApplication 把一条 application 消息交给 worker pool 异步投递
// 到 events channel，使慢速应用消费者不会阻塞 socket 读循环。
func (inst *engineInstance) deliverToApplication(msg *Message) {
	handle := inst.handle
	driver := inst.driver
	_ = driver.pool.Submit(func(_ context.Context) {
		driver.events <- Event{Handle: handle, Kind: EventApplicationMessage, Message: msg}
	})
}

func (inst *engineInstance) emitEnded(err error) {
	inst.driver.events <- Event{Handle: inst.handle, Kind: EventSessionEnded, Err: err}
}

// replay 实现 spec §4.5.3 的重发响应：读取请求区间的存档出站消息，按
// planResendReplay 折叠 admin 消息为 gap-fill，application 消息逐条重放
// PossDup=Y 版本。整个区间的重放都发生在事件循环自身的 goroutine 内，
// 天然串行化了并发到达的 ResendRequest（spec §9 Open Question 1 的决议）。
func (inst *engineInstance) replay(ctx context.Context, span ResendSpan) error {
	to := span.To
	if to == 0 {
		to = inst.session.NextOutSeq - 1
	}
	if to < span.From {
		return nil
	}
	stored, err := inst.store.FetchRange(ctx, DirectionOut, span.From, to)
	if err != nil {
		return newEngineError(ErrKindIoError, "fetching resend range from store", err)
	}

	for _, action := range planResendReplay(stored) {
		var raw []byte
		var err error
		now := time.Now()
		if action.isGapFill {
			raw, err = buildGapFill(inst.cfg.BeginString, inst.cfg.SenderCompID, inst.cfg.TargetCompID, action.gapFillFrom, action.newSeqNo, now)
		} else {
			raw, err = transformForResend(inst.cfg.BeginString, inst.cfg.SenderCompID, inst.cfg.TargetCompID, action.message, now)
		}
		if err != nil {
			return newEngineError(ErrKindSendMessageFailed, "building resend message", err)
		}
		if _, err := inst.conn.Write(raw); err != nil {
			return newEngineError(ErrKindIoError, "writing resend message", err)
		}
		if inst.cfg.WireTap != nil {
			inst.cfg.WireTap(DirectionOut, raw)
		}
	}
	return nil
}

// handleSubmit 处理一条应用层提交的出站报文：分配序号、持久化（先于线路
// 写出，spec §4.4 的 durability guarantee）、写出。
func (inst *engineInstance) handleSubmit(b *MessageBuilder) bool {
	ctx := context.Background()
	msgType := b.MsgType()
	if err := inst.sendBuilder(ctx, b); err != nil {
		inst.emitEnded(err)
		return true
	}
	if msgType == MsgTypeLogout && inst.logoutDeadline.IsZero() {
		// spec §8 S6: force-close if the peer never acknowledges our Logout.
		inst.logoutDeadline = time.Now().Add(inst.cfg.logoutTimeout())
	}
	return inst.session.Phase == PhaseEnded
}

func (inst *engineInstance) sendBuilder(ctx context.Context, b *MessageBuilder) error {
	seqNum := inst.session.NextOutgoingSeq()
	now := time.Now()
	raw, err := b.Finalize(inst.cfg.SenderCompID, inst.cfg.TargetCompID, seqNum, now)
	if err != nil {
		return newEngineError(ErrKindSendMessageFailed, "finalizing outbound message", err)
	}
	return inst.writeAndStore(ctx, DirectionOut, raw, b.MsgType())
}

// writeAndStore 持久化后再写线路，顺序严格不可反（spec §4.4）。
func (inst *engineInstance) writeAndStore(ctx context.Context, dir Direction, raw []byte, msgType MsgType) error {
	msg, err := Parse(raw)
	if err != nil {
		return newEngineError(ErrKindSendMessageFailed, "parsing finalized message", err)
	}
	seqStr, _ := msg.GetString(TagMsgSeqNum)
	seqNum, _ := asciiToUint([]byte(seqStr))

	if err := inst.store.Append(ctx, StoredMessage{
		Direction: dir, SeqNum: uint64(seqNum), MsgType: msgType, RawBytes: raw, Timestamp: time.Now(),
	}); err != nil {
		return newEngineError(ErrKindIoError, "persisting outbound message before write", err)
	}
	inst.session.LastSentTime = time.Now()
	if _, err := inst.conn.Write(raw); err != nil {
		return newEngineError(ErrKindIoError, "writing message to socket", err)
	}
	if inst.cfg.WireTap != nil {
		inst.cfg.WireTap(DirectionOut, raw)
	}
	return nil
}

func (inst *engineInstance) handleTick(now time.Time) bool {
	switch inst.timer.Tick(inst.session, now) {
	case TimerActionSendHeartbeat:
		b := inst.timer.BuildHeartbeat(inst.session)
		if err := inst.sendBuilder(context.Background(), b); err != nil {
			inst.emitEnded(err)
			return true
		}
	case TimerActionSendTestRequest:
		b := inst.timer.BuildTestRequest(inst.session)
		if err := inst.sendBuilder(context.Background(), b); err != nil {
			inst.emitEnded(err)
			return true
		}
	case TimerActionDeclareDead:
		inst.emitEnded(newEngineError(ErrKindSessionEnded, "counterparty heartbeat timeout", nil))
		return true
	}
	return false
}
