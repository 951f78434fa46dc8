package fix

import (
	"fmt"
	"time"
)

// transformForResend 重建一条出站存档报文用于重发：PossDupFlag(43)=Y 被
// 插入，OrigSendingTime(122) 被设为原始 SendingTime，SendingTime(52) 与
// CheckSum(10) 被重新计算，MsgSeqNum(34) 保持不变。该函数对应原始实现
// resend.rs 中 Transformer 的职责，但我们没有按字节原地改写（Go 没有
// Cursor-over-Vec 的零拷贝写法的同等惯用写法），而是重新 Parse 原始报文并
// 用 MessageBuilder 以 teacher 的 builder 风格重新 Finalize。重发的字节不
// 会被再次写入 Store（spec §4.5.3）。
func transformForResend(beginString, sender, target string, stored StoredMessage, now time.Time) ([]byte, error) {
	msg, err := Parse(stored.RawBytes)
	if err != nil {
		return nil, fmt.Errorf("fix: parsing stored message for resend: %w", err)
	}
	origSendingTime, ok := msg.GetString(TagSendingTime)
	if !ok {
		return nil, fmt.Errorf("fix: stored message %d missing SendingTime", stored.SeqNum)
	}

	b := NewMessageBuilder(beginString, msg.MsgType())
	skip := map[Tag]bool{
		TagBeginString: true, TagBodyLength: true, TagMsgType: true,
		TagMsgSeqNum: true, TagSenderCompID: true, TagTargetCompID: true,
		TagSendingTime: true, TagCheckSum: true, TagPossDupFlag: true,
		TagOrigSendingTime: true,
	}
	for _, tag := range msg.Tags() {
		if skip[tag] {
			continue
		}
		v, _ := msg.Get(tag)
		if err := b.PushBytes(tag, v); err != nil {
			return nil, err
		}
	}
	if err := b.PushField(TagPossDupFlag, "Y"); err != nil {
		return nil, err
	}
	if err := b.PushStr(TagOrigSendingTime, origSendingTime); err != nil {
		return nil, err
	}
	return b.Finalize(sender, target, stored.SeqNum, now)
}

// buildGapFill 构造一个 SequenceReset(35=4) GapFillFlag=Y 报文，用于把一段
// 被请求重发、但本身是 admin 消息（或之前已被 gap-fill 过）的区间折叠为
// 单条报文，而不是逐条重放（spec §4.5.3 的 coalesce 规则）。newSeqNo 是折
// 叠区间之后、下一条需要真实重放的 application 消息的序号。
func buildGapFill(beginString, sender, target string, gapFillFromSeq, newSeqNo uint64, now time.Time) ([]byte, error) {
	b := NewMessageBuilder(beginString, MsgTypeSequenceReset)
	if err := b.PushField(TagGapFillFlag, "Y"); err != nil {
		return nil, err
	}
	if err := b.PushInt(TagNewSeqNo, int64(newSeqNo)); err != nil {
		return nil, err
	}
	if err := b.PushField(TagPossDupFlag, "Y"); err != nil {
		return nil, err
	}
	return b.Finalize(sender, target, gapFillFromSeq, now)
}

// planResendReplay 把 [begin, end] 区间的出站存档消息折算为一组重发动作：
// 连续的 admin 消息（含先前的 gap-fill）被合并为一条 SequenceReset
// GapFill=Y；application 消息被逐条重放，保持原 MsgSeqNum。
func planResendReplay(stored []StoredMessage) []resendAction {
	var actions []resendAction
	var gapFillStart uint64
	inGap := false

	flushGap := func(nextRealSeq uint64) {
		if inGap {
			actions = append(actions, resendAction{isGapFill: true, gapFillFrom: gapFillStart, newSeqNo: nextRealSeq})
			inGap = false
		}
	}

	for _, rec := range stored {
		if IsAdmin(rec.MsgType) {
			if !inGap {
				inGap = true
				gapFillStart = rec.SeqNum
			}
			continue
		}
		flushGap(rec.SeqNum)
		actions = append(actions, resendAction{isGapFill: false, message: rec})
	}
	if inGap {
		// 末尾是一串 admin 消息：NewSeqNo 是最后一条之后的序号。
		last := stored[len(stored)-1]
		flushGap(last.SeqNum + 1)
	}
	return actions
}

type resendAction struct {
	isGapFill   bool
	gapFillFrom uint64
	newSeqNo    uint64
	message     StoredMessage
}
