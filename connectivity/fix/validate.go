package fix

import (
	"time"
)

// sendingTimeWindow 是 inbound SendingTime(52) 相对本地 UTC 时钟允许的最大
// 偏差，取自 original_source/forgefix/src/fix/validate.rs 的 10 秒窗口
// （spec §10 第 3 条 Supplemented Features）。
const sendingTimeWindow = 10 * time.Second

// validateInbound 执行 session-level 的字段校验：MsgType 基本形状、
// CompID 配对、SendingTime 存在且在窗口内、PossDupFlag/OrigSendingTime
// 配对。返回非 nil 的 *SessionRejectError 时，调用方据其 Fatal 字段决定
// 是发 Reject 继续还是发 Logout 终止会话（spec §10 第 4、5 条）。
func validateInbound(msg *Message, cfg Settings, seqNum uint64, now time.Time) *SessionRejectError {
	msgType := msg.MsgType()
	if len(msgType) == 0 || len(msgType) > 2 {
		return &SessionRejectError{
			Reason: RejectInvalidMsgType, RefSeqNum: seqNum, RefTagID: TagMsgType,
			Text: "invalid MsgType", Fatal: false,
		}
	}

	if sender, ok := msg.GetString(TagSenderCompID); !ok || sender != cfg.TargetCompID {
		return &SessionRejectError{
			Reason: RejectCompIDProblem, RefSeqNum: seqNum, RefTagID: TagSenderCompID,
			RefMsgType: msgType, Text: "SenderCompID mismatch", Fatal: true,
		}
	}
	if target, ok := msg.GetString(TagTargetCompID); !ok || target != cfg.SenderCompID {
		return &SessionRejectError{
			Reason: RejectCompIDProblem, RefSeqNum: seqNum, RefTagID: TagTargetCompID,
			RefMsgType: msgType, Text: "TargetCompID mismatch", Fatal: true,
		}
	}

	sendingTimeStr, ok := msg.GetString(TagSendingTime)
	if !ok {
		return &SessionRejectError{
			Reason: RejectRequiredTagMissing, RefSeqNum: seqNum, RefTagID: TagSendingTime,
			RefMsgType: msgType, Text: "SendingTime missing", Fatal: false,
		}
	}
	sendingTime, err := parseSendingTime(sendingTimeStr)
	if err != nil {
		return &SessionRejectError{
			Reason: RejectIncorrectDataFormat, RefSeqNum: seqNum, RefTagID: TagSendingTime,
			RefMsgType: msgType, Text: "SendingTime unparseable", Fatal: false,
		}
	}
	if !withinWindow(sendingTime, now, sendingTimeWindow) {
		return &SessionRejectError{
			Reason: RejectSendingTimeAccuracy, RefSeqNum: seqNum, RefTagID: TagSendingTime,
			RefMsgType: msgType, Text: "SendingTime outside accuracy window", Fatal: true,
		}
	}

	if possDup, _ := msg.GetString(TagPossDupFlag); possDup == "Y" {
		orig, hasOrig := msg.GetString(TagOrigSendingTime)
		if !hasOrig {
			return &SessionRejectError{
				Reason: RejectRequiredTagMissing, RefSeqNum: seqNum, RefTagID: TagOrigSendingTime,
				RefMsgType: msgType, Text: "PossDupFlag=Y without OrigSendingTime", Fatal: false,
			}
		}
		origTime, err := parseSendingTime(orig)
		if err != nil {
			return &SessionRejectError{
				Reason: RejectIncorrectDataFormat, RefSeqNum: seqNum, RefTagID: TagOrigSendingTime,
				RefMsgType: msgType, Text: "OrigSendingTime unparseable", Fatal: false,
			}
		}
		if origTime.After(sendingTime) {
			return &SessionRejectError{
				Reason: RejectSendingTimeAccuracy, RefSeqNum: seqNum,
				RefMsgType: msgType, Text: "OrigSendingTime after SendingTime", Fatal: false,
			}
		}
	}

	return nil
}

func withinWindow(t, now time.Time, window time.Duration) bool {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	return diff < window
}

// parseSendingTime parses either the millisecond-precision or second-precision
// UTC timestamp layouts FIX 4.2 allows for tag 52/122.
func parseSendingTime(s string) (time.Time, error) {
	if t, err := time.Parse(sendingTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse("20060102-15:04:05", s)
}
