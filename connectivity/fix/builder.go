package fix

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sendingTimeLayout 是 tag 52/122 使用的 UTC 时间戳格式：YYYYMMDD-HH:MM:SS.sss
const sendingTimeLayout = "20060102-15:04:05.000"

// MessageBuilder 累积一条出站报文 body 部分的 (Tag, value) 对。按 spec §4.3，
// header 的固定字段（BodyLength/MsgSeqNum/SenderCompID/TargetCompID/
// SendingTime）与 trailer（CheckSum）均由 Finalize 自动补齐，调用方不得
// 自行 Push 这些 tag。Builder 被 Finalize 消费一次后不可复用。
type MessageBuilder struct {
	beginString string
	msgType     MsgType
	fields      []fieldPair
	used        bool
}

type fieldPair struct {
	tag   Tag
	value []byte
}

// NewMessageBuilder 以给定 BeginString 与 MsgType 创建一个空 Builder。
func NewMessageBuilder(beginString string, msgType MsgType) *MessageBuilder {
	return &MessageBuilder{
		beginString: beginString,
		msgType:     msgType,
		fields:      make([]fieldPair, 0, 8),
	}
}

// MsgType 返回该 Builder 的消息类型。
func (b *MessageBuilder) MsgType() MsgType { return b.msgType }

// PushStr 添加一个字符串字段。value 中不得包含 SOH，否则返回错误（spec
// §4.3 的约束：builder 拒绝含 SOH 的输入）。
func (b *MessageBuilder) PushStr(tag Tag, value string) error {
	return b.PushBytes(tag, []byte(value))
}

// PushBytes 添加一个原始字节字段（用于 DATA 类型）。
func (b *MessageBuilder) PushBytes(tag Tag, value []byte) error {
	for _, c := range value {
		if c == SOH {
			return newEngineError(ErrKindBadString, fmt.Sprintf("tag %d value contains SOH", tag), nil)
		}
	}
	b.fields = append(b.fields, fieldPair{tag: tag, value: value})
	return nil
}

// PushData 添加一个 DATA 类型字段的原始字节，允许内部出现 SOH——读取方按
// 配对的 Length 字段定长读取，而不是按 SOH 切分（spec §3 DATA 字段定义）。
// 调用方必须已经 Push 过该字段配对的 Length tag。
func (b *MessageBuilder) PushData(tag Tag, value []byte) error {
	b.fields = append(b.fields, fieldPair{tag: tag, value: value})
	return nil
}

// PushInt 添加一个十进制整型字段。
func (b *MessageBuilder) PushInt(tag Tag, v int64) error {
	return b.PushBytes(tag, []byte(strconv.FormatInt(v, 10)))
}

// PushField 添加一个枚举型字段的 wire 值（已是 ASCII 表示）。
func (b *MessageBuilder) PushField(tag Tag, enumWireValue string) error {
	return b.PushStr(tag, enumWireValue)
}

// PushCurrentTime 以 UTC YYYYMMDD-HH:MM:SS.sss 格式写入 now。
func (b *MessageBuilder) PushCurrentTime(tag Tag, now time.Time) error {
	return b.PushStr(tag, now.UTC().Format(sendingTimeLayout))
}

// Finalize 消费该 Builder，产出带正确 header 顺序、BodyLength 与 CheckSum
// 的完整报文字节。使用过的 Builder 禁止再次 Finalize。
func (b *MessageBuilder) Finalize(sender, target string, seqNum uint64, sendingTime time.Time) ([]byte, error) {
	if b.used {
		return nil, newEngineError(ErrKindUnknown, "message builder used twice", nil)
	}
	b.used = true

	// body = MsgType 之后的所有字段：SenderCompID, TargetCompID, MsgSeqNum,
	// SendingTime（固定头部其余部分，spec §3 顺序），接着调用方 push 的业务字段。
	var buf strings.Builder
	writeField(&buf, TagSenderCompID, []byte(sender))
	writeField(&buf, TagTargetCompID, []byte(target))
	writeField(&buf, TagMsgSeqNum, []byte(strconv.FormatUint(seqNum, 10)))
	writeField(&buf, TagSendingTime, []byte(sendingTime.UTC().Format(sendingTimeLayout)))
	for _, f := range b.fields {
		writeField(&buf, f.tag, f.value)
	}

	msgTypeField := fmt.Sprintf("%d=%s\x01", TagMsgType, string(b.msgType))
	bodyStr := msgTypeField + buf.String()
	bodyLen := len(bodyStr)

	var out strings.Builder
	out.WriteString(fmt.Sprintf("%d=%s\x01", TagBeginString, b.beginString))
	out.WriteString(fmt.Sprintf("%d=%d\x01", TagBodyLength, bodyLen))
	out.WriteString(bodyStr)

	raw := []byte(out.String())
	checksum := Checksum(raw)
	raw = append(raw, []byte(fmt.Sprintf("%d=%03d\x01", TagCheckSum, checksum))...)
	return raw, nil
}

func writeField(buf *strings.Builder, tag Tag, value []byte) {
	buf.WriteString(strconv.FormatUint(uint64(tag), 10))
	buf.WriteByte('=')
	buf.Write(value)
	buf.WriteByte(SOH)
}
