package fix

// dictionary.go 是 FIX 4.2 的只读字段字典，表项在本文件中手写维护；模块内
// 没有 schema 文件，也没有生成这张表的生成器。进程生命周期内只读、可并发共享。

// Tag 是 FIX 字段编号。
type Tag uint32

// 字典中登记的头部/尾部固定字段及会话层消息用到的字段 Tag。
const (
	TagBeginString         Tag = 8
	TagBodyLength          Tag = 9
	TagCheckSum            Tag = 10
	TagMsgSeqNum           Tag = 34
	TagMsgType             Tag = 35
	TagSenderCompID        Tag = 49
	TagSendingTime         Tag = 52
	TagTargetCompID        Tag = 56
	TagPossDupFlag         Tag = 43
	TagOrigSendingTime     Tag = 122
	TagEncryptMethod       Tag = 98
	TagHeartBtInt          Tag = 108
	TagTestReqID           Tag = 112
	TagResetSeqNumFlag     Tag = 141
	TagBeginSeqNo          Tag = 7
	TagEndSeqNo            Tag = 16
	TagNewSeqNo            Tag = 36
	TagGapFillFlag         Tag = 123
	TagText                Tag = 58
	TagRefSeqNum           Tag = 45
	TagRefTagID            Tag = 371
	TagRefMsgType          Tag = 372
	TagSessionRejectReason Tag = 373
)

// MsgType 是 MsgType(35) 的取值，一到两个 ASCII 字符。
type MsgType string

const (
	MsgTypeHeartbeat      MsgType = "0"
	MsgTypeTestRequest    MsgType = "1"
	MsgTypeResendRequest  MsgType = "2"
	MsgTypeReject         MsgType = "3"
	MsgTypeSequenceReset  MsgType = "4"
	MsgTypeLogout         MsgType = "5"
	MsgTypeLogon          MsgType = "A"
	MsgTypeNewOrderSingle MsgType = "D"
	MsgTypeExecutionRpt   MsgType = "8"
	MsgTypeOrderCancelReq MsgType = "F"
)

// adminMsgTypes 列出所有会话层消息类型；其余一律归类为 application。
var adminMsgTypes = map[MsgType]struct{}{
	MsgTypeHeartbeat:     {},
	MsgTypeTestRequest:   {},
	MsgTypeResendRequest: {},
	MsgTypeReject:        {},
	MsgTypeSequenceReset: {},
	MsgTypeLogout:        {},
	MsgTypeLogon:         {},
}

// IsAdmin 判断 msg_type 是否为会话层（admin）消息。
func IsAdmin(mt MsgType) bool {
	_, ok := adminMsgTypes[mt]
	return ok
}

// FieldType 枚举字典登记的字段数据类型。
type FieldType int

const (
	TypeString FieldType = iota
	TypeChar
	TypeInt
	TypePrice
	TypeQty
	TypeData
	TypeUTCTimestamp
	TypeBoolean
)

type fieldDef struct {
	Name   string
	Type   FieldType
	LenTag Tag // 仅 DATA 类型字段非零：对应 Length 字段的 Tag
}

// fieldTable 是 tag -> 定义 的只读表，按 FIX 4.2 schema 生成。
var fieldTable = map[Tag]fieldDef{
	TagBeginString:         {"BeginString", TypeString, 0},
	TagBodyLength:          {"BodyLength", TypeInt, 0},
	TagCheckSum:            {"CheckSum", TypeString, 0},
	TagMsgSeqNum:           {"MsgSeqNum", TypeInt, 0},
	TagMsgType:             {"MsgType", TypeString, 0},
	TagSenderCompID:        {"SenderCompID", TypeString, 0},
	TagSendingTime:         {"SendingTime", TypeUTCTimestamp, 0},
	TagTargetCompID:        {"TargetCompID", TypeString, 0},
	TagPossDupFlag:         {"PossDupFlag", TypeBoolean, 0},
	TagOrigSendingTime:     {"OrigSendingTime", TypeUTCTimestamp, 0},
	TagEncryptMethod:       {"EncryptMethod", TypeInt, 0},
	TagHeartBtInt:          {"HeartBtInt", TypeInt, 0},
	TagTestReqID:           {"TestReqID", TypeString, 0},
	TagResetSeqNumFlag:     {"ResetSeqNumFlag", TypeBoolean, 0},
	TagBeginSeqNo:          {"BeginSeqNo", TypeInt, 0},
	TagEndSeqNo:            {"EndSeqNo", TypeInt, 0},
	TagNewSeqNo:            {"NewSeqNo", TypeInt, 0},
	TagGapFillFlag:         {"GapFillFlag", TypeBoolean, 0},
	TagText:                {"Text", TypeString, 0},
	TagRefSeqNum:           {"RefSeqNum", TypeInt, 0},
	TagRefTagID:            {"RefTagID", TypeInt, 0},
	TagRefMsgType:          {"RefMsgType", TypeString, 0},
	TagSessionRejectReason: {"SessionRejectReason", TypeInt, 0},

	// 118=RawData 配合 95=RawDataLength 演示 DATA<->Length 配对；
	// 这是生成器为每个 DATA 字段都会登记的条目形状。
	118: {"RawData", TypeData, 95},
	95:  {"RawDataLength", TypeInt, 0},
	91:  {"SecureData", TypeData, 90},
	90:  {"SecureDataLen", TypeInt, 0},
}

var nameToTag = func() map[string]Tag {
	m := make(map[string]Tag, len(fieldTable))
	for tag, def := range fieldTable {
		m[def.Name] = tag
	}
	return m
}()

// dataLenTag 反向索引：某个 Length 字段是哪个 DATA 字段的长度伴随项。
var dataLenTag = func() map[Tag]Tag {
	m := make(map[Tag]Tag)
	for tag, def := range fieldTable {
		if def.Type == TypeData && def.LenTag != 0 {
			m[def.LenTag] = tag
		}
	}
	return m
}()

// TagOf 返回符号名对应的 Tag。
func TagOf(name string) (Tag, bool) {
	t, ok := nameToTag[name]
	return t, ok
}

// NameOf 返回 Tag 对应的符号名。
func NameOf(tag Tag) (string, bool) {
	def, ok := fieldTable[tag]
	if !ok {
		return "", false
	}
	return def.Name, true
}

// TypeOf 返回 Tag 登记的数据类型。
func TypeOf(tag Tag) (FieldType, bool) {
	def, ok := fieldTable[tag]
	if !ok {
		return 0, false
	}
	return def.Type, true
}

// DataTagForLength 返回某个 Length 字段配对的 DATA 字段 Tag（若存在）。
// 解析器用它在遇到 Length 字段后，把紧随的 DATA 值作为定长原始字节读取，
// 不按 SOH 切分。
func DataTagForLength(lenTag Tag) (Tag, bool) {
	t, ok := dataLenTag[lenTag]
	return t, ok
}

// SessionRejectReason 是 Reject(3) 消息 tag 373 的枚举值，取自 FIX 4.2 schema。
type SessionRejectReason int

const (
	RejectInvalidTagNumber          SessionRejectReason = 0
	RejectRequiredTagMissing        SessionRejectReason = 1
	RejectTagNotDefinedForMsgType   SessionRejectReason = 2
	RejectUndefinedTag              SessionRejectReason = 3
	RejectTagSpecifiedWithoutValue  SessionRejectReason = 4
	RejectValueIncorrect            SessionRejectReason = 5
	RejectIncorrectDataFormat       SessionRejectReason = 6
	RejectDecryptionProblem         SessionRejectReason = 7
	RejectSignatureProblem          SessionRejectReason = 8
	RejectCompIDProblem             SessionRejectReason = 9
	RejectSendingTimeAccuracy       SessionRejectReason = 10
	RejectInvalidMsgType            SessionRejectReason = 11
	RejectXMLValidationError        SessionRejectReason = 12
	RejectDuplicateTag              SessionRejectReason = 13
	RejectTagOutOfOrder             SessionRejectReason = 14
	RejectRepeatingGroupFieldsOutOf SessionRejectReason = 15
	RejectIncorrectNumInGroup       SessionRejectReason = 16
	RejectNonDataValueIncludesSOH   SessionRejectReason = 17
	RejectOther                     SessionRejectReason = 99
)
