package fix

import (
	"bufio"
	"fmt"
	"io"
)

// headerPrefix 返回每条报文固定的起始字段 8=<BeginString>|，不含 9= 部分。
func headerPrefix(beginString string) string {
	return fmt.Sprintf("8=%s\x01", beginString)
}

// ReadFrame 从 r 中读取一条完整的 FIX 帧（含 header/body/trailer），返回
// 原始字节切片：
//  1. 读 8=<BeginString>| 与 9=<BodyLength>|
//  2. 按 BodyLength 一次性读出 body
//  3. 读 10=<3位>| trailer
//
// CheckSum 校验与按 tag 访问的 Message 由调用方通过 Parse 完成。body 按
// 长度整块读取，其中的 SOH（包括 DATA 字段内的）不做逐字节解释。
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	prefix, err := readUntilSOH(r)
	if err != nil {
		return nil, err
	}
	if len(prefix) < 3 || prefix[0] != '8' || prefix[1] != '=' {
		return nil, badFormat("message does not start with BeginString(8)")
	}

	bodyLenField, err := readUntilSOH(r)
	if err != nil {
		return nil, err
	}
	if len(bodyLenField) < 3 || bodyLenField[0] != '9' || bodyLenField[1] != '=' {
		return nil, &FramingError{Kind: FramingBadBodyLength, Msg: "missing BodyLength(9) as second field"}
	}
	bodyLen, ok := asciiToUint(bodyLenField[2:])
	if !ok {
		return nil, &FramingError{Kind: FramingBadBodyLength, Msg: "BodyLength is not numeric"}
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("fix: reading body: %w", err)
	}

	trailer, err := readUntilSOH(r)
	if err != nil {
		return nil, err
	}
	if len(trailer) < 7 || trailer[0] != '1' || trailer[1] != '0' || trailer[2] != '=' {
		return nil, &FramingError{Kind: FramingBadFormat, Msg: "missing CheckSum(10) trailer"}
	}

	total := make([]byte, 0, len(prefix)+1+len(bodyLenField)+1+len(body)+len(trailer)+1)
	total = append(total, prefix...)
	total = append(total, SOH)
	total = append(total, bodyLenField...)
	total = append(total, SOH)
	total = append(total, body...)
	total = append(total, trailer...)
	total = append(total, SOH)
	return total, nil
}

// readUntilSOH 读取到下一个 SOH 为止（不含 SOH），用于扫描定长字段以外的
// tag=value 对。
func readUntilSOH(r *bufio.Reader) ([]byte, error) {
	field, err := r.ReadBytes(SOH)
	if err != nil {
		return nil, fmt.Errorf("fix: reading field: %w", err)
	}
	return field[:len(field)-1], nil
}

func asciiToUint(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Checksum 计算 sum(bytes) mod 256，与 spec §3 定义一致：trailer 之前所有
// 字节（含 CheckSum 前的 SOH）之和对 256 取模。
func Checksum(upToTrailer []byte) int {
	sum := 0
	for _, b := range upToTrailer {
		sum += int(b)
	}
	return sum % 256
}

// Parse 解析一条完整原始报文为 Message，校验 CheckSum、BodyLength，并在
// 扫描体部字段时处理 DATA<->Length 配对（先读 Length，再把紧随的 DATA
// 字段作为定长原始字节读取，忽略内部 SOH）。
func Parse(raw []byte) (*Message, error) {
	trailerIdx := len(raw) - 8 // "10=NNN\x01" 是 7 字节 + 前一个 SOH
	if trailerIdx < 0 {
		return nil, badFormat("message too short")
	}
	sumUpToTrailer := Checksum(raw[:trailerIdx+1])

	msg := newMessage(raw, 16)
	i := 0
	n := len(raw)
	pendingDataLen := map[Tag]int{}

	for i < n {
		eq := indexByte(raw, i, '=')
		if eq < 0 {
			return nil, badFormat("missing '=' after tag at offset %d", i)
		}
		tag, ok := asciiToUint(raw[i:eq])
		if !ok {
			return nil, badFormat("non-numeric tag at offset %d", i)
		}
		valueStart := eq + 1

		if wantLen, isData := pendingDataLen[Tag(tag)]; isData {
			valueEnd := valueStart + wantLen
			if valueEnd > n || raw[valueEnd] != SOH {
				return nil, badFormat("DATA field %d length mismatch", tag)
			}
			msg.set(Tag(tag), raw[valueStart:valueEnd])
			i = valueEnd + 1
			delete(pendingDataLen, Tag(tag))
			continue
		}

		sohIdx := indexByte(raw, valueStart, SOH)
		if sohIdx < 0 {
			return nil, badFormat("missing SOH terminating tag %d", tag)
		}
		value := raw[valueStart:sohIdx]
		msg.set(Tag(tag), value)

		if dataTag, isLenField := dataLenTag[Tag(tag)]; isLenField {
			length, ok := asciiToUint(value)
			if !ok {
				return nil, badFormat("Length field %d is not numeric", tag)
			}
			pendingDataLen[dataTag] = length
		}

		i = sohIdx + 1
	}

	bodyLenField, ok := msg.Get(TagBodyLength)
	if !ok {
		return nil, &FramingError{Kind: FramingBadBodyLength, Msg: "BodyLength(9) missing"}
	}
	declaredBodyLen, ok := asciiToUint(bodyLenField)
	if !ok {
		return nil, &FramingError{Kind: FramingBadBodyLength, Msg: "BodyLength(9) not numeric"}
	}
	measured := measuredBodyLength(raw)
	if declaredBodyLen != measured {
		return nil, &FramingError{Kind: FramingBadBodyLength, Msg: fmt.Sprintf("declared %d, measured %d", declaredBodyLen, measured)}
	}

	checkSumField, ok := msg.GetString(TagCheckSum)
	if !ok {
		return nil, &FramingError{Kind: FramingBadChecksum, Msg: "CheckSum(10) missing"}
	}
	declaredChecksum, ok := asciiToUint(bodyTrimChecksum(checkSumField))
	if !ok || len(checkSumField) != 3 {
		return nil, &FramingError{Kind: FramingBadChecksum, Msg: "CheckSum(10) not 3 digits"}
	}
	if declaredChecksum != sumUpToTrailer {
		return nil, &FramingError{Kind: FramingBadChecksum, Msg: fmt.Sprintf("declared %d, computed %d", declaredChecksum, sumUpToTrailer)}
	}

	return msg, nil
}

func bodyTrimChecksum(s string) []byte { return []byte(s) }

// measuredBodyLength 计算 BodyLength 值之后的 SOH 到 CheckSum 前的 SOH 之间
// 的字节数，即 spec §3 对 BodyLength 的定义。
func measuredBodyLength(raw []byte) int {
	// 跳过 "8=<BeginString>|9=<BodyLength>|" 前缀
	firstSOH := indexByte(raw, 0, SOH)
	secondSOH := indexByte(raw, firstSOH+1, SOH)
	bodyStart := secondSOH + 1
	// trailer 是末尾 "10=NNN|"，即 7 字节
	bodyEnd := len(raw) - 7
	if bodyStart > bodyEnd {
		return -1
	}
	return bodyEnd - bodyStart
}

func indexByte(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}
