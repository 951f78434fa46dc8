// Package wirelog 提供每会话的原始报文审计日志：每个 SenderCompID-
// TargetCompID 配对一个独立文件，记录收发的字面字节，附带微秒级时间戳
// 前缀。与 Store 的结构化重发记录互相独立（spec §10.1 supplemented feature）。
package wirelog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Direction 标记一条原始帧的收发方向。
type Direction byte

const (
	DirectionIn  Direction = '<'
	DirectionOut Direction = '>'
)

// Log 是单个会话的原始字节审计日志，对并发写入安全。
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Open 打开（或创建）`dir/SenderCompID-TargetCompID.wire.log`，以追加模式
// 写入。dir 为空时返回一个丢弃所有写入的空操作日志。
func Open(dir, senderCompID, targetCompID string) (*Log, error) {
	if dir == "" {
		return &Log{}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wire log dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.wire.log", senderCompID, targetCompID)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wire log: %w", err)
	}

	return &Log{file: f, w: bufio.NewWriter(f)}, nil
}

// Record 追加一帧原始字节，前缀为微秒级时间戳与方向标记。SOH (0x01)
// 分隔符原样保留，不做任何转义——这是字面线路记录，不是人类可读格式。
func (l *Log) Record(dir Direction, raw []byte) error {
	if l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := fmt.Sprintf("%s %c ", time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"), dir)
	if _, err := l.w.WriteString(prefix); err != nil {
		return err
	}
	if _, err := l.w.Write(raw); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying file. nil 底层文件是空操作.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
