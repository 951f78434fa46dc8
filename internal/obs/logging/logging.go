// Package logging 为 FIX 会话引擎封装结构化日志（slog），沿用
// logging.Logger 的 lumberjack 文件切割；不做追踪上下文注入（spec §11
// ambient stack）。
package logging

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	obsconfig "github.com/wyfcoding/pkg/internal/obs/config"
)

// Logger 封装 *slog.Logger，固定附带会话的 SenderCompID/TargetCompID 字段。
type Logger struct {
	*slog.Logger
}

// New 依据 LogConfig 构造一个按会话 SenderCompID/TargetCompID 打标的日志器。
func New(cfg obsconfig.LogConfig, senderCompID, targetCompID string) *Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.File != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler).With(
		slog.String("sender_comp_id", senderCompID),
		slog.String("target_comp_id", targetCompID),
	)

	return &Logger{Logger: logger}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WireFrame 记录一帧 FIX 报文的方向、MsgSeqNum 与 MsgType，供连线排障使用；
// 不记录报文的原始内容。
func (l *Logger) WireFrame(ctx context.Context, direction string, seqNum uint64, msgType string) {
	l.InfoContext(ctx, "wire frame", "direction", direction, "seq_num", seqNum, "msg_type", msgType)
}

// SessionTransition 记录会话阶段迁移。
func (l *Logger) SessionTransition(ctx context.Context, from, to string) {
	l.InfoContext(ctx, "session phase transition", "from", from, "to", to)
}
