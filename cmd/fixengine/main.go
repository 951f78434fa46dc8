// Command fixengine 启动一个 FIX 4.2 买方会话引擎进程：加载配置、打开
// Store、拨号建立会话，并把投递到应用层的消息与会话生命周期事件记录到
// 日志、指标与（可选的）Kafka 旁路通知（spec §11/§12 ambient + domain stack）。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wyfcoding/pkg/connectivity/fix"
	obsconfig "github.com/wyfcoding/pkg/internal/obs/config"
	obshealth "github.com/wyfcoding/pkg/internal/obs/health"
	obslogging "github.com/wyfcoding/pkg/internal/obs/logging"
	obsmessaging "github.com/wyfcoding/pkg/internal/obs/messaging"
	obsmetrics "github.com/wyfcoding/pkg/internal/obs/metrics"
	obstracing "github.com/wyfcoding/pkg/internal/obs/tracing"
	"github.com/wyfcoding/pkg/internal/obs/wirelog"
)

func main() {
	path := obsconfig.ParseFlags("./configs/fixengine/config.toml")

	cfg, err := obsconfig.Load(path)
	if err != nil {
		panic(err)
	}

	log := obslogging.New(cfg.Log, cfg.Session.SenderCompID, cfg.Session.TargetCompID)
	log.Info("fix engine starting", "service", cfg.Service, "socket_addr", cfg.Session.SocketAddr)

	shutdownTracing, err := obstracing.Init(cfg.Tracing)
	if err != nil {
		log.Error("tracing init failed, continuing without tracing", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	metrics := obsmetrics.New(cfg.Service)
	var stopMetricsServer func()
	if cfg.Metrics.Enabled && cfg.Metrics.Port != "" {
		stopMetricsServer = metrics.ExposeHTTP(cfg.Metrics.Port)
	}

	store, err := openStore(cfg.Store, cfg.Session)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	publisher := obsmessaging.NewPublisher(cfg.Kafka)

	wireLog, err := wirelog.Open(cfg.Session.LogDir, cfg.Session.SenderCompID, cfg.Session.TargetCompID)
	if err != nil {
		log.Error("failed to open wire log", "error", err)
		os.Exit(1)
	}
	defer wireLog.Close()
	cfg.Session.WireTap = func(dir fix.Direction, raw []byte) {
		wireDir := wirelog.DirectionIn
		if dir == fix.DirectionOut {
			wireDir = wirelog.DirectionOut
		}
		if err := wireLog.Record(wireDir, raw); err != nil {
			log.Error("wire log write failed", "error", err)
		}
	}

	driver, err := fix.NewDriver()
	if err != nil {
		log.Error("failed to construct driver", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := driver.Start(ctx, cfg.Session, store)
	if err != nil {
		log.Error("logon failed", "error", err)
		os.Exit(1)
	}
	log.Info("session started", "handle", handle)

	var healthServer *http.Server
	if cfg.HealthPort != "" {
		healthServer = &http.Server{
			Addr: ":" + cfg.HealthPort,
			Handler: obshealth.Handler(
				obshealth.StoreChecker(store),
				obshealth.SessionChecker(driver, handle),
			),
		}
		go func() {
			if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("health server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	eventsDone := make(chan struct{})
	go pumpEvents(ctx, driver, log, metrics, publisher, eventsDone)

	<-sigCh
	log.Info("shutdown signal received, requesting logout")

	if err := driver.End(handle); err != nil {
		log.Error("logout request failed", "error", err)
	}

	select {
	case <-eventsDone:
	case <-time.After(15 * time.Second):
		log.Warn("timed out waiting for session to end gracefully")
	}

	cancel()
	_ = publisher.Close()
	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if stopMetricsServer != nil {
		stopMetricsServer()
	}
	_ = shutdownTracing(context.Background())
	log.Info("fix engine stopped")
}

func pumpEvents(
	ctx context.Context,
	driver *fix.Driver,
	log *obslogging.Logger,
	metrics *obsmetrics.Metrics,
	publisher *obsmessaging.Publisher,
	done chan<- struct{},
) {
	defer close(done)

	for {
		evt, err := driver.PollEvent(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("poll event failed", "error", err)
			return
		}

		switch evt.Kind {
		case fix.EventApplicationMessage:
			msgType := evt.Message.MsgType()
			metrics.MessagesReceivedTotal.WithLabelValues(string(msgType)).Inc()
			log.WireFrame(ctx, "in", seqNumOf(evt.Message), string(msgType))
			_ = publisher.Publish(ctx, obsmessaging.SessionEvent{
				Kind:   "message_delivered",
				Detail: string(msgType),
				At:     time.Now(),
			})

		case fix.EventSessionEnded:
			log.Info("session ended", "error", evt.Err)
			_ = publisher.Publish(ctx, obsmessaging.SessionEvent{
				Kind:   "session_ended",
				Detail: errString(evt.Err),
				At:     time.Now(),
			})
			return
		}
	}
}

func seqNumOf(msg *fix.Message) uint64 {
	s, ok := msg.GetString(fix.TagMsgSeqNum)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func openStore(cfg obsconfig.StoreConfig, session fix.Settings) (fix.Store, error) {
	switch cfg.Kind {
	case "sql":
		return fix.NewSQLStore(cfg.DSN, session.Epoch)
	default:
		return fix.NewBadgerStore(session.StorePath, session.Epoch)
	}
}
