// Package health 提供 FIX 会话引擎的健康检查探针，形状沿用
// health.Checker 的函数式风格（spec §11 ambient stack）。
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wyfcoding/pkg/connectivity/fix"
)

// Checker 是单个健康检查函数，返回 nil 即健康。
type Checker func() error

// StoreChecker 返回检查 Store 后端可达性的探针。
func StoreChecker(store fix.Store) Checker {
	return func() error {
		if store == nil {
			return errors.New("store is nil")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		// HighestSeq 对两个方向都是只读操作，足以探测存储是否可用，
		// 不需要额外的写路径健康检查。
		if _, err := store.HighestSeq(ctx, fix.DirectionOut); err != nil {
			return err
		}
		if _, err := store.HighestSeq(ctx, fix.DirectionIn); err != nil {
			return err
		}
		return nil
	}
}

// SessionChecker 返回检查引擎句柄是否仍处于已登录阶段的探针。
func SessionChecker(driver *fix.Driver, handle fix.Handle) Checker {
	return func() error {
		p, ok := driver.Phase(handle)
		if !ok {
			return errors.New("session handle not found")
		}
		if p != fix.PhaseLoggedOn && p != fix.PhaseExpectingResend {
			return errors.New("session is not logged on: " + p.String())
		}
		return nil
	}
}

// Handler 聚合所有探针为一个单一的 HTTP 处理器（不区分请求路径），任意
// 探针失败即返回 503。
func Handler(checkers ...Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checkers {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
