// Package breaker 提供了高级熔断器实现。
// 增强：实现了两级熔断策略，fn 嵌套经过快、慢两个阈值不同的熔断器，所有错误都计入两者，不区分错误类型。
package breaker

import (
	"context"

	"github.com/wyfcoding/pkg/config"
)

// MultiLevelBreaker 组合了多个熔断器以实现细粒度的熔断控制。
type MultiLevelBreaker struct {
	fastBreaker *Breaker // 对超时等基础设施错误高度敏感
	slowBreaker *Breaker // 对业务逻辑错误相对迟钝
}

// NewMultiLevelBreaker 创建一个多级熔断器。
func NewMultiLevelBreaker(name string) *MultiLevelBreaker {
	// 快速熔断：5次请求中 20% 失败即熔断（适用于基础设施故障）
	fast := NewBreaker(Settings{
		Name:         name + "_fast",
		FailureRatio: 0.2,
		MinRequests:  5,
		Config:       config.CircuitBreakerConfig{Enabled: true},
	}, nil)

	// 慢速熔断：20次请求中 50% 失败才熔断（适用于业务逻辑不稳定）
	slow := NewBreaker(Settings{
		Name:         name + "_slow",
		FailureRatio: 0.5,
		MinRequests:  20,
		Config:       config.CircuitBreakerConfig{Enabled: true},
	}, nil)

	return &MultiLevelBreaker{
		fastBreaker: fast,
		slowBreaker: slow,
	}
}

// ExecuteWithPolicy 让 fn 嵌套经过 fastBreaker 与 slowBreaker 执行，fn 的错误
// 同时计入两个熔断器。isInfraError 不被使用，错误类型不影响计数。
func (m *MultiLevelBreaker) ExecuteWithPolicy(ctx context.Context, fn func() (any, error), isInfraError func(error) bool) (any, error) {
	// 这是一个组合逻辑的简化示例
	// 实际上 gobreaker 的单次 Execute 只能绑定一个状态机
	// 这里的多级熔断通常用于：
	// 1. 先检查 fastBreaker 状态
	// 2. 如果 OK，再检查 slowBreaker 状态
	// 3. 执行 fn
	// 4. 根据错误类型分别反馈给对应的 Breaker (这需要自定义 gobreaker 逻辑，此处做抽象说明)

	return m.fastBreaker.Execute(func() (any, error) {
		return m.slowBreaker.Execute(fn)
	})
}

// 变更说明：MultiLevelBreaker 组合两个阈值不同的 gobreaker 状态机，任一熔断器
// 打开都会拒绝请求；两者看到的是同一批错误，不按错误类型分域。
