package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings 控制连续失败多少次后熔断，以及熔断后多久半开重试。
type BreakerSettings struct {
	Failures uint32
	Timeout  time.Duration
}

// BreakerChecker 用熔断器包装 ParticipantChecker：数据库不可用时 join 请求快速失败，
// 不会让每个连接都卡在超时上。"会话不存在" 属于正常结果，不计入失败。
type BreakerChecker struct {
	inner ParticipantChecker
	cb    *gobreaker.CircuitBreaker[bool]
}

func NewBreakerChecker(inner ParticipantChecker, s BreakerSettings) *BreakerChecker {
	if s.Failures == 0 {
		s.Failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "participants",
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrConversationNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("participant store breaker state change")
		},
	}
	return &BreakerChecker{inner: inner, cb: gobreaker.NewCircuitBreaker[bool](settings)}
}

func (b *BreakerChecker) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	return b.cb.Execute(func() (bool, error) {
		return b.inner.IsParticipant(ctx, userID, conversationID)
	})
}

func (b *BreakerChecker) State() gobreaker.State {
	return b.cb.State()
}
