package service

import (
	"context"
	"fmt"
	"time"

	"socialfeed/internal/clock"
	"socialfeed/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultRegistrationWindow = 10 * time.Minute
	DefaultRegistrationLimit  = 3
)

// RegistrationGuard 按来源地址做滑动窗口限流：窗口内成功注册次数达到上限后拒绝。
// 并发注册可能略微超出上限，这里不做强一致保证。
type RegistrationGuard struct {
	db     *gorm.DB
	clock  clock.Clock
	window time.Duration
	limit  int
}

func NewRegistrationGuard(db *gorm.DB, clk clock.Clock, window time.Duration, limit int) *RegistrationGuard {
	if clk == nil {
		clk = clock.Real()
	}
	if window <= 0 {
		window = DefaultRegistrationWindow
	}
	if limit <= 0 {
		limit = DefaultRegistrationLimit
	}
	return &RegistrationGuard{db: db, clock: clk, window: window, limit: limit}
}

// CanRegister 统计该地址在窗口内的记录数，小于上限时返回 true。
func (g *RegistrationGuard) CanRegister(ctx context.Context, ip string) (bool, error) {
	since := g.clock.Now().Add(-g.window)
	var count int64
	err := g.db.WithContext(ctx).Model(&models.RegistrationAttempt{}).
		Where("ip_address = ? AND attempted_at >= ?", ip, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	return count < int64(g.limit), nil
}

// RecordAttempt 只在注册成功后调用，校验失败不计入限额。
func (g *RegistrationGuard) RecordAttempt(ctx context.Context, ip string) error {
	return g.recordAttempt(g.db.WithContext(ctx), ip)
}

// recordAttempt 在给定的连接或事务上写入一条记录，注册时与用户创建同一事务提交。
func (g *RegistrationGuard) recordAttempt(tx *gorm.DB, ip string) error {
	a := models.RegistrationAttempt{IPAddress: ip, AttemptedAt: g.clock.Now()}
	if err := tx.Create(&a).Error; err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Prune 删除已经滑出窗口的记录，返回删除条数。
func (g *RegistrationGuard) Prune(ctx context.Context) (int64, error) {
	cutoff := g.clock.Now().Add(-g.window)
	res := g.db.WithContext(ctx).Where("attempted_at < ?", cutoff).Delete(&models.RegistrationAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RunJanitor 周期性清理过期记录，直到 ctx 结束。
func (g *RegistrationGuard) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Prune(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("registration janitor")
				continue
			}
			if n > 0 {
				log.Debug().Int64("pruned", n).Msg("registration janitor")
			}
		}
	}
}
