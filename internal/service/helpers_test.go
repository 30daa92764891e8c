package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"socialfeed/internal/clock"
	"socialfeed/internal/db"
	"socialfeed/internal/models"
	"socialfeed/internal/ws"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *recordingPublisher) Publish(evt ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) Events() []ws.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ws.Event(nil), p.events...)
}

type fixture struct {
	db     *gorm.DB
	clock  *clock.Fake
	tokens *TokenService
	guard  *RegistrationGuard
	users  *UserService
	posts  *PostService
	pub    *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := newTestDB(t)
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := NewTokenService(gdb)
	guard := NewRegistrationGuard(gdb, clk, 10*time.Minute, 3)
	pub := &recordingPublisher{}
	return &fixture{
		db:     gdb,
		clock:  clk,
		tokens: tokens,
		guard:  guard,
		users:  NewUserService(gdb, tokens, guard, 12),
		posts:  NewPostService(gdb, pub),
		pub:    pub,
	}
}

// register creates a user from a unique address so the guard never interferes.
func (f *fixture) register(t *testing.T, login string) (*RegisterResult, *models.User) {
	t.Helper()
	res, err := f.users.Register(context.Background(), "10.0.0."+login, login)
	require.NoError(t, err)
	user, err := f.tokens.Validate(context.Background(), res.Token)
	require.NoError(t, err)
	return res, user
}
