// Package session owns the lifetime of the one chat screen the client has
// open: opening a session builds a fresh sync engine, closing it tears the
// engine down.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/cache"
	"github.com/nguyentranbao-ct/chat-sync/internal/connectivity"
	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/syncengine"
)

type OpenParams struct {
	UserID          string  `json:"user_id" validate:"required"`
	DisplayName     string  `json:"display_name" validate:"required,nonblank"`
	Avatar          *string `json:"avatar,omitempty" validate:"omitempty,url"`
	BackgroundColor string  `json:"background_color,omitempty" validate:"omitempty,hexcolor"`
}

// Active is a running session and its engine.
type Active struct {
	models.Session
	Engine *syncengine.Engine `json:"-"`
}

type Manager interface {
	Open(ctx context.Context, params OpenParams) (*Active, error)
	Current() (*Active, error)
	Close()
}

type Deps struct {
	Feed         feed.Client
	Cache        cache.Store
	Monitor      connectivity.Monitor
	Metrics      *syncengine.Metrics
	Logger       *zap.SugaredLogger
	CacheTimeout time.Duration
	Clock        func() time.Time
}

type manager struct {
	deps   Deps
	logger *zap.SugaredLogger

	mu     sync.Mutex
	active *Active
}

func NewManager(deps Deps) Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &manager{
		deps:   deps,
		logger: deps.Logger.Named("session"),
	}
}

func (m *manager) Open(ctx context.Context, params OpenParams) (*Active, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()

	author := models.Author{
		ID:          params.UserID,
		DisplayName: params.DisplayName,
		AvatarRef:   params.Avatar,
	}
	engine, err := syncengine.New(syncengine.Deps{
		Feed:    m.deps.Feed,
		Cache:   m.deps.Cache,
		Monitor: m.deps.Monitor,
		Logger:  m.deps.Logger.Named("sync"),
		Metrics: m.deps.Metrics,
		Clock:   m.deps.Clock,
	}, syncengine.Options{
		Author:       author,
		CacheTimeout: m.deps.CacheTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create sync engine: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		engine.Teardown()
		return nil, fmt.Errorf("start sync engine: %w", err)
	}

	m.active = &Active{
		Session: models.Session{
			ID:              uuid.NewString(),
			User:            author,
			BackgroundColor: params.BackgroundColor,
			StartedAt:       m.deps.Clock().UTC(),
		},
		Engine: engine,
	}
	m.logger.Infow("session opened", "session_id", m.active.ID, "user_id", author.ID, "state", engine.State())
	return m.active, nil
}

func (m *manager) Current() (*Active, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, models.ErrNoSession
	}
	return m.active, nil
}

func (m *manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *manager) closeLocked() {
	if m.active == nil {
		return
	}
	m.active.Engine.Teardown()
	m.logger.Infow("session closed", "session_id", m.active.ID)
	m.active = nil
}
