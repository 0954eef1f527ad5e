package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/npc-swipe/internal/activity"
	"github.com/oggyb/npc-swipe/internal/auth"
	"github.com/oggyb/npc-swipe/internal/cache"
	"github.com/oggyb/npc-swipe/internal/config"
	"github.com/oggyb/npc-swipe/internal/notify"
	"github.com/oggyb/npc-swipe/internal/session"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	// Sessions is the one session table of the process.
	Sessions   *session.Manager
	Dispatcher *notify.Dispatcher
	Activity   activity.Sink
	Operators  *auth.Verifier
}

// New creates a new AppContext. The optional collaborators default to a fresh
// session table, a dispatcher without a surface, a no-op activity sink and a
// verifier that trusts nobody; set the fields to override them.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	if cfg == nil {
		cfg = config.New()
	}
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Sessions:   session.NewManager(),
		Dispatcher: notify.NewDispatcher(nil, logger),
		Activity:   activity.Nop{},
		Operators:  &auth.Verifier{},
	}
}
