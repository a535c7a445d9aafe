// Package app assembles the service from its configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"skillspire/internal/backend"
	"skillspire/internal/config"
	"skillspire/internal/coordinator"
	"skillspire/internal/identity"
	"skillspire/internal/imagehost"
	"skillspire/internal/role"
	"skillspire/internal/server"
	"skillspire/internal/store"
)

type App struct {
	cfg    config.Config
	db     *pgxpool.Pool
	redis  *redis.Client
	server *server.Server
	stop   context.CancelFunc
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	db, err := store.Connect(ctx, cfg.DatabaseURL, 30*time.Second)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := store.Migrate(ctx, a.db); err != nil {
		a.db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st := store.New(a.db)

	roles, err := a.roleResolver(ctx, cfg)
	if err != nil {
		a.db.Close()
		return nil, err
	}

	client, err := backend.New(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}

	var images *imagehost.Uploader
	if cfg.ImageHostKey != "" {
		images = imagehost.New(cfg.ImageHostURL, cfg.ImageHostKey)
	} else {
		log.Printf("[app] IMAGE_HOST_KEY not set, image uploads disabled")
	}

	var provider identity.Provider
	if cfg.IdentityMode == "firebase" {
		provider = identity.NewFirebaseProvider(cfg.FirebaseAPIKey)
	} else {
		local := identity.NewLocalProvider()
		local.AllowProvider = cfg.DevProviderSignIn
		provider = local
	}

	boards := coordinator.NewBoards()
	deps := identity.Deps{
		Provider: provider,
		Backend:  client,
		Mirror:   st,
		OnChange: func(ctx context.Context, sid string) {
			roles.Invalidate(ctx, sid)
			boards.DropSession(sid)
		},
	}
	var uploader coordinator.ImageUploader
	if images != nil {
		deps.Images = images
		uploader = images
	}

	sessions := identity.NewRegistry(deps, cfg.SessionTTL)
	sessions.OnEvict(func(sid string) {
		roles.Invalidate(context.Background(), sid)
		boards.DropSession(sid)
	})

	runCtx, stop := context.WithCancel(context.Background())
	a.stop = stop
	go sessions.Run(runCtx, time.Minute)

	a.server = server.New(sessions, roles, st, uploader, boards, server.Options{
		Secret:        cfg.JWTSecret,
		CookieSecure:  cfg.CookieSecure,
		SessionTTL:    cfg.SessionTTL,
		CountdownTick: cfg.CountdownTick,
		StaticDir:     cfg.StaticDir,
	})
	return a, nil
}

// roleResolver caches roles in Redis when REDIS_URL is set, in memory
// otherwise.
func (a *App) roleResolver(ctx context.Context, cfg config.Config) (*role.Resolver, error) {
	if cfg.RedisURL == "" {
		return role.NewResolver(role.NewMemoryCache()), nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opt.DB = cfg.RedisDB
	}
	a.redis = redis.NewClient(opt)
	if err := a.redis.Ping(ctx).Err(); err != nil {
		log.Printf("[app] redis unreachable, role cache will miss: %v", err)
	}
	return role.NewResolver(role.NewRedisCache(a.redis, cfg.SessionTTL)), nil
}

func (a *App) Router() *gin.Engine { return a.server.Router() }

func (a *App) Addr() string { return ":" + a.cfg.Port }

// Close stops the session sweeper and releases the connections.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("[app] redis close: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
