// Package server is the HTTP surface: a gin router over the per-session
// identity, role, lifecycle and coordinator packages.
package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"skillspire/internal/coordinator"
	"skillspire/internal/identity"
	"skillspire/internal/lifecycle"
	"skillspire/internal/role"
	"skillspire/internal/store"
)

// Store is the audit log as the handlers use it.
type Store interface {
	LogAction(ctx context.Context, actor, action, details string) error
	RecentLogs(ctx context.Context, actor string, limit int) ([]store.LogEntry, error)
}

type Options struct {
	Secret        string
	CookieSecure  bool
	SessionTTL    time.Duration
	CountdownTick time.Duration
	StaticDir     string
	Clock         lifecycle.Clock
}

type Server struct {
	opts     Options
	sessions *identity.Registry
	roles    *role.Resolver
	store    Store
	images   coordinator.ImageUploader
	boards   *coordinator.Boards
}

func New(sessions *identity.Registry, roles *role.Resolver, st Store, images coordinator.ImageUploader, boards *coordinator.Boards, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = lifecycle.SystemClock
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if boards == nil {
		boards = coordinator.NewBoards()
	}
	return &Server{opts: opts, sessions: sessions, roles: roles, store: st, images: images, boards: boards}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	if dir := s.opts.StaticDir; dir != "" {
		r.Static("/static", dir)
		r.GET("/", func(c *gin.Context) { c.File(filepath.Join(dir, "index.html")) })
	}

	api := r.Group("/api", s.Session())
	{
		api.POST("/auth/register", s.Register())
		api.POST("/auth/login", s.Login())
		api.POST("/auth/provider", s.ProviderLogin())
		api.POST("/auth/logout", s.Logout())
		api.GET("/me", s.RequireUser(), s.Me())
		api.PATCH("/me/profile", s.RequireUser(), s.EditProfile())
		api.POST("/me/theme", s.RequireUser(), s.Theme())

		api.GET("/leaderboard", s.Leaderboard())
		api.GET("/winners", s.Winners())

		// contests: list supports ?category=&search=&page=&perPage=
		api.GET("/contests", s.ListContests())
		api.GET("/contests/popular", s.PopularContests())
		api.GET("/contests/:id", s.ContestState())
		api.POST("/contests/:id/pay", s.RequireUser(), s.Pay())
		api.POST("/contests/:id/submissions", s.RequireUser(), s.Submit())

		dash := api.Group("/dashboard", s.RequireUser())
		{
			dash.GET("/nav", s.Navigation())
			dash.GET("/participated", s.Participated())
			dash.GET("/winning", s.Winning())
		}

		creator := api.Group("/creator", s.RequireUser(), s.RequireRole(role.CreatorGuard))
		{
			creator.GET("/contests", s.MyContests())
			creator.POST("/contests", s.CreateContest())
			creator.PUT("/contests/:id", s.EditContest())
			creator.DELETE("/contests/:id", s.DeleteContest())
			creator.GET("/contests/:id/submissions", s.ContestSubmissions())
			creator.POST("/contests/:id/submissions/:sid/winner", s.DeclareWinner())
		}

		admin := api.Group("/admin", s.RequireUser(), s.RequireRole(role.AdminGuard))
		{
			admin.GET("/users", s.AdminUsers())
			admin.PATCH("/users/:email/role", s.AdminSetRole())
			admin.GET("/contests", s.AdminContests())
			admin.PATCH("/contests/:id/status", s.AdminSetStatus())
			admin.DELETE("/contests/:id", s.AdminDeleteContest())
			admin.GET("/logs", s.AdminLogs())
		}
	}

	r.GET("/ws/contests/:id/countdown", s.Session(), s.Countdown())

	return r
}

// auditor returns the store as a coordinator.Auditor, or nil.
func (s *Server) auditor() coordinator.Auditor {
	if s.store == nil {
		return nil
	}
	return s.store
}
