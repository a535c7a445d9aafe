package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/coordinator"
	"skillspire/internal/lifecycle"
	"skillspire/internal/listing"
	"skillspire/internal/role"
)

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

// GET /api/contests?category=&search=&page=&perPage=
func (s *Server) ListContests() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listing.Query
		_ = c.ShouldBindQuery(&q)

		all, err := session(c).Client().Contests(c.Request.Context(), backend.ListOptions{Search: q.Search})
		if err != nil {
			s.fail(c, err)
			return
		}
		visible := listing.Visible(all)
		page := listing.Paginate(listing.Filter(visible, q), queryInt(c, "page", 1), queryInt(c, "perPage", listing.DefaultPerPage))
		c.JSON(http.StatusOK, gin.H{
			"contests":   page.Items,
			"page":       page.Page,
			"perPage":    page.PerPage,
			"total":      page.Total,
			"totalPages": page.TotalPages,
			"categories": listing.Categories(visible),
		})
	}
}

func (s *Server) PopularContests() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := session(c).Client().Contests(c.Request.Context(), backend.ListOptions{})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, listing.Popular(listing.Visible(all), queryInt(c, "limit", 5)))
	}
}

func (s *Server) Leaderboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := session(c).Client().Leaderboard(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		if len(out) > 100 {
			out = out[:100]
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/winners is the recent winners showcase.
func (s *Server) Winners() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := session(c).Client().Winners(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		if out == nil {
			out = []contest.RecentWinner{}
		}
		c.JSON(http.StatusOK, out)
	}
}

// controller loads the lifecycle of :id for the caller. On failure the
// response has been written and nil is returned.
func (s *Server) controller(c *gin.Context) *lifecycle.Controller {
	sess := session(c)
	ctrl := lifecycle.New(c.Param("id"), viewer(c), sess.Client(), s.opts.Clock)
	if err := ctrl.Load(c.Request.Context()); err != nil {
		if errors.Is(err, contest.ErrUnauthorized) {
			s.fail(c, err)
			return nil
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found", "state": ctrl.Snapshot()})
		return nil
	}
	if ct := ctrl.Snapshot().Contest; ct != nil && !listing.Public(*ct) && !s.mayPreview(c, ct) {
		hidden := lifecycle.Snapshot{ContestID: ctrl.ContestID(), Phase: lifecycle.PhaseNotFound}
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found", "state": hidden})
		return nil
	}
	return ctrl
}

// mayPreview reports whether the caller may see an unpublished contest:
// its creator or an admin.
func (s *Server) mayPreview(c *gin.Context, ct *contest.Contest) bool {
	email := viewer(c)
	if email == "" {
		return false
	}
	if contest.SameEmail(ct.CreatorEmail, email) {
		return true
	}
	sess := session(c)
	return s.roles.Resolve(c.Request.Context(), sess.ID(), email, sess.Client()) == role.Admin
}

// GET /api/contests/:id is the contest page state for the caller.
func (s *Server) ContestState() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := s.controller(c)
		if ctrl == nil {
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	}
}

func (s *Server) Pay() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req coordinator.PaymentConfirmation
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		ctrl := s.controller(c)
		if ctrl == nil {
			return
		}
		reg := &coordinator.Registration{Backend: session(c).Client(), Audit: s.auditor(), Now: s.opts.Clock.Now}
		out, err := reg.Pay(c.Request.Context(), ctrl, req)
		if err != nil {
			s.fail(c, err, gin.H{"state": ctrl.Snapshot()})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) Submit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		ctrl := s.controller(c)
		if ctrl == nil {
			return
		}
		sess := session(c)
		var author contest.User
		if u := sess.CurrentUser(); u != nil {
			author = contest.User{Email: u.Email, Name: u.Name, Photo: u.Photo}
		}
		form := &coordinator.Form{Open: true, Content: req.Content}
		sub := &coordinator.Submission{Backend: sess.Client(), Audit: s.auditor()}
		out, err := sub.Submit(c.Request.Context(), ctrl, author, form)
		if err != nil {
			s.fail(c, err, gin.H{"form": form, "state": ctrl.Snapshot()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"form": form, "state": out.State})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type countdownMessage struct {
	TimeRemaining  string              `json:"timeRemaining"`
	Remaining      lifecycle.Remaining `json:"remaining"`
	DeadlinePassed bool                `json:"deadlinePassed"`
	Actions        lifecycle.Actions   `json:"actions"`
}

// Countdown streams the time left until the contest deadline, one message
// per tick, and closes the socket once the deadline passes. The ticker
// lives exactly as long as the connection.
func (s *Server) Countdown() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := s.controller(c)
		if ctrl == nil {
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade %s: %v", ctrl.ContestID(), err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		tk, err := ctrl.Countdown(ctx, s.opts.CountdownTick)
		if err != nil {
			return
		}
		defer tk.Stop()

		for r := range tk.C {
			msg := countdownMessage{
				TimeRemaining:  r.String(),
				Remaining:      r,
				DeadlinePassed: r.Passed,
				Actions:        ctrl.Snapshot().Actions,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		if ctx.Err() == nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "contest ended"))
		}
	}
}
