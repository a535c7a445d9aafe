package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/coordinator"
	"skillspire/internal/role"
)

func (s *Server) moderation(c *gin.Context) *coordinator.Moderation {
	return &coordinator.Moderation{Backend: session(c).Client(), Roles: s.roles, Audit: s.auditor()}
}

func (s *Server) AdminUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := session(c).Client().Users(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) AdminSetRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Role string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		r, err := role.Parse(req.Role)
		if err != nil {
			s.fail(c, &contest.ValidationError{Field: "role", Reason: err.Error()})
			return
		}
		email := c.Param("email")
		if err := s.moderation(c).ChangeRole(c.Request.Context(), viewer(c), email, r); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": email, "role": r})
	}
}

// GET /api/admin/contests?status=pending|confirmed|rejected|all
func (s *Server) AdminContests() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := session(c).Client().Contests(c.Request.Context(), backend.ListOptions{Search: c.Query("search")})
		if err != nil {
			s.fail(c, err)
			return
		}
		status := c.Query("status")
		if status == "" || status == "all" {
			c.JSON(http.StatusOK, all)
			return
		}
		out := make([]contest.Contest, 0, len(all))
		for _, ct := range all {
			if string(ct.Status) == status {
				out = append(out, ct)
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) AdminSetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status contest.Status `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		id := c.Param("id")
		if err := s.moderation(c).SetStatus(c.Request.Context(), viewer(c), id, req.Status); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
	}
}

func (s *Server) AdminDeleteContest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.moderation(c).Delete(c.Request.Context(), viewer(c), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GET /api/admin/logs?actor=&limit=
func (s *Server) AdminLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusOK, []any{})
			return
		}
		out, err := s.store.RecentLogs(c.Request.Context(), c.Query("actor"), queryInt(c, "limit", 200))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
