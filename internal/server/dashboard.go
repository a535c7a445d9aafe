package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skillspire/internal/backend"
	"skillspire/internal/listing"
	"skillspire/internal/role"
)

func (s *Server) Navigation() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session(c)
		r := s.roles.Resolve(c.Request.Context(), sess.ID(), viewer(c), sess.Client())
		c.JSON(http.StatusOK, gin.H{"role": r, "items": role.Navigation(r)})
	}
}

// Participated lists the caller's registered contests, nearest deadline
// first.
func (s *Server) Participated() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := session(c).Client()
		me, err := client.Me(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		all, err := client.Contests(c.Request.Context(), backend.ListOptions{})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, listing.ByNearestDeadline(listing.Only(all, me.ParticipatedContests)))
	}
}

// Winning lists the contests the caller won, latest first.
func (s *Server) Winning() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := session(c).Client()
		me, err := client.Me(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		all, err := client.Contests(c.Request.Context(), backend.ListOptions{})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"contests": listing.ByNewestDeadline(listing.Only(all, me.WonContests)),
			"stats":    listing.WinRate(*me),
		})
	}
}
