package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"skillspire/internal/contest"
)

// fail answers with the status for err's kind. A backend 401 ends the
// session: the browser has to log in again.
func (s *Server) fail(c *gin.Context, err error, extra ...gin.H) {
	body := gin.H{"error": err.Error()}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}

	var (
		ae *contest.AuthError
		ve *contest.ValidationError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, contest.ErrUnauthorized):
		sess := session(c)
		sess.SignOut(c.Request.Context())
		s.sessions.Remove(sess.ID())
		s.clearCookie(c)
		status = http.StatusUnauthorized
		body["login"] = true
	case errors.As(err, &ae):
		status = http.StatusUnauthorized
		body["kind"] = ae.Kind
	case contest.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body["field"] = ve.Field
	case contest.IsConflict(err):
		status = http.StatusConflict
	case contest.IsRetryable(err):
		status = http.StatusBadGateway
		body["retry"] = true
	default:
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
