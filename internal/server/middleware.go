package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"skillspire/internal/identity"
	"skillspire/internal/role"
)

const cookieName = "skillspire_token"

type claims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Photo     string `json:"photo,omitempty"`
	jwt.RegisteredClaims
}

func (s *Server) parseToken(tokenStr string) (*claims, bool) {
	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, false
	}
	cl, ok := tok.Claims.(*claims)
	if !ok || cl.SessionID == "" {
		return nil, false
	}
	return cl, true
}

// issue tracks the session and writes a fresh cookie describing its
// current identity.
func (s *Server) issue(c *gin.Context, sess *identity.Session) {
	s.sessions.Keep(sess)
	cl := claims{
		SessionID: sess.ID(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.opts.SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "skillspire",
		},
	}
	if u := sess.CurrentUser(); u != nil {
		cl.Email, cl.Name, cl.Photo = u.Email, u.Name, u.Photo
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, tok, int(s.opts.SessionTTL.Seconds()), "/", "", s.opts.CookieSecure, true)
}

func (s *Server) clearCookie(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", s.opts.CookieSecure, true)
}

// Session attaches the caller's session. Callers without a signed-in
// session get an untracked one; it is kept only once it signs in. A session
// lost to a restart or eviction is rebuilt from the identity the cookie
// carries.
func (s *Server) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *identity.Session
		if tokenStr, err := c.Cookie(cookieName); err == nil && tokenStr != "" {
			if cl, ok := s.parseToken(tokenStr); ok {
				if cl.Email != "" {
					sess = s.sessions.Attach(cl.SessionID)
					if sess.CurrentUser() == nil {
						sess.Restore(c.Request.Context(), identity.Identity{Email: cl.Email, Name: cl.Name, Photo: cl.Photo})
					}
				} else if got, found := s.sessions.Get(cl.SessionID); found {
					sess = got
				}
			}
		}
		if sess == nil {
			sess = s.sessions.Ephemeral()
		}
		c.Set("session", sess)
		c.Next()
	}
}

func session(c *gin.Context) *identity.Session {
	v, _ := c.Get("session")
	return v.(*identity.Session)
}

// viewer is the signed-in email, or "" for a visitor.
func viewer(c *gin.Context) string {
	if u := session(c).CurrentUser(); u != nil {
		return u.Email
	}
	return ""
}

func (s *Server) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if session(c).CurrentUser() == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized", "login": true})
			return
		}
		c.Next()
	}
}

// RequireRole waits for the role lookup and admits only the guard's roles.
// A request cancelled while waiting is rejected.
func (s *Server) RequireRole(g role.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session(c)
		r := s.roles.Resolve(c.Request.Context(), sess.ID(), viewer(c), sess.Client())
		if c.Request.Context().Err() != nil || !g.Admits(r) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": g.Name + " only"})
			return
		}
		c.Set("role", r)
		c.Next()
	}
}

func currentRole(c *gin.Context) (role.Role, bool) {
	v, ok := c.Get("role")
	if !ok {
		return 0, false
	}
	r, ok := v.(role.Role)
	return r, ok
}
