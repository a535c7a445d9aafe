package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"skillspire/internal/identity"
	"skillspire/internal/imagehost"
	"skillspire/internal/listing"
)

// formImage returns the optional "image" file of a multipart request. The
// returned close func must be called once the upload is done.
func formImage(c *gin.Context) (*imagehost.Image, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, noop, nil
	}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, err
	}
	return &imagehost.Image{Name: fh.Filename, Body: f}, func() { _ = f.Close() }, nil
}

func (s *Server) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" form:"name"`
			Email     string `json:"email" form:"email"`
			Password  string `json:"password" form:"password"`
			Password2 string `json:"password2" form:"password2"`
			Photo     string `json:"photo" form:"photo"`
		}
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "bad request")
			return
		}
		if req.Email == "" || req.Password == "" {
			badRequest(c, "fill all fields")
			return
		}
		if req.Password2 != "" && req.Password != req.Password2 {
			badRequest(c, "passwords do not match")
			return
		}
		img, done, err := formImage(c)
		if err != nil {
			badRequest(c, "bad image")
			return
		}
		defer done()

		sess := session(c)
		id, err := sess.Onboard(c.Request.Context(), identity.Signup{
			Name: req.Name, Email: req.Email, Password: req.Password, PhotoURL: req.Photo, Image: img,
		})
		if sess.CurrentUser() != nil {
			s.issue(c, sess)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		s.audit(c, id.Email, "register", "account created")
		c.JSON(http.StatusOK, gin.H{"user": id})
	}
}

func (s *Server) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		sess := session(c)
		id, err := sess.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			s.fail(c, err)
			return
		}
		sess.EnsureUser(c.Request.Context())
		s.issue(c, sess)
		s.audit(c, id.Email, "login", "password")
		c.JSON(http.StatusOK, gin.H{"user": id})
	}
}

// ProviderLogin signs in with a federated id token obtained by the browser.
func (s *Server) ProviderLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "bad json")
			return
		}
		sess := session(c)
		id, err := sess.SignInWithProvider(c.Request.Context(), req.Token)
		if err != nil {
			s.fail(c, err)
			return
		}
		sess.EnsureUser(c.Request.Context())
		s.issue(c, sess)
		s.audit(c, id.Email, "login", "provider")
		c.JSON(http.StatusOK, gin.H{"user": id})
	}
}

func (s *Server) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session(c)
		if u := sess.CurrentUser(); u != nil {
			s.audit(c, u.Email, "logout", "")
		}
		sess.SignOut(c.Request.Context())
		s.sessions.Remove(sess.ID())
		s.clearCookie(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Me combines the identity, the backend user record and the profile stats.
func (s *Server) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session(c)
		ctx := c.Request.Context()
		u, err := sess.Client().Me(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		r := s.roles.Resolve(ctx, sess.ID(), u.Email, sess.Client())
		c.JSON(http.StatusOK, gin.H{
			"identity": sess.CurrentUser(),
			"user":     u,
			"role":     r,
			"stats":    listing.WinRate(*u),
			"theme":    sess.Theme(ctx),
		})
	}
}

func (s *Server) EditProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" form:"name"`
			Bio   string `json:"bio" form:"bio"`
			Photo string `json:"photo" form:"photo"`
		}
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "bad request")
			return
		}
		img, done, err := formImage(c)
		if err != nil {
			badRequest(c, "bad image")
			return
		}
		defer done()

		sess := session(c)
		id, err := sess.EditProfile(c.Request.Context(), identity.ProfileEdit{
			Name: req.Name, Bio: req.Bio, Photo: req.Photo, Image: img,
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		s.issue(c, sess)
		c.JSON(http.StatusOK, gin.H{"user": id})
	}
}

// Theme sets {"theme": "light"|"dark"}, or toggles when no theme is given.
func (s *Server) Theme() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Theme string `json:"theme"`
		}
		_ = c.ShouldBindJSON(&req)

		sess := session(c)
		ctx := c.Request.Context()
		var err error
		theme := req.Theme
		if theme == "" {
			theme, err = sess.ToggleTheme(ctx)
		} else {
			err = sess.SetTheme(ctx, theme)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"theme": theme})
	}
}

func (s *Server) audit(c *gin.Context, actor, action, details string) {
	if s.store == nil {
		return
	}
	_ = s.store.LogAction(c.Request.Context(), actor, action, details)
}
