package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/coordinator"
	"skillspire/internal/imagehost"
	"skillspire/internal/role"
)

// draftFrom reads a contest draft from JSON or from a multipart form with
// an optional "image" file.
func draftFrom(c *gin.Context) (coordinator.Draft, *imagehost.Image, func(), error) {
	var d coordinator.Draft
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		err := c.ShouldBindJSON(&d)
		return d, nil, func() {}, err
	}

	d.Name = c.PostForm("name")
	d.Description = c.PostForm("description")
	d.TaskInstruction = c.PostForm("taskInstruction")
	d.Type = c.PostForm("type")
	d.Image = c.PostForm("image")
	var err error
	if d.RegistrationFee, err = decimalForm(c, "price"); err != nil {
		return d, nil, func() {}, err
	}
	if d.Prize, err = decimalForm(c, "prize"); err != nil {
		return d, nil, func() {}, err
	}
	if v := c.PostForm("deadline"); v != "" {
		if d.Deadline, err = time.Parse(time.RFC3339, v); err != nil {
			return d, nil, func() {}, &contest.ValidationError{Field: "deadline", Reason: "must be RFC 3339"}
		}
	}
	img, done, err := formImage(c)
	return d, img, done, err
}

func decimalForm(c *gin.Context, key string) (decimal.Decimal, error) {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &contest.ValidationError{Field: key, Reason: "must be a number"}
	}
	return d, nil
}

func (s *Server) authoring(c *gin.Context) *coordinator.Authoring {
	return &coordinator.Authoring{
		Backend: session(c).Client(),
		Images:  s.images,
		Audit:   s.auditor(),
		Now:     s.opts.Clock.Now,
	}
}

// MyContests lists the caller's own contests in every status.
func (s *Server) MyContests() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := viewer(c)
		all, err := session(c).Client().Contests(c.Request.Context(), backend.ListOptions{Creator: email})
		if err != nil {
			s.fail(c, err)
			return
		}
		out := make([]contest.Contest, 0, len(all))
		for _, ct := range all {
			if contest.SameEmail(ct.CreatorEmail, email) {
				out = append(out, ct)
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) CreateContest() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, img, done, err := draftFrom(c)
		defer done()
		if err != nil {
			s.failBind(c, err)
			return
		}
		u := session(c).CurrentUser()
		out, err := s.authoring(c).Create(c.Request.Context(), contest.User{Email: u.Email, Name: u.Name}, d, img)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

func (s *Server) EditContest() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, img, done, err := draftFrom(c)
		defer done()
		if err != nil {
			s.failBind(c, err)
			return
		}
		out, err := s.authoring(c).Edit(c.Request.Context(), viewer(c), c.Param("id"), d, img)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) DeleteContest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authoring(c).Delete(c.Request.Context(), viewer(c), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// board returns the caller's winner board for :id after checking that the
// caller created the contest (admins see every contest).
func (s *Server) board(c *gin.Context) *coordinator.WinnerBoard {
	sess := session(c)
	id := c.Param("id")
	ct, err := sess.Client().Contest(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return nil
	}
	if r, _ := currentRole(c); r != role.Admin && !contest.SameEmail(ct.CreatorEmail, viewer(c)) {
		s.fail(c, &contest.NotFoundError{Resource: "contest", ID: id})
		return nil
	}
	return s.boards.Get(sess.ID(), id, func() *coordinator.WinnerBoard {
		return coordinator.NewWinnerBoard(id, viewer(c), sess.Client(), s.auditor())
	})
}

func (s *Server) ContestSubmissions() gin.HandlerFunc {
	return func(c *gin.Context) {
		b := s.board(c)
		if b == nil {
			return
		}
		if err := b.Load(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"submissions": b.Submissions(), "hasWinner": b.HasWinner()})
	}
}

func (s *Server) DeclareWinner() gin.HandlerFunc {
	return func(c *gin.Context) {
		b := s.board(c)
		if b == nil {
			return
		}
		if !b.Loaded() {
			if err := b.Load(c.Request.Context()); err != nil {
				s.fail(c, err)
				return
			}
		}
		subs, err := b.Declare(c.Request.Context(), c.Param("sid"))
		if err != nil {
			s.fail(c, err, gin.H{"submissions": b.Submissions(), "hasWinner": b.HasWinner()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"submissions": subs, "hasWinner": true})
	}
}

func (s *Server) failBind(c *gin.Context, err error) {
	if contest.IsValidation(err) {
		s.fail(c, err)
		return
	}
	badRequest(c, "bad request")
}
