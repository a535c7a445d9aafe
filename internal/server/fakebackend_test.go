package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
)

// fakeBackend is an in-memory contest backend. /jwt sets a cookie holding
// the email; write endpoints and /users/me require it.
type fakeBackend struct {
	mu       sync.Mutex
	contests map[string]*contest.Contest
	users    map[string]*contest.User
	subs     []contest.Submission
	payments []backend.Payment
	winners  []contest.RecentWinner
	expired  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{contests: map[string]*contest.Contest{}, users: map[string]*contest.User{}}
}

func (f *fakeBackend) caller(r *http.Request) string {
	ck, err := r.Cookie("token")
	if err != nil || f.expired {
		return ""
	}
	return ck.Value
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) user(email string) *contest.User {
	u, ok := f.users[email]
	if !ok {
		u = &contest.User{Email: email, Role: "user"}
		f.users[email] = u
	}
	return u
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	lock := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			h(w, r)
		}
	}
	authed := func(h func(w http.ResponseWriter, r *http.Request, email string)) http.HandlerFunc {
		return lock(func(w http.ResponseWriter, r *http.Request) {
			email := f.caller(r)
			if email == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r, email)
		})
	}

	mux.HandleFunc("POST /jwt", lock(func(w http.ResponseWriter, r *http.Request) {
		var id backend.SessionIdentity
		_ = json.NewDecoder(r.Body).Decode(&id)
		http.SetCookie(w, &http.Cookie{Name: "token", Value: id.Email, Path: "/"})
	}))
	mux.HandleFunc("POST /users", lock(func(w http.ResponseWriter, r *http.Request) {
		var u contest.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		existing := f.user(u.Email)
		existing.Name, existing.Photo = u.Name, u.Photo
	}))
	mux.HandleFunc("GET /users", lock(func(w http.ResponseWriter, r *http.Request) {
		out := []contest.User{}
		for _, u := range f.users {
			out = append(out, *u)
		}
		writeJSON(w, out)
	}))
	mux.HandleFunc("GET /users/me", authed(func(w http.ResponseWriter, r *http.Request, email string) {
		writeJSON(w, f.user(email))
	}))
	mux.HandleFunc("GET /users/role/{email}", lock(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"role": f.user(r.PathValue("email")).Role})
	}))
	mux.HandleFunc("PATCH /users/role/{email}", authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		var body struct{ Role string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.user(r.PathValue("email")).Role = body.Role
	}))
	mux.HandleFunc("GET /contests", lock(func(w http.ResponseWriter, r *http.Request) {
		search := strings.ToLower(r.URL.Query().Get("search"))
		out := []contest.Contest{}
		for _, c := range f.contests {
			if search == "" || strings.Contains(strings.ToLower(c.Name), search) {
				out = append(out, *c)
			}
		}
		writeJSON(w, out)
	}))
	mux.HandleFunc("GET /contests/{id}", lock(func(w http.ResponseWriter, r *http.Request) {
		c, ok := f.contests[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, c)
	}))
	mux.HandleFunc("POST /contests", authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		var c contest.Contest
		_ = json.NewDecoder(r.Body).Decode(&c)
		c.ID = "new-" + c.Name
		f.contests[c.ID] = &c
		writeJSON(w, c)
	}))
	mux.HandleFunc("POST /contests/{id}/register", authed(func(w http.ResponseWriter, r *http.Request, email string) {
		id := r.PathValue("id")
		u := f.user(email)
		if u.Participates(id) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		u.ParticipatedContests = append(u.ParticipatedContests, id)
		f.contests[id].Participants++
	}))
	mux.HandleFunc("POST /payments", authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		var p backend.Payment
		_ = json.NewDecoder(r.Body).Decode(&p)
		for _, q := range f.payments {
			if q.TransactionID == p.TransactionID {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.payments = append(f.payments, p)
	}))
	mux.HandleFunc("GET /winners", lock(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.winners)
	}))
	mux.HandleFunc("GET /submissions", lock(func(w http.ResponseWriter, r *http.Request) {
		out := []contest.Submission{}
		for _, s := range f.subs {
			if s.ContestID == r.URL.Query().Get("contestId") {
				out = append(out, s)
			}
		}
		writeJSON(w, out)
	}))
	mux.HandleFunc("POST /submissions", authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		var in backend.NewSubmission
		_ = json.NewDecoder(r.Body).Decode(&in)
		s := contest.Submission{ID: "sub-" + in.UserEmail, ContestID: in.ContestID, UserEmail: in.UserEmail, Content: in.Content}
		f.subs = append(f.subs, s)
		writeJSON(w, s)
	}))
	mux.HandleFunc("PATCH /submissions/{id}/winner", authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		for i := range f.subs {
			if f.subs[i].ID == r.PathValue("id") {
				f.subs[i].IsWinner = true
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	return mux
}
