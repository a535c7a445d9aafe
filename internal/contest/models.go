package contest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusEnded     Status = "ended"
)

// CanModerate reports whether an admin may move a contest from s to next.
// Only pending contests are moderated, and only into confirmed or rejected.
func (s Status) CanModerate(next Status) bool {
	return s == StatusPending && (next == StatusConfirmed || next == StatusRejected)
}

type Category string

const (
	Coding      Category = "Coding"
	Design      Category = "Design"
	Writing     Category = "Writing"
	Photography Category = "Photography"
	Quiz        Category = "Quiz"
	Gaming      Category = "Gaming"
	Business    Category = "Business"
)

var Categories = []Category{Coding, Design, Writing, Photography, Quiz, Gaming, Business}

// ParseCategory matches case-insensitively against the known set.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

type Winner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Photo string `json:"photo"`
}

type Contest struct {
	ID              string          `json:"_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	TaskInstruction string          `json:"taskInstruction"`
	Image           string          `json:"image"`
	Type            Category        `json:"type"`
	RegistrationFee decimal.Decimal `json:"price"`
	Prize           decimal.Decimal `json:"prize"`
	Deadline        time.Time       `json:"deadline"`
	Participants    int             `json:"participants"`
	Status          Status          `json:"status"`
	Winner          *Winner         `json:"winner,omitempty"`
	CreatorEmail    string          `json:"creatorEmail,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitempty"`
}

type User struct {
	Email                string   `json:"email"`
	Name                 string   `json:"name"`
	Photo                string   `json:"photo"`
	Bio                  string   `json:"bio,omitempty"`
	Role                 string   `json:"role"`
	ParticipatedContests []string `json:"participatedContests,omitempty"`
	WonContests          []string `json:"wonContests,omitempty"`
}

// Participates reports whether contestID is in the user's registrations.
func (u *User) Participates(contestID string) bool {
	if u == nil {
		return false
	}
	for _, id := range u.ParticipatedContests {
		if id == contestID {
			return true
		}
	}
	return false
}

type Submission struct {
	ID          string    `json:"_id"`
	ContestID   string    `json:"contestId"`
	UserEmail   string    `json:"userEmail"`
	UserName    string    `json:"userName,omitempty"`
	UserPhoto   string    `json:"userPhoto,omitempty"`
	Content     string    `json:"content"`
	IsWinner    bool      `json:"isWinner"`
	SubmittedAt time.Time `json:"submittedAt,omitempty"`
}

// SameEmail compares identity keys the way the backend does.
func SameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Leader is one row of the winners leaderboard.
// RecentWinner is one entry of the winners showcase.
type RecentWinner struct {
	Name    string          `json:"name"`
	Photo   string          `json:"photo"`
	Contest string          `json:"contest"`
	Prize   decimal.Decimal `json:"prize"`
}

type Leader struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
	Wins  int    `json:"wins"`
}
