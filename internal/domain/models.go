package domain

import "time"

// AnswerSet maps a question ID to the set of choice IDs the user selected.
type AnswerSet map[int64][]int64

// Normalize drops empty selections and deduplicates choice IDs. An empty
// selection means "unanswered" and is never stored.
func (a AnswerSet) Normalize() AnswerSet {
	out := make(AnswerSet, len(a))
	for questionID, choices := range a {
		if len(choices) == 0 {
			continue
		}
		seen := make(map[int64]struct{}, len(choices))
		dedup := make([]int64, 0, len(choices))
		for _, id := range choices {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			dedup = append(dedup, id)
		}
		out[questionID] = dedup
	}
	return out
}

// Choice is one selectable option of a question. IsCorrect is authoritative and
// must never reach a client that has not submitted yet.
type Choice struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is an MCQ with one or more correct choices.
type Question struct {
	ID          int64    `json:"id"`
	Text        string   `json:"text"`
	Explanation string   `json:"explanation,omitempty"`
	Choices     []Choice `json:"choices"`
}

// CorrectSet returns the IDs of the choices flagged correct.
func (q Question) CorrectSet() map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, c := range q.Choices {
		if c.IsCorrect {
			set[c.ID] = struct{}{}
		}
	}
	return set
}

// SanitizedQuestion is the pre-submission view of a question: choices without
// their correctness flag, and no explanation.
type SanitizedQuestion struct {
	ID      int64             `json:"id"`
	Text    string            `json:"text"`
	Choices []SanitizedChoice `json:"choices"`
}

// SanitizedChoice hides the correctness flag.
type SanitizedChoice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Sanitize strips answer-revealing fields for users who have not submitted.
func (q Question) Sanitize() SanitizedQuestion {
	choices := make([]SanitizedChoice, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, SanitizedChoice{ID: c.ID, Text: c.Text})
	}
	return SanitizedQuestion{ID: q.ID, Text: q.Text, Choices: choices}
}

// ExamStatus is derived from the window and wall clock, never stored.
type ExamStatus string

const (
	ExamScheduled ExamStatus = "SCHEDULED"
	ExamActive    ExamStatus = "ACTIVE"
	ExamClosed    ExamStatus = "CLOSED"
)

// Exam is a time-windowed collection of questions referenced from the bank.
type Exam struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	QuestionIDs []int64   `json:"questionIds"`
}

// StatusAt derives the lifecycle state from the window. Closing is terminal:
// nothing ever moves EndDate forward again.
func (e Exam) StatusAt(now time.Time) ExamStatus {
	switch {
	case now.Before(e.StartDate):
		return ExamScheduled
	case now.After(e.EndDate):
		return ExamClosed
	default:
		return ExamActive
	}
}

// Progress is the autosaved draft for one user on one exam. It exists only
// until the matching submission is created.
type Progress struct {
	UserID    string    `json:"userId"`
	ExamID    string    `json:"examId"`
	Answers   AnswerSet `json:"answers"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Submission is the single immutable scored record of a user's attempt.
type Submission struct {
	UserID      string    `json:"userId"`
	ExamID      string    `json:"examId"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// BadgeType ranks the podium.
type BadgeType string

const (
	BadgeGold   BadgeType = "GOLD"
	BadgeSilver BadgeType = "SILVER"
	BadgeBronze BadgeType = "BRONZE"
)

// BadgeForRank maps a 1-based leaderboard rank to its trophy.
func BadgeForRank(rank int) (BadgeType, bool) {
	switch rank {
	case 1:
		return BadgeGold, true
	case 2:
		return BadgeSilver, true
	case 3:
		return BadgeBronze, true
	default:
		return "", false
	}
}

// Badge is a permanent trophy awarded by finalize; never revoked.
type Badge struct {
	UserID string    `json:"userId"`
	ExamID string    `json:"examId"`
	Type   BadgeType `json:"type"`
}

// User is the minimal identity exposed on leaderboards.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty,omitempty"`
}

// LeaderboardEntry is one ranked row of an exam's scoreboard.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Specialty   string    `json:"specialty,omitempty"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Leaderboard is the ordered scoreboard for one exam. During an active window
// it is a snapshot, not final standing.
type Leaderboard struct {
	ExamID    string             `json:"examId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SubmissionResult is returned to the submitting user.
type SubmissionResult struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// SubmissionHistoryEntry is one row of a user's past exams.
type SubmissionHistoryEntry struct {
	ExamID      string    `json:"examId"`
	ExamTitle   string    `json:"examTitle"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submittedAt"`
}
