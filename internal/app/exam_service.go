package app

import (
	"context"
	"log"
	"time"

	"weekly-exam-service/internal/domain"

	"github.com/google/uuid"
)

// ExamRepository persists exam definitions.
type ExamRepository interface {
	CreateExam(ctx context.Context, exam domain.Exam) error
	// UpdateExam replaces the definition, including the full question set.
	// Returns domain.ErrExamNotFound when the ID is unknown.
	UpdateExam(ctx context.Context, exam domain.Exam) error
	// DeleteExam cascades to the exam's progress, submissions and badges.
	DeleteExam(ctx context.Context, examID string) error
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
	ListExams(ctx context.Context) ([]domain.Exam, error)
	// FindActive returns the exam whose window contains now, choosing the
	// soonest end date when windows overlap.
	FindActive(ctx context.Context, now time.Time) (domain.Exam, bool, error)
}

// QuestionLoader fetches an exam's questions with choices (from cache/backing store).
type QuestionLoader interface {
	QuestionsForExam(ctx context.Context, examID string, questionIDs []int64) ([]domain.Question, error)
}

// ProgressRepository stores autosaved drafts keyed by (user, exam).
type ProgressRepository interface {
	SaveProgress(ctx context.Context, progress domain.Progress) error
	// LoadProgress returns an empty answer set when no draft exists.
	LoadProgress(ctx context.Context, userID, examID string) (domain.AnswerSet, error)
}

// SubmissionRepository stores final scored attempts.
type SubmissionRepository interface {
	// InsertSubmission persists the submission and deletes the user's draft
	// atomically. Returns domain.ErrDuplicateSubmission when a row already
	// exists for the same (user, exam), including under concurrent inserts.
	InsertSubmission(ctx context.Context, sub domain.Submission) error
	GetSubmission(ctx context.Context, userID, examID string) (domain.Submission, bool, error)
	// ListExamSubmissions returns submissions ordered by score desc, submitted_at asc.
	ListExamSubmissions(ctx context.Context, examID string, limit int) ([]domain.Submission, error)
	ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error)
}

// BadgeRepository stores podium trophies.
type BadgeRepository interface {
	// AwardBadge is a no-op when the (user, exam, type) badge already exists.
	AwardBadge(ctx context.Context, badge domain.Badge) error
	ListUserBadges(ctx context.Context, userID string) ([]domain.Badge, error)
	ListExamBadges(ctx context.Context, examID string) ([]domain.Badge, error)
}

// UserDirectory resolves minimal identities for leaderboard rows.
type UserDirectory interface {
	GetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error)
}

// SubmissionEvent is published after every accepted submission so the
// gamification service can update streaks without coupling.
type SubmissionEvent struct {
	UserID      string    `json:"userId"`
	ExamID      string    `json:"examId"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// FinalizeEvent is published when an admin closes an exam.
type FinalizeEvent struct {
	ExamID    string         `json:"examId"`
	ClosedAt  time.Time      `json:"closedAt"`
	Podium    []domain.Badge `json:"podium"`
	ExamTitle string         `json:"examTitle"`
}

// EventPublisher delivers domain events to downstream services. Publishing is
// best-effort: failures are logged, never surfaced to the caller.
type EventPublisher interface {
	SubmissionCreated(ctx context.Context, evt SubmissionEvent) error
	ExamFinalized(ctx context.Context, evt FinalizeEvent) error
}

// LeaderboardCache caches computed leaderboards. Implementations are
// best-effort; a miss or failure just falls back to recomputation.
type LeaderboardCache interface {
	Get(ctx context.Context, examID string, limit int) (domain.Leaderboard, bool)
	Set(ctx context.Context, lb domain.Leaderboard, limit int)
	Invalidate(ctx context.Context, examID string)
}

// DefaultLeaderboardLimit bounds leaderboard reads when no limit is given.
const DefaultLeaderboardLimit = 50

// Deps wires the service's collaborators. Events, LeaderboardCache, Watcher,
// LeaderboardLimit and Clock are optional.
type Deps struct {
	Exams            ExamRepository
	Questions        QuestionLoader
	Progress         ProgressRepository
	Submissions      SubmissionRepository
	Badges           BadgeRepository
	Users            UserDirectory
	Events           EventPublisher
	LeaderboardCache LeaderboardCache
	Watcher          *LeaderboardWatcher
	LeaderboardLimit int
	Clock            func() time.Time
}

// ExamService contains the weekly exam use cases.
type ExamService struct {
	exams       ExamRepository
	questions   QuestionLoader
	progress    ProgressRepository
	submissions SubmissionRepository
	badges      BadgeRepository
	users       UserDirectory
	events      EventPublisher
	lbCache     LeaderboardCache
	watcher     *LeaderboardWatcher
	lbLimit     int
	now         func() time.Time
}

func NewExamService(d Deps) *ExamService {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.LeaderboardLimit <= 0 {
		d.LeaderboardLimit = DefaultLeaderboardLimit
	}
	if d.Events == nil {
		d.Events = NopEventPublisher{}
	}
	if d.LeaderboardCache == nil {
		d.LeaderboardCache = NopLeaderboardCache{}
	}
	if d.Watcher == nil {
		d.Watcher = NewLeaderboardWatcher()
	}
	return &ExamService{
		exams:       d.Exams,
		questions:   d.Questions,
		progress:    d.Progress,
		submissions: d.Submissions,
		badges:      d.Badges,
		users:       d.Users,
		events:      d.Events,
		lbCache:     d.LeaderboardCache,
		watcher:     d.Watcher,
		lbLimit:     d.LeaderboardLimit,
		now:         d.Clock,
	}
}

// Watcher exposes the in-process leaderboard stream for the transport layer.
func (s *ExamService) Watcher() *LeaderboardWatcher {
	return s.watcher
}

// ExamInput carries admin create/update fields. A nil StartDate defaults to now.
type ExamInput struct {
	Title       string
	Description string
	StartDate   *time.Time
	EndDate     time.Time
	QuestionIDs []int64
}

func (in ExamInput) validate(now time.Time) (time.Time, error) {
	if in.Title == "" {
		return time.Time{}, domain.Validationf("title is required")
	}
	if in.EndDate.IsZero() {
		return time.Time{}, domain.Validationf("endDate is required")
	}
	if len(in.QuestionIDs) == 0 {
		return time.Time{}, domain.Validationf("questionIds must be a non-empty list")
	}
	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if !in.EndDate.After(start) {
		return time.Time{}, domain.Validationf("endDate must be after startDate")
	}
	return start, nil
}

// CreateExam persists a new definition with questions attached by reference.
func (s *ExamService) CreateExam(ctx context.Context, in ExamInput) (domain.Exam, error) {
	start, err := in.validate(s.now())
	if err != nil {
		return domain.Exam{}, err
	}
	exam := domain.Exam{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		StartDate:   start,
		EndDate:     in.EndDate,
		QuestionIDs: in.QuestionIDs,
	}
	if err := s.exams.CreateExam(ctx, exam); err != nil {
		return domain.Exam{}, err
	}
	return exam, nil
}

// UpdateExam replaces the definition. The question set is installed exactly as
// given: old associations are dropped, not merged.
func (s *ExamService) UpdateExam(ctx context.Context, examID string, in ExamInput) (domain.Exam, error) {
	start, err := in.validate(s.now())
	if err != nil {
		return domain.Exam{}, err
	}
	exam := domain.Exam{
		ID:          examID,
		Title:       in.Title,
		Description: in.Description,
		StartDate:   start,
		EndDate:     in.EndDate,
		QuestionIDs: in.QuestionIDs,
	}
	if err := s.exams.UpdateExam(ctx, exam); err != nil {
		return domain.Exam{}, err
	}
	s.lbCache.Invalidate(ctx, examID)
	return exam, nil
}

// DeleteExam removes the definition and everything it owns.
func (s *ExamService) DeleteExam(ctx context.Context, examID string) error {
	if err := s.exams.DeleteExam(ctx, examID); err != nil {
		return err
	}
	s.lbCache.Invalidate(ctx, examID)
	return nil
}

// GetExam returns a definition for the admin detail view.
func (s *ExamService) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	return s.exams.GetExam(ctx, examID)
}

// ListExams returns all definitions for the admin list view.
func (s *ExamService) ListExams(ctx context.Context) ([]domain.Exam, error) {
	return s.exams.ListExams(ctx)
}

// ActiveExamView is the student-facing payload for the current exam. Questions
// holds the sanitized payload before submission; Revealed holds the full
// payload (correct flags and explanations) once the user has submitted.
type ActiveExamView struct {
	Exam         domain.Exam
	Status       domain.ExamStatus
	Total        int
	IsSubmitted  bool
	UserScore    *int
	Questions    []domain.SanitizedQuestion
	Revealed     []domain.Question
	SavedAnswers domain.AnswerSet
}

// ActiveExam resolves the exam whose window contains now and merges the
// caller's state into it. The false return is a normal empty state, not an
// error: the client renders "no exam this week".
func (s *ExamService) ActiveExam(ctx context.Context, userID string) (ActiveExamView, bool, error) {
	now := s.now()
	exam, ok, err := s.exams.FindActive(ctx, now)
	if err != nil || !ok {
		return ActiveExamView{}, false, err
	}

	questions, err := s.questions.QuestionsForExam(ctx, exam.ID, exam.QuestionIDs)
	if err != nil {
		return ActiveExamView{}, false, err
	}

	view := ActiveExamView{
		Exam:   exam,
		Status: exam.StatusAt(now),
		Total:  len(questions),
	}

	sub, submitted, err := s.submissions.GetSubmission(ctx, userID, exam.ID)
	if err != nil {
		return ActiveExamView{}, false, err
	}
	if submitted {
		view.IsSubmitted = true
		score := sub.Score
		view.UserScore = &score
		view.Revealed = questions
		return view, true, nil
	}

	sanitized := make([]domain.SanitizedQuestion, 0, len(questions))
	for _, q := range questions {
		sanitized = append(sanitized, q.Sanitize())
	}
	view.Questions = sanitized

	saved, err := s.progress.LoadProgress(ctx, userID, exam.ID)
	if err != nil {
		return ActiveExamView{}, false, err
	}
	view.SavedAnswers = saved
	return view, true, nil
}

// SaveProgress upserts the caller's draft. Last write wins; the draft is never
// validated against the exam's question set.
func (s *ExamService) SaveProgress(ctx context.Context, userID, examID string, answers domain.AnswerSet) error {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		return err
	}
	return s.progress.SaveProgress(ctx, domain.Progress{
		UserID:    userID,
		ExamID:    examID,
		Answers:   answers.Normalize(),
		UpdatedAt: s.now(),
	})
}

// LoadProgress returns the caller's draft, or an empty map when none exists.
func (s *ExamService) LoadProgress(ctx context.Context, userID, examID string) (domain.AnswerSet, error) {
	return s.progress.LoadProgress(ctx, userID, examID)
}

// Submit validates the window, scores the answers, persists the one allowed
// submission and clears the draft. There is no resubmission path.
func (s *ExamService) Submit(ctx context.Context, userID, examID string, answers domain.AnswerSet) (domain.SubmissionResult, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	now := s.now()
	// Only the upper bound is enforced. The active-exam resolver never surfaces
	// an unstarted exam, so the lower bound stays open on purpose.
	if now.After(exam.EndDate) {
		return domain.SubmissionResult{}, domain.ErrExamClosed
	}

	questions, err := s.questions.QuestionsForExam(ctx, exam.ID, exam.QuestionIDs)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	score := scoreAnswers(questions, answers.Normalize())
	sub := domain.Submission{
		UserID:      userID,
		ExamID:      examID,
		Score:       score,
		SubmittedAt: now,
	}
	if err := s.submissions.InsertSubmission(ctx, sub); err != nil {
		return domain.SubmissionResult{}, err
	}

	result := domain.SubmissionResult{Score: score, Total: len(questions)}

	if err := s.events.SubmissionCreated(ctx, SubmissionEvent{
		UserID:      userID,
		ExamID:      examID,
		Score:       score,
		Total:       result.Total,
		SubmittedAt: now,
	}); err != nil {
		log.Printf("publish submission event: %v", err)
	}

	s.lbCache.Invalidate(ctx, examID)
	s.pushLeaderboard(ctx, examID)
	return result, nil
}

// Leaderboard returns the ranked board for an exam, cache-first.
func (s *ExamService) Leaderboard(ctx context.Context, examID string, limit int) (domain.Leaderboard, error) {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		return domain.Leaderboard{}, err
	}
	if limit <= 0 {
		limit = s.lbLimit
	}
	if lb, ok := s.lbCache.Get(ctx, examID, limit); ok {
		return lb, nil
	}
	lb, err := s.computeLeaderboard(ctx, examID, limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	s.lbCache.Set(ctx, lb, limit)
	return lb, nil
}

func (s *ExamService) computeLeaderboard(ctx context.Context, examID string, limit int) (domain.Leaderboard, error) {
	subs, err := s.submissions.ListExamSubmissions(ctx, examID, limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	userIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		userIDs = append(userIDs, sub.UserID)
	}
	users, err := s.users.GetUsers(ctx, userIDs)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(subs))
	for i, sub := range subs {
		user := users[sub.UserID]
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      sub.UserID,
			Name:        user.Name,
			Email:       user.Email,
			Specialty:   user.Specialty,
			Score:       sub.Score,
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return domain.Leaderboard{ExamID: examID, Entries: entries, UpdatedAt: s.now()}, nil
}

func (s *ExamService) pushLeaderboard(ctx context.Context, examID string) {
	if !s.watcher.HasWatchers(examID) {
		return
	}
	lb, err := s.computeLeaderboard(ctx, examID, s.lbLimit)
	if err != nil {
		log.Printf("compute leaderboard for stream: %v", err)
		return
	}
	s.watcher.Publish(lb)
}

// FinalizeReport summarizes what an admin finalize run did.
type FinalizeReport struct {
	Exam    domain.Exam        `json:"exam"`
	Podium  []domain.Badge     `json:"podium"`
	Top     domain.Leaderboard `json:"top"`
	Awarded int                `json:"awarded"`
}

// Finalize force-closes the exam and awards GOLD/SILVER/BRONZE to the top 3.
// Re-invoking is harmless: the window is already in the past and badge awards
// skip duplicates.
func (s *ExamService) Finalize(ctx context.Context, examID string) (FinalizeReport, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return FinalizeReport{}, err
	}

	now := s.now()
	exam.EndDate = now
	if err := s.exams.UpdateExam(ctx, exam); err != nil {
		return FinalizeReport{}, err
	}

	top, err := s.computeLeaderboard(ctx, examID, 3)
	if err != nil {
		return FinalizeReport{}, err
	}

	existing, err := s.badges.ListExamBadges(ctx, examID)
	if err != nil {
		return FinalizeReport{}, err
	}
	had := make(map[domain.Badge]struct{}, len(existing))
	for _, b := range existing {
		had[b] = struct{}{}
	}

	report := FinalizeReport{Exam: exam, Top: top}
	for _, entry := range top.Entries {
		badgeType, ok := domain.BadgeForRank(entry.Rank)
		if !ok {
			continue
		}
		badge := domain.Badge{UserID: entry.UserID, ExamID: examID, Type: badgeType}
		if err := s.badges.AwardBadge(ctx, badge); err != nil {
			return FinalizeReport{}, err
		}
		report.Podium = append(report.Podium, badge)
		if _, dup := had[badge]; !dup {
			report.Awarded++
		}
	}

	if err := s.events.ExamFinalized(ctx, FinalizeEvent{
		ExamID:    examID,
		ExamTitle: exam.Title,
		ClosedAt:  now,
		Podium:    report.Podium,
	}); err != nil {
		log.Printf("publish finalize event: %v", err)
	}

	s.lbCache.Invalidate(ctx, examID)
	s.pushLeaderboard(ctx, examID)
	return report, nil
}

// History returns the caller's past submissions with exam context.
func (s *ExamService) History(ctx context.Context, userID string) ([]domain.SubmissionHistoryEntry, error) {
	subs, err := s.submissions.ListUserSubmissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.SubmissionHistoryEntry, 0, len(subs))
	for _, sub := range subs {
		exam, err := s.exams.GetExam(ctx, sub.ExamID)
		if err != nil {
			// Exam deleted since; its submissions went with it, but tolerate
			// a racing read.
			continue
		}
		entries = append(entries, domain.SubmissionHistoryEntry{
			ExamID:      sub.ExamID,
			ExamTitle:   exam.Title,
			Score:       sub.Score,
			Total:       len(exam.QuestionIDs),
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return entries, nil
}

// BadgesFor returns the caller's trophies.
func (s *ExamService) BadgesFor(ctx context.Context, userID string) ([]domain.Badge, error) {
	return s.badges.ListUserBadges(ctx, userID)
}

// scoreAnswers counts questions whose selected set equals the correct set
// exactly. Missing one correct choice or adding one wrong choice scores the
// question as wrong; there is no partial credit anywhere.
func scoreAnswers(questions []domain.Question, answers domain.AnswerSet) int {
	score := 0
	for _, q := range questions {
		correct := q.CorrectSet()
		selected := answers[q.ID]
		if len(selected) != len(correct) {
			continue
		}
		equal := true
		for _, id := range selected {
			if _, ok := correct[id]; !ok {
				equal = false
				break
			}
		}
		if equal {
			score++
		}
	}
	return score
}

// NopEventPublisher drops events; used when no broker is configured.
type NopEventPublisher struct{}

func (NopEventPublisher) SubmissionCreated(context.Context, SubmissionEvent) error { return nil }
func (NopEventPublisher) ExamFinalized(context.Context, FinalizeEvent) error      { return nil }

// NopLeaderboardCache never hits; used when no Redis is configured.
type NopLeaderboardCache struct{}

func (NopLeaderboardCache) Get(context.Context, string, int) (domain.Leaderboard, bool) {
	return domain.Leaderboard{}, false
}
func (NopLeaderboardCache) Set(context.Context, domain.Leaderboard, int) {}
func (NopLeaderboardCache) Invalidate(context.Context, string)           {}
