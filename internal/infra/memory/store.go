package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"weekly-exam-service/internal/domain"
)

type progressKey struct {
	userID string
	examID string
}

type submissionKey struct {
	userID string
	examID string
}

// Store is the in-memory implementation of the exam, progress, submission and
// badge repositories. A single mutex covers all four maps so cascade deletes
// and the submit compare-and-insert stay atomic.
type Store struct {
	mu          sync.RWMutex
	exams       map[string]domain.Exam
	progress    map[progressKey]domain.Progress
	submissions map[submissionKey]domain.Submission
	badges      map[domain.Badge]struct{}
}

func NewStore() *Store {
	return &Store{
		exams:       make(map[string]domain.Exam),
		progress:    make(map[progressKey]domain.Progress),
		submissions: make(map[submissionKey]domain.Submission),
		badges:      make(map[domain.Badge]struct{}),
	}
}

func (s *Store) CreateExam(_ context.Context, exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[exam.ID] = cloneExam(exam)
	return nil
}

func (s *Store) UpdateExam(_ context.Context, exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[exam.ID]; !ok {
		return domain.ErrExamNotFound
	}
	s.exams[exam.ID] = cloneExam(exam)
	return nil
}

func (s *Store) DeleteExam(_ context.Context, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[examID]; !ok {
		return domain.ErrExamNotFound
	}
	delete(s.exams, examID)
	for key := range s.progress {
		if key.examID == examID {
			delete(s.progress, key)
		}
	}
	for key := range s.submissions {
		if key.examID == examID {
			delete(s.submissions, key)
		}
	}
	for badge := range s.badges {
		if badge.ExamID == examID {
			delete(s.badges, badge)
		}
	}
	return nil
}

func (s *Store) GetExam(_ context.Context, examID string) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[examID]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return cloneExam(exam), nil
}

func (s *Store) ListExams(_ context.Context) ([]domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exams := make([]domain.Exam, 0, len(s.exams))
	for _, exam := range s.exams {
		exams = append(exams, cloneExam(exam))
	}
	sort.Slice(exams, func(i, j int) bool {
		if !exams[i].StartDate.Equal(exams[j].StartDate) {
			return exams[i].StartDate.After(exams[j].StartDate)
		}
		return exams[i].ID < exams[j].ID
	})
	return exams, nil
}

func (s *Store) FindActive(_ context.Context, now time.Time) (domain.Exam, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best domain.Exam
	found := false
	for _, exam := range s.exams {
		if now.Before(exam.StartDate) || now.After(exam.EndDate) {
			continue
		}
		// Overlapping windows: the nearest deadline is the most urgent exam.
		if !found || exam.EndDate.Before(best.EndDate) {
			best = exam
			found = true
		}
	}
	if !found {
		return domain.Exam{}, false, nil
	}
	return cloneExam(best), true, nil
}

func (s *Store) SaveProgress(_ context.Context, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progressKey{progress.UserID, progress.ExamID}] = progress
	return nil
}

func (s *Store) LoadProgress(_ context.Context, userID, examID string) (domain.AnswerSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.progress[progressKey{userID, examID}]; ok {
		return p.Answers, nil
	}
	return domain.AnswerSet{}, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := submissionKey{sub.UserID, sub.ExamID}
	if _, ok := s.submissions[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	s.submissions[key] = sub
	delete(s.progress, progressKey{sub.UserID, sub.ExamID})
	return nil
}

func (s *Store) GetSubmission(_ context.Context, userID, examID string) (domain.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionKey{userID, examID}]
	return sub, ok, nil
}

func (s *Store) ListExamSubmissions(_ context.Context, examID string, limit int) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]domain.Submission, 0)
	for key, sub := range s.submissions {
		if key.examID == examID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Score != subs[j].Score {
			return subs[i].Score > subs[j].Score
		}
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (s *Store) ListUserSubmissions(_ context.Context, userID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]domain.Submission, 0)
	for key, sub := range s.submissions {
		if key.userID == userID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	return subs, nil
}

func (s *Store) AwardBadge(_ context.Context, badge domain.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[badge] = struct{}{}
	return nil
}

func (s *Store) ListUserBadges(_ context.Context, userID string) ([]domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	badges := make([]domain.Badge, 0)
	for badge := range s.badges {
		if badge.UserID == userID {
			badges = append(badges, badge)
		}
	}
	sortBadges(badges)
	return badges, nil
}

func (s *Store) ListExamBadges(_ context.Context, examID string) ([]domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	badges := make([]domain.Badge, 0)
	for badge := range s.badges {
		if badge.ExamID == examID {
			badges = append(badges, badge)
		}
	}
	sortBadges(badges)
	return badges, nil
}

var badgeOrder = map[domain.BadgeType]int{
	domain.BadgeGold:   0,
	domain.BadgeSilver: 1,
	domain.BadgeBronze: 2,
}

func sortBadges(badges []domain.Badge) {
	sort.Slice(badges, func(i, j int) bool {
		if badges[i].ExamID != badges[j].ExamID {
			return badges[i].ExamID < badges[j].ExamID
		}
		return badgeOrder[badges[i].Type] < badgeOrder[badges[j].Type]
	})
}

func cloneExam(exam domain.Exam) domain.Exam {
	ids := make([]int64, len(exam.QuestionIDs))
	copy(ids, exam.QuestionIDs)
	exam.QuestionIDs = ids
	return exam
}
