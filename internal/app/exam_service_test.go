package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"weekly-exam-service/internal/app"
	"weekly-exam-service/internal/domain"
	"weekly-exam-service/internal/infra/memory"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	service *app.ExamService
	store   *memory.Store
	clock   *fakeClock
	users   *memory.UserDirectory
}

// newFixture seeds the question bank used across tests:
// question 1 has the single correct choice 10, question 2 has the correct
// set {20, 21}.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock(baseTime)
	store := memory.NewStore()
	users := memory.NewUserDirectory([]domain.User{
		{ID: "u1", Name: "Amina", Email: "amina@example.com", Specialty: "infirmier polyvalent"},
		{ID: "u2", Name: "Youssef", Email: "youssef@example.com", Specialty: "sage-femme"},
		{ID: "u3", Name: "Khadija", Email: "khadija@example.com"},
		{ID: "u4", Name: "Omar", Email: "omar@example.com"},
		{ID: "u5", Name: "Sara", Email: "sara@example.com"},
	})
	loader := memory.NewStaticQuestionLoader([]domain.Question{
		{
			ID:   1,
			Text: "Fréquence cardiaque normale ?",
			Choices: []domain.Choice{
				{ID: 10, Text: "60-100/min", IsCorrect: true},
				{ID: 11, Text: "40-60/min", IsCorrect: false},
			},
		},
		{
			ID:          2,
			Text:        "Signes d'hypoglycémie ?",
			Explanation: "Sueurs et tremblements sont des signes adrénergiques.",
			Choices: []domain.Choice{
				{ID: 20, Text: "Sueurs", IsCorrect: true},
				{ID: 21, Text: "Tremblements", IsCorrect: true},
				{ID: 22, Text: "Polyurie", IsCorrect: false},
			},
		},
		{
			ID:   3,
			Text: "Choix multiples {2,3}",
			Choices: []domain.Choice{
				{ID: 31, Text: "a", IsCorrect: false},
				{ID: 32, Text: "b", IsCorrect: true},
				{ID: 33, Text: "c", IsCorrect: true},
				{ID: 34, Text: "d", IsCorrect: false},
			},
		},
	})
	service := app.NewExamService(app.Deps{
		Exams:       store,
		Questions:   loader,
		Progress:    store,
		Submissions: store,
		Badges:      store,
		Users:       users,
		Clock:       clock.Now,
	})
	return &fixture{service: service, store: store, clock: clock, users: users}
}

func (f *fixture) createExam(t *testing.T, questionIDs ...int64) domain.Exam {
	t.Helper()
	end := f.clock.Now().Add(7 * 24 * time.Hour)
	exam, err := f.service.CreateExam(context.Background(), app.ExamInput{
		Title:       "Examen hebdomadaire",
		EndDate:     end,
		QuestionIDs: questionIDs,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func TestCreateExamValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := baseTime.Add(time.Hour)

	cases := []struct {
		name  string
		input app.ExamInput
	}{
		{"missing title", app.ExamInput{EndDate: end, QuestionIDs: []int64{1}}},
		{"missing endDate", app.ExamInput{Title: "t", QuestionIDs: []int64{1}}},
		{"empty questions", app.ExamInput{Title: "t", EndDate: end}},
		{"endDate before startDate", app.ExamInput{Title: "t", EndDate: baseTime.Add(-time.Hour), QuestionIDs: []int64{1}}},
	}
	for _, tc := range cases {
		if _, err := f.service.CreateExam(ctx, tc.input); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestSubmitScoresExactSetEquality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	// Q1 right, Q2 wrong (choice 21 missing): no partial credit.
	result, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{
		1: {10},
		2: {20},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("expected score=1 total=2, got %+v", result)
	}
}

func TestScoringSelectedSetVariants(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		selected []int64
		want     int
	}{
		{"subset of correct", []int64{32}, 0},
		{"exact match", []int64{32, 33}, 1},
		{"superset of correct", []int64{32, 33, 34}, 0},
		{"disjoint", []int64{31, 34}, 0},
		{"unanswered", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			exam := f.createExam(t, 3)
			answers := domain.AnswerSet{}
			if tc.selected != nil {
				answers[3] = tc.selected
			}
			result, err := f.service.Submit(ctx, "u1", exam.ID, answers)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if result.Score != tc.want {
				t.Fatalf("expected score %d, got %d", tc.want, result.Score)
			}
		})
	}
}

func TestSubmitUnknownExam(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), "u1", "missing", domain.AnswerSet{})
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitAfterWindowCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}})
	if !errors.Is(err, domain.ErrExamClosed) {
		t.Fatalf("expected exam closed, got %v", err)
	}
}

func TestSubmitAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {11}})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	subs, err := f.store.ListExamSubmissions(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission row, got %d", len(subs))
	}
}

func TestSubmitConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, dups := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrDuplicateSubmission):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || dups != attempts-1 {
		t.Fatalf("expected 1 winner and %d duplicates, got %d/%d", attempts-1, wins, dups)
	}
}

func TestProgressUpsertAndMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	if err := f.service.SaveProgress(ctx, "u1", exam.ID, domain.AnswerSet{1: {11}}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	// Rapid re-save: last write wins, empty selections are dropped.
	if err := f.service.SaveProgress(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}, 2: {}}); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	saved, err := f.service.LoadProgress(ctx, "u1", exam.ID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(saved) != 1 || len(saved[1]) != 1 || saved[1][0] != 10 {
		t.Fatalf("expected last draft {1:[10]}, got %v", saved)
	}
}

func TestProgressClearedBySubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	if err := f.service.SaveProgress(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	saved, err := f.service.LoadProgress(ctx, "u1", exam.ID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("expected empty draft after submission, got %v", saved)
	}
}

func TestActiveExamAbsenceIsNotAnError(t *testing.T) {
	f := newFixture(t)
	_, ok, err := f.service.ActiveExam(context.Background(), "u1")
	if err != nil {
		t.Fatalf("active exam: %v", err)
	}
	if ok {
		t.Fatal("expected no active exam")
	}
}

func TestActiveExamPrefersSoonestDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.CreateExam(ctx, app.ExamInput{
		Title:       "long window",
		EndDate:     baseTime.Add(14 * 24 * time.Hour),
		QuestionIDs: []int64{1},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	urgent, err := f.service.CreateExam(ctx, app.ExamInput{
		Title:       "urgent",
		EndDate:     baseTime.Add(2 * 24 * time.Hour),
		QuestionIDs: []int64{1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, ok, err := f.service.ActiveExam(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("active exam: ok=%v err=%v", ok, err)
	}
	if view.Exam.ID != urgent.ID {
		t.Fatalf("expected nearest deadline to win, got %q", view.Exam.Title)
	}
}

func TestActiveExamHidesCorrectnessUntilSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	if err := f.service.SaveProgress(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	view, ok, err := f.service.ActiveExam(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("active exam: ok=%v err=%v", ok, err)
	}
	if view.IsSubmitted || view.UserScore != nil {
		t.Fatalf("expected unsubmitted view, got %+v", view)
	}
	if len(view.Questions) != 2 || view.Revealed != nil {
		t.Fatalf("expected sanitized questions only, got %+v", view)
	}
	if len(view.SavedAnswers) != 1 {
		t.Fatalf("expected merged draft, got %v", view.SavedAnswers)
	}

	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}, 2: {20, 21}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, ok, err = f.service.ActiveExam(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("active exam after submit: ok=%v err=%v", ok, err)
	}
	if !view.IsSubmitted || view.UserScore == nil || *view.UserScore != 2 {
		t.Fatalf("expected submitted view with score 2, got %+v", view)
	}
	if len(view.Revealed) != 2 || view.Questions != nil {
		t.Fatalf("expected revealed questions after submission, got %+v", view)
	}
}

func TestLeaderboardOrdersByScoreThenTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	perfect := domain.AnswerSet{1: {10}, 2: {20, 21}}
	partial := domain.AnswerSet{1: {10}}

	// u2 reaches the top score first, u1 ties later, u3 trails.
	if _, err := f.service.Submit(ctx, "u2", exam.ID, perfect); err != nil {
		t.Fatalf("submit u2: %v", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.service.Submit(ctx, "u1", exam.ID, perfect); err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.service.Submit(ctx, "u3", exam.ID, partial); err != nil {
		t.Fatalf("submit u3: %v", err)
	}

	lb, err := f.service.Leaderboard(ctx, exam.ID, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	order := []string{lb.Entries[0].UserID, lb.Entries[1].UserID, lb.Entries[2].UserID}
	if order[0] != "u2" || order[1] != "u1" || order[2] != "u3" {
		t.Fatalf("expected [u2 u1 u3], got %v", order)
	}
	if lb.Entries[0].Rank != 1 || lb.Entries[1].Rank != 2 || lb.Entries[2].Rank != 3 {
		t.Fatalf("ranks not sequential: %+v", lb.Entries)
	}
	if lb.Entries[0].Name != "Youssef" || lb.Entries[0].Email != "youssef@example.com" {
		t.Fatalf("expected directory identity on entries, got %+v", lb.Entries[0])
	}
}

func TestLeaderboardUnknownExam(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Leaderboard(context.Background(), "missing", 0)
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFinalizeAwardsTopThreeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	perfect := domain.AnswerSet{1: {10}, 2: {20, 21}}
	good := domain.AnswerSet{1: {10}}
	submitters := []struct {
		user    string
		answers domain.AnswerSet
	}{
		{"u1", perfect},
		{"u2", perfect},
		{"u3", good},
		{"u4", good},
		{"u5", domain.AnswerSet{}},
	}
	for _, s := range submitters {
		if _, err := f.service.Submit(ctx, s.user, exam.ID, s.answers); err != nil {
			t.Fatalf("submit %s: %v", s.user, err)
		}
		f.clock.Advance(time.Minute)
	}

	report, err := f.service.Finalize(ctx, exam.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if report.Awarded != 3 || len(report.Podium) != 3 {
		t.Fatalf("expected 3 fresh badges, got %+v", report)
	}
	want := []domain.Badge{
		{UserID: "u1", ExamID: exam.ID, Type: domain.BadgeGold},
		{UserID: "u2", ExamID: exam.ID, Type: domain.BadgeSilver},
		{UserID: "u3", ExamID: exam.ID, Type: domain.BadgeBronze},
	}
	for i, badge := range want {
		if report.Podium[i] != badge {
			t.Fatalf("podium[%d]: expected %+v, got %+v", i, badge, report.Podium[i])
		}
	}

	// The exam is force-closed: late submits now fail.
	f.clock.Advance(time.Second)
	if _, err := f.service.Submit(ctx, "u1", exam.ID, perfect); !errors.Is(err, domain.ErrExamClosed) {
		t.Fatalf("expected closed after finalize, got %v", err)
	}

	// Re-running finalize never mints extra trophies.
	report, err = f.service.Finalize(ctx, exam.ID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if report.Awarded != 0 {
		t.Fatalf("expected no new badges, got %d", report.Awarded)
	}
	badges, err := f.store.ListExamBadges(ctx, exam.ID)
	if err != nil {
		t.Fatalf("list badges: %v", err)
	}
	if len(badges) != 3 {
		t.Fatalf("expected 3 badges total, got %d", len(badges))
	}
}

func TestFinalizeWithFewerThanThreeSubmitters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	report, err := f.service.Finalize(ctx, exam.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(report.Podium) != 1 || report.Podium[0].Type != domain.BadgeGold {
		t.Fatalf("expected a single gold badge, got %+v", report.Podium)
	}
}

func TestUpdateExamReplacesQuestionSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	updated, err := f.service.UpdateExam(ctx, exam.ID, app.ExamInput{
		Title:       exam.Title,
		EndDate:     exam.EndDate,
		QuestionIDs: []int64{3},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.QuestionIDs) != 1 || updated.QuestionIDs[0] != 3 {
		t.Fatalf("expected question set replaced, got %v", updated.QuestionIDs)
	}
}

func TestDeleteExamCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1)

	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.Finalize(ctx, exam.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := f.service.DeleteExam(ctx, exam.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := f.service.Leaderboard(ctx, exam.ID, 0); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam gone, got %v", err)
	}
	badges, err := f.service.BadgesFor(ctx, "u1")
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if len(badges) != 0 {
		t.Fatalf("expected badges cascaded away, got %v", badges)
	}
}

func TestHistoryListsScoredExams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 2)

	if _, err := f.service.Submit(ctx, "u1", exam.ID, domain.AnswerSet{1: {10}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	history, err := f.service.History(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ExamTitle != "Examen hebdomadaire" || entry.Score != 1 || entry.Total != 2 {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
}
