package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"weekly-exam-service/internal/domain"
)

type countingLoader struct {
	calls     int64
	questions []domain.Question
}

func (l *countingLoader) QuestionsForExam(context.Context, string, []int64) ([]domain.Question, error) {
	atomic.AddInt64(&l.calls, 1)
	return l.questions, nil
}

func TestQuestionCacheLoadsOnceWithinTTL(t *testing.T) {
	loader := &countingLoader{questions: []domain.Question{{ID: 1, Text: "q"}}}
	cache := NewQuestionCache(loader, time.Minute)

	now := t0
	cache.clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		questions, err := cache.QuestionsForExam(context.Background(), "e1", []int64{1})
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(questions) != 1 {
			t.Fatalf("expected one question, got %d", len(questions))
		}
	}
	if got := atomic.LoadInt64(&loader.calls); got != 1 {
		t.Fatalf("expected a single backing load, got %d", got)
	}
}

func TestQuestionCacheReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{questions: []domain.Question{{ID: 1}}}
	cache := NewQuestionCache(loader, time.Minute)

	now := t0
	cache.clock = func() time.Time { return now }

	if _, err := cache.QuestionsForExam(context.Background(), "e1", []int64{1}); err != nil {
		t.Fatalf("load: %v", err)
	}
	// Jitter extends the TTL by at most 10%, so two minutes is safely past it.
	now = now.Add(2 * time.Minute)
	if _, err := cache.QuestionsForExam(context.Background(), "e1", []int64{1}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := atomic.LoadInt64(&loader.calls); got != 2 {
		t.Fatalf("expected reload after expiry, got %d calls", got)
	}
}

func TestQuestionCacheKeysByExam(t *testing.T) {
	loader := &countingLoader{questions: []domain.Question{{ID: 1}}}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.QuestionsForExam(context.Background(), "e1", []int64{1}); err != nil {
		t.Fatalf("load e1: %v", err)
	}
	if _, err := cache.QuestionsForExam(context.Background(), "e2", []int64{1}); err != nil {
		t.Fatalf("load e2: %v", err)
	}
	if got := atomic.LoadInt64(&loader.calls); got != 2 {
		t.Fatalf("expected one load per exam, got %d", got)
	}
}
