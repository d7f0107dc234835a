package app

import (
	"sync"

	"weekly-exam-service/internal/domain"
)

// LeaderboardWatcher fans leaderboard snapshots out to in-process subscribers
// (the websocket transport). Slow consumers never block a publish: the stale
// snapshot is dropped and replaced with the latest one.
type LeaderboardWatcher struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardWatcher() *LeaderboardWatcher {
	return &LeaderboardWatcher{
		subs: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe returns a channel of snapshots for one exam. The caller must
// invoke the returned cancel function to avoid leaks.
func (w *LeaderboardWatcher) Subscribe(examID string) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	w.mu.Lock()
	if w.subs[examID] == nil {
		w.subs[examID] = make(map[chan domain.Leaderboard]struct{})
	}
	w.subs[examID][ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if set, ok := w.subs[examID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(w.subs, examID)
			}
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

// HasWatchers reports whether anyone is streaming this exam's board.
func (w *LeaderboardWatcher) HasWatchers(examID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs[examID]) > 0
}

// Publish delivers a snapshot to every subscriber of the exam.
func (w *LeaderboardWatcher) Publish(lb domain.Leaderboard) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs[lb.ExamID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
