// Package queue holds at most one pending prompt per tab while a generation
// turn is in flight, releasing it exactly once when the turn ends.
package queue

import (
	"errors"
	"sync"
)

// ErrAlreadyQueued is returned when a tab's slot is already occupied.
var ErrAlreadyQueued = errors.New("a message is already queued for this tab")

// Queue is a single-slot-per-tab prompt buffer. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending map[string]string
}

func New() *Queue {
	return &Queue{pending: make(map[string]string)}
}

// Put stores prompt in the tab's slot. It fails with ErrAlreadyQueued if the
// slot is occupied; the caller surfaces the rejection to the user.
func (q *Queue) Put(tabID, prompt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[tabID]; ok {
		return ErrAlreadyQueued
	}
	q.pending[tabID] = prompt
	return nil
}

// Take removes and returns the tab's pending prompt. The second return is
// false when the slot is empty. A taken prompt can never be taken again.
func (q *Queue) Take(tabID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prompt, ok := q.pending[tabID]
	if ok {
		delete(q.pending, tabID)
	}
	return prompt, ok
}

// Peek reports the tab's pending prompt without releasing it.
func (q *Queue) Peek(tabID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prompt, ok := q.pending[tabID]
	return prompt, ok
}

// Drop discards the tab's pending prompt, if any. Used when the tab closes.
func (q *Queue) Drop(tabID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, tabID)
}
