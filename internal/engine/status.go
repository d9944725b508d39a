package engine

import (
	"slices"
	"sync"
)

// Status is the published state of the engine.
type Status string

const (
	// StatusIdle means online with no drain running.
	StatusIdle Status = "idle"
	// StatusSyncing means a drain pass is running.
	StatusSyncing Status = "syncing"
	// StatusOffline means the engine was told the network is unreachable.
	StatusOffline Status = "offline"
	// StatusError means online and idle, but the last pass left at least one
	// record pending because its dispatch failed.
	StatusError Status = "error"
)

type subscriber struct {
	id uint64
	fn func(Status)
}

// Status derives the current status. It has no side effects.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	switch {
	case !e.connected:
		return StatusOffline
	case e.draining:
		return StatusSyncing
	case e.lastPassFailed:
		return StatusError
	default:
		return StatusIdle
	}
}

// Subscribe registers fn and immediately calls it with the current status.
// The returned function removes exactly this registration; calling it more
// than once is harmless.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	e.notifyMu.Lock()
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})
	current := e.statusLocked()
	e.mu.Unlock()

	fn(current)
	e.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.subscribers = slices.DeleteFunc(e.subscribers, func(s subscriber) bool {
				return s.id == id
			})
		})
	}
}

// notify publishes the current status to every subscriber in registration
// order. The status is read and delivered under notifyMu, so concurrent
// publications never reach a subscriber out of order and the last status
// each subscriber sees is the engine's current one.
func (e *Engine) notify() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	current := e.statusLocked()
	subs := slices.Clone(e.subscribers)
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(current)
	}
}
