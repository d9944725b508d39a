package statusws

import "github.com/roach88/fieldsync/internal/engine"

// mailbox is a bounded queue of status updates that never blocks the
// sender: when full, the oldest update is discarded.
type mailbox struct {
	ch chan engine.Status
}

func newMailbox(size int) *mailbox {
	if size < 1 {
		size = 1
	}
	return &mailbox{ch: make(chan engine.Status, size)}
}

// push enqueues s, evicting the oldest queued update if necessary.
func (m *mailbox) push(s engine.Status) {
	for {
		select {
		case m.ch <- s:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}
