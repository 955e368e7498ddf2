package comms

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// pendingCommand is the completion cell for one in-flight reply-awaiting
// command.
//
// Exactly one terminal transition occurs per cell: resolve, reject, or
// timeout (a rejection). The transition is guarded by a sync.Once so the
// losing path is a no-op. The expiry timer belongs to the monitor, not
// the cell: it is armed and stopped only under the monitor's lock.
type pendingCommand struct {
	token   string
	command string

	once    sync.Once
	done    chan struct{}
	payload json.RawMessage
	err     error

	// timer is guarded by ResponseMonitor.mu.
	timer *time.Timer
}

// resolve completes the cell with a reply payload.
// Reports whether this call performed the terminal transition.
func (p *pendingCommand) resolve(payload json.RawMessage) bool {
	won := false
	p.once.Do(func() {
		p.payload = payload
		close(p.done)
		won = true
	})
	return won
}

// reject completes the cell with an error.
// Reports whether this call performed the terminal transition.
func (p *pendingCommand) reject(err error) bool {
	won := false
	p.once.Do(func() {
		p.err = err
		close(p.done)
		won = true
	})
	return won
}

// wait blocks until the cell completes or the context is cancelled.
func (p *pendingCommand) wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.payload, p.err
	}
}

// ResponseMonitor tracks in-flight reply-awaiting commands by correlation
// token.
//
// The mapping is process-local and mutated only by the command
// dispatcher. Each entry carries its own expiry timer; whichever of
// resolve, reject, or timeout runs first wins and removes the entry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type ResponseMonitor struct {
	mu      sync.Mutex
	waiting map[string]*pendingCommand
}

// NewResponseMonitor creates an empty monitor.
func NewResponseMonitor() *ResponseMonitor {
	return &ResponseMonitor{
		waiting: make(map[string]*pendingCommand),
	}
}

// Track registers a command awaiting a correlated reply.
//
// After timeout elapses without resolution the cell is rejected with
// ErrCommandTimeout, removed from the mapping, and onTimeout (if non-nil)
// is invoked.
func (m *ResponseMonitor) Track(token, command string, timeout time.Duration, onTimeout func()) *pendingCommand {
	p := &pendingCommand{
		token:   token,
		command: command,
		done:    make(chan struct{}),
	}

	// The timer is armed and stored before the entry is visible to
	// Resolve/Cancel; those paths stop it under the same lock.
	m.mu.Lock()
	p.timer = time.AfterFunc(timeout, func() {
		m.remove(token)
		if p.reject(ErrCommandTimeout) && onTimeout != nil {
			onTimeout()
		}
	})
	m.waiting[token] = p
	m.mu.Unlock()

	return p
}

// Resolve completes the cell registered under token with the reply
// payload, provided its recorded command name matches. The entry is
// removed from the mapping on success.
//
// Reports whether a waiter was completed. Unknown tokens and command
// name mismatches return false; callers drop such replies.
func (m *ResponseMonitor) Resolve(token, command string, payload json.RawMessage) bool {
	m.mu.Lock()
	p, ok := m.waiting[token]
	if ok && p.command == command {
		delete(m.waiting, token)
		p.timer.Stop()
	} else {
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	return p.resolve(payload)
}

// Cancel rejects and removes the cell registered under token.
// Used when the waiter gives up before the timer fires.
func (m *ResponseMonitor) Cancel(token string, err error) {
	m.mu.Lock()
	p, ok := m.waiting[token]
	if ok {
		delete(m.waiting, token)
		p.timer.Stop()
	}
	m.mu.Unlock()

	if ok {
		p.reject(err)
	}
}

// PendingCount returns the number of in-flight commands.
func (m *ResponseMonitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// remove drops the entry for token without completing it.
func (m *ResponseMonitor) remove(token string) {
	m.mu.Lock()
	delete(m.waiting, token)
	m.mu.Unlock()
}
