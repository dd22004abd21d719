package vaporlight

// One session exists per accepted connection.  It decodes the byte stream
// into messages and walks a small state machine, unauthenticated until a
// known token arrives, authenticated while it holds a live overlay, closed
// once the transport goes away or the stream violates the protocol.
//
// Set and strobe messages received before authentication are accepted and
// dropped on purpose, clients are allowed to stream state before their
// auth completes.

import (
	stdErrors "errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/karlmutch/errors"
)

type sessionState int

const (
	sessionUnauthenticated sessionState = iota
	sessionAuthenticated
	sessionClosed
)

// Session is the per connection protocol handler
type Session struct {
	conn    net.Conn
	manager *Manager

	state   sessionState
	overlay *Overlay

	// dropped counts set and strobe messages ignored while
	// unauthenticated
	dropped uint64
}

// NewSession wraps an accepted connection.  The registry is handed in at
// accept time, sessions never reach for shared state any other way.
func NewSession(conn net.Conn, manager *Manager) (session *Session) {
	return &Session{
		conn:    conn,
		manager: manager,
		state:   sessionUnauthenticated,
	}
}

// Run decodes and dispatches messages until the connection closes, the
// stream violates the protocol, or quitC closes.  It always releases the
// held overlay on the way out, which frees it unless its token is
// persistent.
func (session *Session) Run(errorC chan<- errors.Error, quitC <-chan struct{}) {

	doneC := make(chan struct{})

	defer func() {
		session.release()
		session.state = sessionClosed
		session.conn.Close()
		close(doneC)
	}()

	// Unblock the read below when the daemon shuts down.  The watcher
	// leaves with the session so connection churn cannot accumulate
	// goroutines for the daemons lifetime.
	go func() {
		select {
		case <-quitC:
			session.conn.Close()
		case <-doneC:
		}
	}()

	for {
		msg, errGo := ReadMessage(session.conn)
		if errGo != nil {
			if errGo == io.EOF ||
				stdErrors.Is(errGo, net.ErrClosed) ||
				stdErrors.Is(errGo, io.ErrClosedPipe) {
				return
			}
			// Anything else is a protocol violation or a dead
			// transport, fatal to this connection only
			err, ok := errGo.(errors.Error)
			if !ok {
				err = errors.Wrap(errGo)
			}
			select {
			case errorC <- err.With("remote", session.conn.RemoteAddr().String()):
			case <-time.After(100 * time.Millisecond):
			}
			return
		}
		session.dispatch(msg, errorC)
	}
}

// dispatch applies one decoded message to the session state machine
func (session *Session) dispatch(msg Message, errorC chan<- errors.Error) {
	switch m := msg.(type) {
	case AuthMsg:
		// Re-auth first lets go of whatever was held, then the new
		// token decides where we end up
		session.release()

		ov, err := session.manager.GetOverlay(m.Secret)
		if err != nil {
			// Unknown token, deliberately not fatal so clients can
			// retry their auth
			select {
			case errorC <- err.With("remote", session.conn.RemoteAddr().String()):
			case <-time.After(100 * time.Millisecond):
			}
			return
		}
		session.overlay = ov
		session.state = sessionAuthenticated

	case SetLEDMsg:
		session.set(m.LED, m.Color, errorC)

	case SetLEDHiMsg:
		session.set(m.LED, m.Color, errorC)

	case StrobeMsg:
		if session.state != sessionAuthenticated {
			atomic.AddUint64(&session.dropped, 1)
			return
		}
		session.overlay.Strobe()
	}
}

func (session *Session) set(led uint16, color Color, errorC chan<- errors.Error) {
	if session.state != sessionAuthenticated {
		atomic.AddUint64(&session.dropped, 1)
		return
	}
	if err := session.overlay.Set(led, color); err != nil {
		select {
		case errorC <- err.With("remote", session.conn.RemoteAddr().String()):
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// release drops the held overlay per its persistence rule and returns the
// session to the unauthenticated state.  Releasing while unauthenticated
// is a no-op.
func (session *Session) release() {
	if session.overlay == nil {
		return
	}
	session.manager.Release(session.overlay)
	session.overlay = nil
	if session.state == sessionAuthenticated {
		session.state = sessionUnauthenticated
	}
}
