package vaporlight

// The TCP listener.  Each accepted connection gets its own session
// goroutine, sessions run independently of each other and of the mixers
// output cycle.

import (
	stdErrors "errors"
	"net"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

// Server accepts client connections and hands each one to a session
type Server struct {
	listener net.Listener
	manager  *Manager
}

// NewServer starts listening on the configured address.  Use ":0" in tests
// for a random port, Addr reports what was bound.
func NewServer(listen string, manager *Manager) (server *Server, err errors.Error) {
	listener, errGo := net.Listen("tcp", listen)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("listen", listen).
			With("stack", stack.Trace().TrimRuntime())
	}
	return &Server{
		listener: listener,
		manager:  manager,
	}, nil
}

// Addr returns the bound listen address in host:port form
func (server *Server) Addr() string {
	return server.listener.Addr().String()
}

// Serve accepts connections until quitC closes.  An error on one
// connection never disturbs another, and nothing a client sends can take
// the accept loop down.
func (server *Server) Serve(errorC chan<- errors.Error, quitC <-chan struct{}) {

	go func() {
		<-quitC
		server.listener.Close()
	}()

	sessions := sync.WaitGroup{}
	defer sessions.Wait()

	for {
		conn, errGo := server.listener.Accept()
		if errGo != nil {
			select {
			case <-quitC:
				return
			default:
			}
			if stdErrors.Is(errGo, net.ErrClosed) {
				return
			}
			err := errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
			select {
			case errorC <- err:
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		sessions.Add(1)
		go func(conn net.Conn) {
			defer sessions.Done()
			NewSession(conn, server.manager).Run(errorC, quitC)
		}(conn)
	}
}
