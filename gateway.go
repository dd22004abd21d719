package vaporlight

// This module wires the daemon together, configuration to token table and
// topology, the shared mixer and manager, the client facing TCP server and
// the hardware sink.  Everything is constructed here at startup and torn
// down when quitC closes, nothing lives in package level state.

import (
	"time"

	"github.com/karlmutch/errors"
)

// Gateway owns the runtime pieces of the daemon
type Gateway struct {
	cfg *Config

	mixer   *Mixer
	manager *Manager
	server  *Server
	sink    Sink
}

// NewGateway validates the configuration and builds the runtime state
func NewGateway(cfg *Config) (gw *Gateway, err errors.Error) {
	table, err := cfg.TokenTable()
	if err != nil {
		return nil, err
	}
	topo, err := cfg.Topology()
	if err != nil {
		return nil, err
	}

	gw = &Gateway{cfg: cfg}
	gw.mixer = NewMixer(topo)
	gw.manager = NewManager(table, gw.mixer)

	if cfg.Output != "" {
		if gw.sink, err = NewSink(cfg.Output, topo); err != nil {
			return nil, err
		}
	}

	if gw.server, err = NewServer(cfg.Listen, gw.manager); err != nil {
		if gw.sink != nil {
			gw.sink.Close()
		}
		return nil, err
	}
	return gw, nil
}

// Addr returns the address the client server is bound to
func (gw *Gateway) Addr() string { return gw.server.Addr() }

// Mixer exposes the compositing engine, used by monitors that subscribe
// to finished frames
func (gw *Gateway) Mixer() *Mixer { return gw.mixer }

// Start launches the accept loop and the composite cycle.  It returns
// immediately, both run until quitC closes.
func (gw *Gateway) Start(refresh time.Duration, errorC chan<- errors.Error, quitC <-chan struct{}) {
	go gw.mixer.Run(refresh, gw.sink, errorC, quitC)
	go gw.server.Serve(errorC, quitC)

	go func() {
		<-quitC
		if gw.sink != nil {
			gw.sink.Close()
		}
	}()
}
