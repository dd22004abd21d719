package vaporlight

// The manager is the sole creation path for overlays.  It guarantees at
// most one live overlay per token, even when several sessions present the
// same token at once, and it applies the persistence rule when a session
// lets go of its overlay.

import (
	"sync"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

// Manager maps token secrets to their live overlays
type Manager struct {
	table TokenTable
	mixer *Mixer

	overlays map[TokenSecret]*Overlay
	seq      uint64

	sync.Mutex
}

// NewManager creates the registry shared by all sessions.  Like the mixer
// there is exactly one, owned by the gateway.
func NewManager(table TokenTable, mixer *Mixer) (mgr *Manager) {
	return &Manager{
		table:    table,
		mixer:    mixer,
		overlays: map[TokenSecret]*Overlay{},
	}
}

// GetOverlay resolves a token secret to its overlay, creating one when no
// live overlay exists for the token.  Two sessions racing on the same
// secret always resolve to the same instance.  Unknown secrets return an
// error, the caller treats that as a silent no-auth state rather than
// tearing the connection down.
func (mgr *Manager) GetOverlay(secret TokenSecret) (ov *Overlay, err errors.Error) {
	token, known := mgr.table.Lookup(secret)
	if !known {
		return nil, errors.New("security violation unknown token").
			With("stack", stack.Trace().TrimRuntime())
	}

	mgr.Lock()
	defer mgr.Unlock()

	if existing, found := mgr.overlays[secret]; found && existing.isLive() {
		return existing, nil
	}

	mgr.seq++
	ov = &Overlay{
		token:  token,
		seq:    mgr.seq,
		mixer:  mgr.mixer,
		colors: map[uint16]Color{},
		live:   true,
	}
	mgr.overlays[secret] = ov
	mgr.mixer.register(ov)
	return ov, nil
}

// Release is called when a session disconnects or re-authenticates away
// from its overlay.  Non persistent overlays are freed, persistent ones
// stay live and will be handed back on the next GetOverlay with the same
// token.
func (mgr *Manager) Release(ov *Overlay) {
	if ov == nil || ov.Token().Persistent {
		return
	}

	ov.Free()

	mgr.Lock()
	if mgr.overlays[ov.Token().Secret] == ov {
		delete(mgr.overlays, ov.Token().Secret)
	}
	mgr.Unlock()
}
