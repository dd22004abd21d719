package vaporlight

// An overlay is one authenticated clients pending contribution to the
// frame, a sparse LED to color map plus the priority copied from the token
// that owns it.  Overlays are created by the manager only, mutated by their
// owning session and read concurrently by the mixers composite pass.

import (
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

// StrobeDuration is how long the flash effect lasts after a strobe
// message.  The deadline is absolute, the composite pass checks it rather
// than running a timer per overlay.
const StrobeDuration = 120 * time.Millisecond

// rangeLogInterval rate limits the reporting of out of range set requests
// so a misconfigured client cannot flood the error channel
const rangeLogInterval = time.Second

// Overlay is a single clients color contribution.  The zero value is not
// usable, overlays are created through Manager.GetOverlay.
type Overlay struct {
	token Token

	// seq is the creation sequence number, used as the deterministic
	// tie break between overlays of equal priority
	seq uint64

	mixer *Mixer

	colors      map[uint16]Color
	strobeUntil time.Time
	live        bool
	rangeErrs   uint64
	lastRangeAt time.Time

	sync.Mutex
}

// Token returns the token that owns this overlay
func (ov *Overlay) Token() Token { return ov.token }

// Priority returns the arbitration priority, fixed at creation
func (ov *Overlay) Priority() int { return ov.token.Priority }

// Set stores or overwrites the steady color for one LED.  Indexes outside
// the configured topology are rejected with an error, the session logs and
// counts these and carries on, they are never fatal to the connection.
func (ov *Overlay) Set(led uint16, color Color) (err errors.Error) {
	if int(led) >= ov.mixer.Size() {
		ov.Lock()
		ov.rangeErrs++
		count := ov.rangeErrs
		muted := time.Since(ov.lastRangeAt) < rangeLogInterval
		if !muted {
			ov.lastRangeAt = time.Now()
		}
		ov.Unlock()

		if muted {
			return nil
		}
		return errors.New("led index out of range").
			With("led", led).With("leds", ov.mixer.Size()).
			With("dropped", count).
			With("stack", stack.Trace().TrimRuntime())
	}

	ov.Lock()
	if ov.live {
		ov.colors[led] = color
	}
	ov.Unlock()
	return nil
}

// Strobe starts the transient flash effect across every LED this overlay
// currently has set.  The steady colors are untouched and resume
// compositing once the deadline passes.
func (ov *Overlay) Strobe() {
	ov.Lock()
	ov.strobeUntil = time.Now().Add(StrobeDuration)
	ov.Unlock()

	// At least one composite runs while the flash is visible and one
	// more right after it ends, whatever the tick cadence
	ov.mixer.Kick()
	time.AfterFunc(StrobeDuration, ov.mixer.Kick)
}

// Free marks the overlay dead and removes it from the mixers active set.
// Freeing twice is a no-op, a session may disconnect long after it already
// re-authenticated away from this overlay.
func (ov *Overlay) Free() {
	ov.Lock()
	wasLive := ov.live
	ov.live = false
	ov.Unlock()

	if wasLive {
		ov.mixer.unregister(ov)
	}
}

// isLive reports whether the overlay still takes part in compositing
func (ov *Overlay) isLive() bool {
	ov.Lock()
	defer ov.Unlock()
	return ov.live
}

// contribute offers this overlays entries to a composite pass.  The
// callback runs with the overlay lock held so each entry is read
// atomically, now decides whether the strobe flash is still active.
func (ov *Overlay) contribute(now time.Time, apply func(led uint16, color Color)) {
	ov.Lock()
	defer ov.Unlock()

	if !ov.live {
		return
	}
	flashing := now.Before(ov.strobeUntil)
	for led, color := range ov.colors {
		if flashing {
			color = color.Flash()
		}
		apply(led, color)
	}
}
