package vaporlight

// The mixer owns the set of live overlays and composites them into the one
// authoritative frame.  For every logical LED the entry from the highest
// priority contributing overlay wins, ties go to the most recently created
// overlay, and LEDs nobody contributes to fall back to black.
//
// The frame is recomputed on a periodic tick plus immediately after every
// strobe so flashes are always observable.  A frame identical to the last
// one sent is not pushed to the sink again, which keeps slow serial links
// free for frames that actually change something.

import (
	"bytes"
	"sync"
	"time"

	"github.com/cnf/structhash"
	"github.com/karlmutch/errors"
)

// Frame is the resolved mapping from every logical LED to its final color
type Frame struct {
	Colors []Color
}

// Mixer composites live overlays into frames and fans finished frames out
// to the hardware sink and any subscribed monitors
type Mixer struct {
	topo *Topology

	overlays map[*Overlay]struct{}
	subs     []chan Frame
	kickC    chan struct{}

	sync.Mutex
}

// NewMixer creates a mixer for the configured topology.  One mixer exists
// per daemon, created at startup and torn down at shutdown.
func NewMixer(topo *Topology) (mixer *Mixer) {
	return &Mixer{
		topo:     topo,
		overlays: map[*Overlay]struct{}{},
		kickC:    make(chan struct{}, 1),
	}
}

// Size returns the logical LED index space used for bounds checks
func (mixer *Mixer) Size() int { return mixer.topo.Size() }

// Kick requests an immediate composite from the run loop without waiting
// for the next tick.  Safe to call from any goroutine, extra kicks while
// one is already pending collapse into it.
func (mixer *Mixer) Kick() {
	select {
	case mixer.kickC <- struct{}{}:
	default:
	}
}

func (mixer *Mixer) register(ov *Overlay) {
	mixer.Lock()
	mixer.overlays[ov] = struct{}{}
	mixer.Unlock()
}

func (mixer *Mixer) unregister(ov *Overlay) {
	mixer.Lock()
	delete(mixer.overlays, ov)
	mixer.Unlock()
}

// Subscribe adds a listener that receives every composited frame.  Sends
// never block the mixer, a subscriber that is not keeping up misses frames
// rather than stalling the output path.
func (mixer *Mixer) Subscribe() (frameC chan Frame) {
	frameC = make(chan Frame, 1)
	mixer.Lock()
	mixer.subs = append(mixer.subs, frameC)
	mixer.Unlock()
	return frameC
}

// candidate tracks the winning contribution for one LED during a pass
type candidate struct {
	set      bool
	priority int
	seq      uint64
	color    Color
}

// Composite resolves all live overlays into a fresh frame.  Each LED is
// decided atomically with respect to its own inputs, every overlays
// entries are read under that overlays lock.
func (mixer *Mixer) Composite(now time.Time) (frame Frame) {
	mixer.Lock()
	live := make([]*Overlay, 0, len(mixer.overlays))
	for ov := range mixer.overlays {
		live = append(live, ov)
	}
	mixer.Unlock()

	winners := make([]candidate, mixer.topo.Size())
	for _, ov := range live {
		priority := ov.Priority()
		seq := ov.seq
		ov.contribute(now, func(led uint16, color Color) {
			if int(led) >= len(winners) {
				return
			}
			w := &winners[led]
			if w.set {
				if priority < w.priority {
					return
				}
				if priority == w.priority && seq < w.seq {
					return
				}
			}
			*w = candidate{set: true, priority: priority, seq: seq, color: color}
		})
	}

	frame = Frame{Colors: make([]Color, len(winners))}
	for i, w := range winners {
		if w.set {
			frame.Colors[i] = w.color
		}
		// unset LEDs keep the zero value, off
	}
	return frame
}

// Run drives the composite and output cycle until quitC closes.  Sink
// failures are reported and the loop carries on, the daemon stays correct
// with nobody consuming frames.
func (mixer *Mixer) Run(refresh time.Duration, sink Sink, errorC chan<- errors.Error, quitC <-chan struct{}) {

	last := []byte{}

	tick := time.NewTicker(refresh)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
		case <-mixer.kickC:
		case <-quitC:
			return
		}

		frame := mixer.Composite(time.Now())

		hash := structhash.Md5(frame, 1)
		if bytes.Equal(last, hash) {
			continue
		}
		last = hash

		if sink != nil {
			if err := sink.Send(frame); err != nil {
				select {
				case errorC <- err:
				case <-time.After(100 * time.Millisecond):
				}
				// Resend once the sink recovers, even if the frame
				// does not change again in the meantime
				last = []byte{}
			}
		}

		mixer.Lock()
		subs := append([]chan Frame{}, mixer.subs...)
		mixer.Unlock()
		for _, sub := range subs {
			select {
			case sub <- frame:
			default:
			}
		}
	}
}
