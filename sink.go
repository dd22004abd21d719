package vaporlight

// Hardware output sinks.  The output URL scheme selects the transport,
// opc://host:port for fadecandy style servers, tcp://host:port for a bus
// protocol relay or the emulator, serial:///dev/ttyUSB0 for the real LED
// boards, file:///path for capturing bus traffic.
//
// Sinks consume finished frames and nothing else.  A sink that cannot
// deliver reports an error and the compositing core carries on, network
// sinks redial with a minimum interval between attempts.

import (
	"net"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/kellydunn/go-opc"
)

// Sink consumes composited frames
type Sink interface {
	Send(frame Frame) (err errors.Error)
	Close()
}

// redialInterval is the minimum time between reconnect attempts for the
// network sinks
const redialInterval = 2 * time.Second

// NewSink opens the output backend selected by the URL
func NewSink(output string, topo *Topology) (sink Sink, err errors.Error) {
	target, errGo := url.Parse(output)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("output", output).
			With("stack", stack.Trace().TrimRuntime())
	}

	switch target.Scheme {
	case "opc":
		return newOPCSink(target.Host), nil
	case "tcp":
		return newBusNetSink(target.Host, topo), nil
	case "serial", "file":
		f, errGo := os.OpenFile(target.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if errGo != nil {
			return nil, errors.Wrap(errGo).With("output", output).
				With("stack", stack.Trace().TrimRuntime())
		}
		return &busFileSink{topo: topo, f: f}, nil
	default:
		return nil, errors.New("unknown output scheme").
			With("output", output).With("scheme", target.Scheme).
			With("stack", stack.Trace().TrimRuntime())
	}
}

// opcSink forwards frames to an Open Pixel Control server such as the
// fadecandy daemon.  Channel 0, one RGB pixel per logical LED, the bus
// topology does not apply on this transport.
type opcSink struct {
	server string

	client   *opc.Client
	lastDial time.Time

	sync.Mutex
}

func newOPCSink(server string) (sink *opcSink) {
	return &opcSink{
		server: server,
	}
}

func (sink *opcSink) Send(frame Frame) (err errors.Error) {
	sink.Lock()
	defer sink.Unlock()

	if sink.client == nil {
		if time.Since(sink.lastDial) < redialInterval {
			return nil
		}
		sink.lastDial = time.Now()

		oc := opc.NewClient()
		if errGo := oc.Connect("tcp", sink.server); errGo != nil {
			return errors.Wrap(errGo).With("server", sink.server).
				With("stack", stack.Trace().TrimRuntime())
		}
		sink.client = oc
	}

	m := opc.NewMessage(0)
	m.SetLength(uint16(len(frame.Colors) * 3))
	for i, color := range frame.Colors {
		channels := color.Channels8()
		m.SetPixelColor(i, channels[0], channels[1], channels[2])
	}

	if errGo := sink.client.Send(m); errGo != nil {
		sink.client = nil
		return errors.Wrap(errGo).With("server", sink.server).
			With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

func (sink *opcSink) Close() {
	sink.Lock()
	sink.client = nil
	sink.Unlock()
}

// busFrames encodes a complete frame update as bus protocol bytes, the
// per module channel commands in module order followed by the broadcast
// strobe
func busFrames(topo *Topology, frame Frame) (buf []byte) {
	modules := ExpandFrame(topo, frame)
	ids := make([]int, 0, len(modules))
	for module := range modules {
		ids = append(ids, int(module))
	}
	sort.Ints(ids)
	for _, id := range ids {
		buf = append(buf, BusSetChannels(uint8(id), modules[uint8(id)])...)
	}
	return append(buf, BusStrobe()...)
}

// busNetSink relays bus protocol frames over TCP, the transport the
// emulator listens on
type busNetSink struct {
	server string
	topo   *Topology

	conn     net.Conn
	lastDial time.Time

	sync.Mutex
}

func newBusNetSink(server string, topo *Topology) (sink *busNetSink) {
	return &busNetSink{
		server: server,
		topo:   topo,
	}
}

func (sink *busNetSink) Send(frame Frame) (err errors.Error) {
	sink.Lock()
	defer sink.Unlock()

	if sink.conn == nil {
		if time.Since(sink.lastDial) < redialInterval {
			return nil
		}
		sink.lastDial = time.Now()

		conn, errGo := net.Dial("tcp", sink.server)
		if errGo != nil {
			return errors.Wrap(errGo).With("server", sink.server).
				With("stack", stack.Trace().TrimRuntime())
		}
		sink.conn = conn
	}

	if _, errGo := sink.conn.Write(busFrames(sink.topo, frame)); errGo != nil {
		sink.conn.Close()
		sink.conn = nil
		return errors.Wrap(errGo).With("server", sink.server).
			With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

func (sink *busNetSink) Close() {
	sink.Lock()
	if sink.conn != nil {
		sink.conn.Close()
		sink.conn = nil
	}
	sink.Unlock()
}

// busFileSink writes bus protocol frames to a file or a serial device
// node.  Line discipline for real serial hardware is left to the operator,
// the daemon treats the device as a plain byte sink exactly as the
// original router treated its tty.
type busFileSink struct {
	topo *Topology
	f    *os.File

	sync.Mutex
}

func (sink *busFileSink) Send(frame Frame) (err errors.Error) {
	sink.Lock()
	defer sink.Unlock()

	if _, errGo := sink.f.Write(busFrames(sink.topo, frame)); errGo != nil {
		return errors.Wrap(errGo).With("file", sink.f.Name()).
			With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

func (sink *busFileSink) Close() {
	sink.Lock()
	sink.f.Close()
	sink.Unlock()
}
