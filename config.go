package vaporlight

// This file contains the static configuration surface of the daemon.  A
// single YAML file carries the token table, the channel topology and the
// network endpoints.  Everything here is loaded once during startup and is
// read only from then on.

import (
	"io/ioutil"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"gopkg.in/yaml.v2"
)

// TokenEntry is one configured client token
type TokenEntry struct {
	Token      string `yaml:"token"`
	Priority   int    `yaml:"priority"`
	Persistent bool   `yaml:"persistent"`
}

// LEDEntry maps one logical LED onto physical bus coordinates.  The
// channels are matched positionally against red, green, blue and alpha, a
// three channel entry is an RGB sub pixel group on one module.
type LEDEntry struct {
	Module   uint8 `yaml:"module"`
	Channels []int `yaml:"channels"`
}

// Config is the static daemon configuration
type Config struct {
	// Listen is the TCP address clients connect to, defaults to :7534
	Listen string `yaml:"listen"`

	// Output selects the hardware sink by URL scheme, one of
	// serial:///dev/ttyUSB0, file:///tmp/frames.bin, tcp://host:port
	// for a bus protocol relay, or opc://host:port for fadecandy
	Output string `yaml:"output"`

	Tokens []TokenEntry `yaml:"tokens"`
	LEDs   []LEDEntry   `yaml:"leds"`
}

// LoadConfig reads and validates the daemon configuration file
func LoadConfig(fn string) (cfg *Config, err errors.Error) {
	data, errGo := ioutil.ReadFile(fn)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("file", fn).
			With("stack", stack.Trace().TrimRuntime())
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document
func ParseConfig(data []byte) (cfg *Config, err errors.Error) {
	cfg = &Config{}
	if errGo := yaml.Unmarshal(data, cfg); errGo != nil {
		return nil, errors.Wrap(errGo).
			With("stack", stack.Trace().TrimRuntime())
	}

	if cfg.Listen == "" {
		cfg.Listen = ":7534"
	}
	if len(cfg.Tokens) == 0 {
		return nil, errors.New("no tokens configured").
			With("stack", stack.Trace().TrimRuntime())
	}
	if len(cfg.LEDs) == 0 {
		return nil, errors.New("no leds configured").
			With("stack", stack.Trace().TrimRuntime())
	}
	return cfg, nil
}

// TokenTable builds the runtime token table from the configuration
func (cfg *Config) TokenTable() (table TokenTable, err errors.Error) {
	table = TokenTable{}
	for _, entry := range cfg.Tokens {
		secret, err := SecretFromString(entry.Token)
		if err != nil {
			return nil, err
		}
		if _, dup := table[secret]; dup {
			return nil, errors.New("duplicate token secret").
				With("token", entry.Token).
				With("stack", stack.Trace().TrimRuntime())
		}
		table[secret] = Token{
			Secret:     secret,
			Priority:   entry.Priority,
			Persistent: entry.Persistent,
		}
	}
	return table, nil
}

// BusCoord is one physical channel position on the hardware bus
type BusCoord struct {
	Module  uint8
	Channel int
}

// Topology is the read only mapping from logical LED indexes onto physical
// bus coordinates.  The mixer only needs its size for bounds checks, the
// sinks use the coordinates to expand frames into per module channel
// arrays.
type Topology struct {
	leds    [][]BusCoord
	modules map[uint8]int // channels needed per module
}

// Topology builds the runtime LED topology from the configuration
func (cfg *Config) Topology() (topo *Topology, err errors.Error) {
	topo = &Topology{
		leds:    make([][]BusCoord, 0, len(cfg.LEDs)),
		modules: map[uint8]int{},
	}
	for i, entry := range cfg.LEDs {
		if len(entry.Channels) == 0 || len(entry.Channels) > 4 {
			return nil, errors.New("led needs between 1 and 4 channels").
				With("led", i).With("channels", len(entry.Channels)).
				With("stack", stack.Trace().TrimRuntime())
		}
		coords := make([]BusCoord, 0, len(entry.Channels))
		for _, ch := range entry.Channels {
			if ch < 0 || ch > 0xff {
				return nil, errors.New("channel out of bus range").
					With("led", i).With("channel", ch).
					With("stack", stack.Trace().TrimRuntime())
			}
			coords = append(coords, BusCoord{Module: entry.Module, Channel: ch})
			if ch+1 > topo.modules[entry.Module] {
				topo.modules[entry.Module] = ch + 1
			}
		}
		topo.leds = append(topo.leds, coords)
	}
	return topo, nil
}

// Size returns the number of logical LEDs
func (topo *Topology) Size() int { return len(topo.leds) }

// Coords returns the physical coordinates of one logical LED
func (topo *Topology) Coords(led int) []BusCoord { return topo.leds[led] }

// Modules returns the channel count needed on each bus module
func (topo *Topology) Modules() map[uint8]int { return topo.modules }
