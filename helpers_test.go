package vaporlight

import (
	"testing"
	"time"
)

// testRig builds a manager and mixer over a synthetic topology of numLEDs
// RGB LEDs on module 0
func testRig(t *testing.T, numLEDs int, tokens ...TokenEntry) (mgr *Manager, mixer *Mixer) {
	t.Helper()

	cfg := &Config{
		Listen: ":0",
		Tokens: tokens,
	}
	for i := 0; i < numLEDs; i++ {
		cfg.LEDs = append(cfg.LEDs, LEDEntry{
			Module:   0,
			Channels: []int{i * 3, i*3 + 1, i*3 + 2},
		})
	}

	table, err := cfg.TokenTable()
	if err != nil {
		t.Fatal(err)
	}
	topo, err := cfg.Topology()
	if err != nil {
		t.Fatal(err)
	}

	mixer = NewMixer(topo)
	return NewManager(table, mixer), mixer
}

func testSecret(t *testing.T, s string) TokenSecret {
	t.Helper()
	secret, err := SecretFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return secret
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var (
	red  = ColorFrom8(0xff, 0x00, 0x00, 0xff)
	blue = ColorFrom8(0x00, 0x00, 0xff, 0xff)
)
