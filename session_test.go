package vaporlight

import (
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/karlmutch/errors"
)

// testSession runs a session over an in-memory pipe and returns the client
// end of the connection
func testSession(t *testing.T, mgr *Manager) (client net.Conn, done chan struct{}) {
	t.Helper()

	client, server := net.Pipe()

	errorC := make(chan errors.Error, 16)
	quitC := make(chan struct{})
	done = make(chan struct{})

	go func() {
		defer close(done)
		NewSession(server, mgr).Run(errorC, quitC)
	}()

	t.Cleanup(func() {
		close(quitC)
		client.Close()
		<-done
	})
	return client, done
}

func writeMsg(t *testing.T, conn net.Conn, msg Message) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(Encode(msg)); err != nil {
		t.Fatalf("write %#v: %v", msg, err)
	}
}

func TestSessionAuthThenSet(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10})
	client, _ := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 3, Color: red})
	writeMsg(t, client, SetLEDHiMsg{LED: 4, Color: blue})

	waitFor(t, "both sets to land in the frame", func() bool {
		frame := mixer.Composite(time.Now())
		return frame.Colors[3] == red && frame.Colors[4] == blue
	})
}

func TestSessionUnauthenticatedOpsAreNoops(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10})
	client, _ := testSession(t, mgr)

	// State pushed before auth is dropped on purpose
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
	writeMsg(t, client, StrobeMsg{})

	// The auth behind it still succeeds, proving the session survived
	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 1, Color: blue})

	waitFor(t, "the authenticated set", func() bool {
		return mixer.Composite(time.Now()).Colors[1] == blue
	})

	if mixer.Composite(time.Now()).Colors[0] != (Color{}) {
		t.Fatal("a set sent before auth must not reach any overlay")
	}
}

func TestSessionUnknownTokenStaysUnauthenticated(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10})
	client, _ := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "wrong")})
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})

	// A later valid auth must still be possible
	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 1, Color: blue})

	waitFor(t, "the set after the retried auth", func() bool {
		return mixer.Composite(time.Now()).Colors[1] == blue
	})
	if mixer.Composite(time.Now()).Colors[0] != (Color{}) {
		t.Fatal("set between failed and successful auth leaked through")
	}
}

func TestSessionReauthReleasesPriorOverlay(t *testing.T) {
	mgr, mixer := testRig(t, 8,
		TokenEntry{Token: "alpha", Priority: 10},
		TokenEntry{Token: "beta", Priority: 10})
	client, _ := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
	waitFor(t, "the first overlay contribution", func() bool {
		return mixer.Composite(time.Now()).Colors[0] == red
	})

	// Re-auth to a different token frees the non-persistent overlay
	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "beta")})
	writeMsg(t, client, SetLEDMsg{LED: 1, Color: blue})

	waitFor(t, "the second overlay contribution", func() bool {
		frame := mixer.Composite(time.Now())
		return frame.Colors[1] == blue && frame.Colors[0] == (Color{})
	})
}

func TestSessionDisconnectFreesNonPersistent(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10})
	client, done := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
	waitFor(t, "the contribution before disconnect", func() bool {
		return mixer.Composite(time.Now()).Colors[0] == red
	})

	client.Close()
	<-done

	if frame := mixer.Composite(time.Now()); frame.Colors[0] != (Color{}) {
		t.Fatal("disconnect should free a non-persistent overlay")
	}
}

func TestSessionDisconnectKeepsPersistent(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10, Persistent: true})
	client, done := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
	waitFor(t, "the contribution before disconnect", func() bool {
		return mixer.Composite(time.Now()).Colors[0] == red
	})

	client.Close()
	<-done

	if frame := mixer.Composite(time.Now()); frame.Colors[0] != red {
		t.Fatal("persistent overlay must survive its sessions disconnect")
	}

	// A new session with the same token picks the state back up
	client2, _ := testSession(t, mgr)
	writeMsg(t, client2, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client2, SetLEDMsg{LED: 1, Color: blue})
	waitFor(t, "the reconnected session to extend the old state", func() bool {
		frame := mixer.Composite(time.Now())
		return frame.Colors[0] == red && frame.Colors[1] == blue
	})
}

func TestSessionProtocolViolationClosesConnection(t *testing.T) {
	mgr, mixer := testRig(t, 8, TokenEntry{Token: "alpha", Priority: 10})
	client, done := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
	waitFor(t, "the contribution before the violation", func() bool {
		return mixer.Composite(time.Now()).Colors[0] == red
	})

	// 0x04 is not an opcode, the session must terminate
	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte{0x04})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close on a protocol violation")
	}

	// The overlay was released like any other disconnect
	if frame := mixer.Composite(time.Now()); frame.Colors[0] != (Color{}) {
		t.Fatal("violation teardown did not release the overlay")
	}
}

func TestSessionChurnLeavesNoGoroutines(t *testing.T) {
	mgr, _ := testRig(t, 4, TokenEntry{Token: "alpha", Priority: 10})

	errorC := make(chan errors.Error, 16)
	quitC := make(chan struct{})
	defer close(quitC)

	before := runtime.NumGoroutine()

	// Many short lived connections against a daemon that keeps running
	const churn = 100
	for i := 0; i < churn; i++ {
		client, server := net.Pipe()

		done := make(chan struct{})
		go func() {
			defer close(done)
			NewSession(server, mgr).Run(errorC, quitC)
		}()

		writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
		writeMsg(t, client, SetLEDMsg{LED: 0, Color: red})
		client.Close()
		<-done
	}

	// Give exited sessions a moment to unwind their watchers
	waitFor(t, "session goroutines to drain", func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= before+2
	})
}

func TestSessionOutOfRangeSetIsNotFatal(t *testing.T) {
	mgr, mixer := testRig(t, 4, TokenEntry{Token: "alpha", Priority: 10})
	client, _ := testSession(t, mgr)

	writeMsg(t, client, AuthMsg{Secret: testSecret(t, "alpha")})
	writeMsg(t, client, SetLEDMsg{LED: 1000, Color: red})
	writeMsg(t, client, SetLEDMsg{LED: 1, Color: blue})

	waitFor(t, "the in-range set after the rejected one", func() bool {
		return mixer.Composite(time.Now()).Colors[1] == blue
	})
}
