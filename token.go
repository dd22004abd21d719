package vaporlight

// Tokens are the static shared secrets clients authenticate with.  Each one
// carries the arbitration priority of the overlay it owns and whether that
// overlay survives disconnects.  The table is loaded once at startup and
// never mutated afterwards.

import (
	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

// TokenLen is the wire length of a token secret
const TokenLen = 16

// TokenSecret is the raw 16 byte secret, usable directly as a map key
type TokenSecret [TokenLen]byte

// SecretFromString pads a configured secret string with NULs to the wire
// length, matching what the client libraries do before sending it
func SecretFromString(s string) (secret TokenSecret, err errors.Error) {
	if len(s) > TokenLen {
		return secret, errors.New("token secret too long").
			With("length", len(s)).With("limit", TokenLen).
			With("stack", stack.Trace().TrimRuntime())
	}
	copy(secret[:], s)
	return secret, nil
}

// Token is one entry of the token table
type Token struct {
	Secret     TokenSecret
	Priority   int
	Persistent bool
}

// TokenTable maps wire secrets to their configured entries, read only at
// runtime
type TokenTable map[TokenSecret]Token

// Lookup returns the token for a secret, known reports whether the secret
// is configured at all
func (t TokenTable) Lookup(secret TokenSecret) (token Token, known bool) {
	token, known = t[secret]
	return token, known
}
