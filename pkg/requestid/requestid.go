// Package requestid generates the short, URL-safe request identifiers
// used to correlate a client request across every log line it produces.
// olla's equivalent, idgen.ShortID, favours memorable word pairs
// for human-facing CLI output; the gateway instead needs a fixed 8-hex
// format, so this is grounded in the same crypto/rand-backed approach
// rather than olla's word list.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
)

const length = 4 // bytes, rendered as 8 hex characters

// New returns an 8 lowercase hex character request ID. It never returns an
// error; crypto/rand.Read failing is treated as unrecoverable process
// state, matching how olla's own ID generator panics rather than
// threading an error through every call site that needs an ID.
func New() string {
	var buf [length]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("requestid: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}
