// Package memzero overwrites derived AEAD keys, X25519 shared secrets and
// ephemeral scalars, and opened plaintexts once the mlsengine is done with
// them, so a later
// heap inspection or core dump doesn't find key material outliving its use.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros in a constant-time friendly way.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}

// All zeros every slice in bs, for the sites that hold more than one piece
// of key material at once (an ephemeral X25519 scalar and the shared secret
// derived with it).
func All(bs ...[]byte) {
	for _, b := range bs {
		Zero(b)
	}
}
