// Package identity holds the long-lived signing keypair for this process.
//
// Nostr identities are secp256k1 keys; events are signed with a BIP-340
// Schnorr signature over the 32-byte x-only public key, the scheme this
// package implements with github.com/decred/dcrd/dcrec/secp256k1/v4.
package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
)

// Identity carries the secp256k1 keypair for one process run. It is never
// mutated once constructed.
type Identity struct {
	priv *secp256k1.PrivateKey
	pub  domaintypes.PublicIdentifier
}

// New constructs an Identity from an explicit 32-byte hex-encoded secret,
// or generates a fresh one when secret is empty.
func New(secret string) (*Identity, error) {
	var priv *secp256k1.PrivateKey
	if secret == "" {
		generated, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, errtyp.Wrap(errtyp.InvalidKey, "generating identity", err)
		}
		priv = generated
	} else {
		raw, err := hex.DecodeString(secret)
		if err != nil || len(raw) != 32 {
			return nil, errtyp.New(errtyp.InvalidKey, "secret must be 32 bytes hex-encoded")
		}
		priv = secp256k1.PrivKeyFromBytes(raw)
	}

	pub := domaintypes.PublicIdentifier(hex.EncodeToString(xOnlyBytes(priv)))

	return &Identity{priv: priv, pub: pub}, nil
}

func xOnlyBytes(priv *secp256k1.PrivateKey) []byte {
	return priv.PubKey().SerializeCompressed()[1:]
}

// Public returns the stable public identifier.
func (id *Identity) Public() domaintypes.PublicIdentifier {
	return id.pub
}

// Sign signs the canonical event serialization with BIP-340 Schnorr and
// returns the hex-encoded signature.
func (id *Identity) Sign(eventBytes []byte) (string, error) {
	digest := sha256.Sum256(eventBytes)
	sig, err := schnorr.Sign(id.priv, digest[:])
	if err != nil {
		return "", errtyp.Wrap(errtyp.InvalidKey, "signing event", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}
