// Package wireevent builds and signs the Nostr envelope of spec.md §6.1.
package wireevent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mr-tron/base58"

	domaintypes "dialogcore/internal/domain/types"
)

// Canonical returns the canonical serialization an event id is hashed over:
// the NIP-01 array [0, pubkey, created_at, kind, tags, content].
func Canonical(e domaintypes.Event) ([]byte, error) {
	tags := make([][]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = []string(t)
	}
	arr := []any{0, string(e.PubKey), e.CreatedAt, e.Kind, tags, e.Content}
	return json.Marshal(arr)
}

// ID computes the event id: the hex-encoded sha256 of the canonical serialization.
func ID(e domaintypes.Event) (domaintypes.EventID, error) {
	raw, err := Canonical(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return domaintypes.EventID(hex.EncodeToString(sum[:])), nil
}

// Classify maps a wire kind number onto the conceptual kind table of spec.md §6.1.
func Classify(kind int) domaintypes.EventKind {
	switch kind {
	case domaintypes.WireKindKeyPackage:
		return domaintypes.KindKeyPackage
	case domaintypes.WireKindGiftWrap:
		return domaintypes.KindWelcome
	case domaintypes.WireKindGroupMessage:
		return domaintypes.KindGroupMessage
	case domaintypes.WireKindGroupEvolution:
		return domaintypes.KindGroupEvolution
	default:
		return domaintypes.KindUnknown
	}
}

// ShortID renders the first 6 bytes of a hex-encoded id (an EventID,
// GroupID or PublicIdentifier) as base58, purely for compact log lines —
// it carries no protocol meaning and is never parsed back.
func ShortID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	if len(raw) > 6 {
		raw = raw[:6]
	}
	return base58.Encode(raw)
}

// Signer is the minimal contract wireevent needs from an identity.
type Signer interface {
	Public() domaintypes.PublicIdentifier
	Sign(eventBytes []byte) (string, error)
}

// Build fills in PubKey, ID and Sig for an otherwise-complete event.
func Build(signer Signer, kind int, tags []domaintypes.Tag, content string, createdAt int64) (domaintypes.Event, error) {
	e := domaintypes.Event{
		PubKey:    signer.Public(),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	raw, err := Canonical(e)
	if err != nil {
		return domaintypes.Event{}, err
	}
	sum := sha256.Sum256(raw)
	e.ID = domaintypes.EventID(hex.EncodeToString(sum[:]))
	sig, err := signer.Sign(raw)
	if err != nil {
		return domaintypes.Event{}, err
	}
	e.Sig = sig
	return e, nil
}
