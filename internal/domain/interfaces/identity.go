package interfaces

import domaintypes "dialogcore/internal/domain/types"

// Identity holds the long-lived signing keypair, derives the public
// identifier, and signs outbound events.
type Identity interface {
	Public() domaintypes.PublicIdentifier
	Sign(eventBytes []byte) (string, error)
}
