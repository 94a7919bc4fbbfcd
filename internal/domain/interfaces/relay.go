package interfaces

import (
	"context"

	domaintypes "dialogcore/internal/domain/types"
)

// RelayClient is the connection lifecycle and event transport of spec.md §4.3.
type RelayClient interface {
	Connect(ctx context.Context, urls []string) error
	Disconnect() error
	Status() domaintypes.ConnectionStatus

	Publish(ctx context.Context, event domaintypes.Event) error

	// Subscribe installs a named filter set, atomically replacing any prior
	// subscription of the same name. It MUST be called with the complete
	// filter set — never incrementally.
	Subscribe(ctx context.Context, set domaintypes.FilterSet) error
	Unsubscribe(name string) error

	// Stream returns the single inbound event channel for this client. It is
	// safe to call once. Disconnect does not close the returned channel.
	Stream() <-chan domaintypes.InboundEvent
}
