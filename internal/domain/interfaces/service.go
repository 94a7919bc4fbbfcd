package interfaces

import (
	"context"

	domaintypes "dialogcore/internal/domain/types"
)

// Service is the public surface of spec.md §4.7.
type Service interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Status() domaintypes.ConnectionStatus

	PublishKeyPackages(ctx context.Context, count int) error
	RefreshKeyPackages(ctx context.Context) error

	AddContact(publicIdentifier domaintypes.PublicIdentifier, displayName string) error
	ListContacts() ([]domaintypes.Contact, error)

	CreateGroup(
		ctx context.Context,
		name string,
		members []domaintypes.PublicIdentifier,
		config domaintypes.GroupConfig,
	) (domaintypes.GroupID, error)

	ListPendingInvites() ([]domaintypes.PendingInvite, error)
	AcceptInvite(ctx context.Context, welcomeEventID domaintypes.EventID) error
	RejectInvite(welcomeEventID domaintypes.EventID) error

	ListGroups() ([]domaintypes.Group, error)
	GetGroup(groupID domaintypes.GroupID) (domaintypes.Group, error)

	ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error)
	SendMessage(ctx context.Context, groupID domaintypes.GroupID, content string) error
	// Resend re-publishes a message already committed to local state, for
	// the ConnectionError rollback path of spec.md §7.
	Resend(ctx context.Context, groupID domaintypes.GroupID, eventID domaintypes.EventID) error

	SubscribeUpdates() (<-chan domaintypes.Update, func())
}
