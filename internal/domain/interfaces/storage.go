package interfaces

import domaintypes "dialogcore/internal/domain/types"

// Storage is the trait of spec.md §4.2. Two conforming implementations
// exist: an ephemeral in-memory backend and an on-disk SQL backend.
type Storage interface {
	PutGroup(group domaintypes.Group) error
	GetGroup(groupID domaintypes.GroupID) (domaintypes.Group, bool, error)
	ListGroups() ([]domaintypes.Group, error)
	DeleteGroup(groupID domaintypes.GroupID) error

	// PutMessage is idempotent on message.EventID.
	PutMessage(groupID domaintypes.GroupID, message domaintypes.Message) (domaintypes.PutMessageStatus, error)
	ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error)
	ListAllMessageEventIDs() ([]domaintypes.EventID, error)

	PutPendingInvite(invite domaintypes.PendingInvite) error
	ListPendingInvites() ([]domaintypes.PendingInvite, error)
	DeletePendingInvite(welcomeEventID domaintypes.EventID) error

	PutKeyPackageRecord(record domaintypes.KeyPackageRecord) error
	ListKeyPackageRecords() ([]domaintypes.KeyPackageRecord, error)

	PutContact(contact domaintypes.Contact) error
	ListContacts() ([]domaintypes.Contact, error)

	Close() error
}
