package interfaces

import domaintypes "dialogcore/internal/domain/types"

// ProcessResultKind discriminates what process_message produced.
type ProcessResultKind int

const (
	ProcessDecrypted ProcessResultKind = iota
	ProcessEvolutionApplied
	ProcessIgnored
)

// ProcessResult is the outcome of MLSEngine.ProcessMessage.
type ProcessResult struct {
	Kind     ProcessResultKind
	Message  domaintypes.Message  // set when Kind == ProcessDecrypted
	GroupID  domaintypes.GroupID  // set when Kind != ProcessIgnored
	NewEpoch uint64               // set when Kind == ProcessEvolutionApplied
}

// CreateGroupResult is the outcome of MLSEngine.CreateGroup.
type CreateGroupResult struct {
	GroupID         domaintypes.GroupID
	NostrGroupID    domaintypes.NostrGroupID
	WelcomeEvents   []domaintypes.Event
	EvolutionEvent  domaintypes.Event
}

// MLSEngine is the thin wrapper over the chosen MLS library of spec.md §4.4.
// It is an opaque state holder parameterized over a Storage backend; the
// backend is supplied at construction, not per call.
type MLSEngine interface {
	CreateGroup(
		name string,
		initialMembers []domaintypes.PublicIdentifier,
		config domaintypes.GroupConfig,
	) (CreateGroupResult, error)

	// ProcessWelcome is idempotent on event id.
	ProcessWelcome(event domaintypes.Event) (domaintypes.PendingInvite, error)
	AcceptWelcome(welcomeEventID domaintypes.EventID) (domaintypes.Group, error)

	CreateMessage(groupID domaintypes.GroupID, plaintext string) (domaintypes.Event, error)
	// ProcessMessage is idempotent on event id at the storage layer; the
	// adapter itself does not maintain a processed-set.
	ProcessMessage(event domaintypes.Event) (ProcessResult, error)

	ListGroups() ([]domaintypes.Group, error)
	ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error)
	ListPendingWelcomes() ([]domaintypes.PendingInvite, error)

	// GenerateKeyPackage produces one fresh signed enrollment record.
	GenerateKeyPackage() (domaintypes.Event, domaintypes.KeyPackageRecord, error)
}
