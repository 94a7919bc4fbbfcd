package domain

import (
	"dialogcore/internal/domain/interfaces"
	"dialogcore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PublicIdentifier  = types.PublicIdentifier
	EventID           = types.EventID
	Contact           = types.Contact
	KeyPackageRecord  = types.KeyPackageRecord
	GroupID           = types.GroupID
	NostrGroupID      = types.NostrGroupID
	MembershipState   = types.MembershipState
	Group             = types.Group
	GroupConfig       = types.GroupConfig
	InviteState       = types.InviteState
	PendingInvite     = types.PendingInvite
	Message           = types.Message
	PutMessageStatus  = types.PutMessageStatus
	EventKind         = types.EventKind
	Tag               = types.Tag
	Event             = types.Event
	Filter            = types.Filter
	FilterSet         = types.FilterSet
	InboundEvent      = types.InboundEvent
	ConnectionStatus  = types.ConnectionStatus
	UpdateKind        = types.UpdateKind
	Update            = types.Update
)

const (
	MembershipActive  = types.MembershipActive
	MembershipRemoved = types.MembershipRemoved
	MembershipDeleted = types.MembershipDeleted

	InvitePendingLocal = types.InvitePendingLocal
	InvitePendingUser  = types.InvitePendingUser
	InviteAccepted     = types.InviteAccepted
	InviteRejected     = types.InviteRejected
	InviteExpired      = types.InviteExpired

	MessageInserted       = types.MessageInserted
	MessageAlreadyPresent = types.MessageAlreadyPresent

	KindKeyPackage     = types.KindKeyPackage
	KindWelcome        = types.KindWelcome
	KindGroupMessage   = types.KindGroupMessage
	KindGroupEvolution = types.KindGroupEvolution
	KindUnknown        = types.KindUnknown

	Disconnected  = types.Disconnected
	Connecting    = types.Connecting
	Connected     = types.Connected
	Reconnecting  = types.Reconnecting

	UpdateInviteReceived      = types.UpdateInviteReceived
	UpdateGroupHasNewMessages = types.UpdateGroupHasNewMessages
	UpdateGroupEvolved        = types.UpdateGroupEvolved
	UpdateConnectionChanged   = types.UpdateConnectionChanged
	UpdateError               = types.UpdateError
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Identity          = interfaces.Identity
	Storage           = interfaces.Storage
	RelayClient       = interfaces.RelayClient
	MLSEngine         = interfaces.MLSEngine
	ProcessResult     = interfaces.ProcessResult
	ProcessResultKind = interfaces.ProcessResultKind
	CreateGroupResult = interfaces.CreateGroupResult
	Service           = interfaces.Service
)

const (
	ProcessDecrypted        = interfaces.ProcessDecrypted
	ProcessEvolutionApplied = interfaces.ProcessEvolutionApplied
	ProcessIgnored          = interfaces.ProcessIgnored
)
