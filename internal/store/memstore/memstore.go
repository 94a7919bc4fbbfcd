// Package memstore is the ephemeral in-memory Storage backend of spec.md §4.2.
//
// It loses all state, including MLS private key material, on process exit —
// see SPEC_FULL.md's Design Note on ephemeral-vs-durable semantics.
package memstore

import (
	"sort"
	"sync"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
)

// Store is a sync.RWMutex-guarded map-of-maps implementation of domain.Storage.
type Store struct {
	mu sync.RWMutex

	groups   map[domaintypes.GroupID]domaintypes.Group
	messages map[domaintypes.GroupID]map[domaintypes.EventID]domaintypes.Message
	invites  map[domaintypes.EventID]domaintypes.PendingInvite
	keyPkgs  map[domaintypes.EventID]domaintypes.KeyPackageRecord
	contacts map[domaintypes.PublicIdentifier]domaintypes.Contact
}

// New constructs an empty ephemeral store.
func New() *Store {
	return &Store{
		groups:   make(map[domaintypes.GroupID]domaintypes.Group),
		messages: make(map[domaintypes.GroupID]map[domaintypes.EventID]domaintypes.Message),
		invites:  make(map[domaintypes.EventID]domaintypes.PendingInvite),
		keyPkgs:  make(map[domaintypes.EventID]domaintypes.KeyPackageRecord),
		contacts: make(map[domaintypes.PublicIdentifier]domaintypes.Contact),
	}
}

func (s *Store) PutGroup(group domaintypes.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.GroupID] = group
	return nil
}

func (s *Store) GetGroup(groupID domaintypes.GroupID) (domaintypes.Group, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	return g, ok, nil
}

func (s *Store) ListGroups() ([]domaintypes.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domaintypes.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (s *Store) DeleteGroup(groupID domaintypes.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	delete(s.messages, groupID)
	return nil
}

// PutMessage is atomic with respect to ListMessages: both hold s.mu for
// their full duration, so no partial row is ever observed.
func (s *Store) PutMessage(groupID domaintypes.GroupID, message domaintypes.Message) (domaintypes.PutMessageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byEvent, ok := s.messages[groupID]
	if !ok {
		byEvent = make(map[domaintypes.EventID]domaintypes.Message)
		s.messages[groupID] = byEvent
	}
	if _, exists := byEvent[message.EventID]; exists {
		return domaintypes.MessageAlreadyPresent, nil
	}
	byEvent[message.EventID] = message
	return domaintypes.MessageInserted, nil
}

// ListMessages returns messages ordered by (relay timestamp, event id), the
// stable tie-break of spec.md §4.4.
func (s *Store) ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byEvent := s.messages[groupID]
	out := make([]domaintypes.Message, 0, len(byEvent))
	for _, m := range byEvent {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelayTimestamp != out[j].RelayTimestamp {
			return out[i].RelayTimestamp < out[j].RelayTimestamp
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func (s *Store) ListAllMessageEventIDs() ([]domaintypes.EventID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domaintypes.EventID
	for _, byEvent := range s.messages {
		for id := range byEvent {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) PutPendingInvite(invite domaintypes.PendingInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[invite.WelcomeEventID] = invite
	return nil
}

func (s *Store) ListPendingInvites() ([]domaintypes.PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domaintypes.PendingInvite, 0, len(s.invites))
	for _, inv := range s.invites {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt < out[j].ReceivedAt })
	return out, nil
}

func (s *Store) DeletePendingInvite(welcomeEventID domaintypes.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invites[welcomeEventID]; !ok {
		return errtyp.New(errtyp.NotFound, "pending invite not found")
	}
	delete(s.invites, welcomeEventID)
	return nil
}

func (s *Store) PutKeyPackageRecord(record domaintypes.KeyPackageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyPkgs[record.EventID] = record
	return nil
}

func (s *Store) ListKeyPackageRecords() ([]domaintypes.KeyPackageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domaintypes.KeyPackageRecord, 0, len(s.keyPkgs))
	for _, r := range s.keyPkgs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt < out[j].PublishedAt })
	return out, nil
}

func (s *Store) PutContact(contact domaintypes.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.PublicIdentifier] = contact
	return nil
}

func (s *Store) ListContacts() ([]domaintypes.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domaintypes.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicIdentifier < out[j].PublicIdentifier })
	return out, nil
}

// Close is a no-op; there is nothing to flush for an in-memory backend.
func (s *Store) Close() error { return nil }

// Compile-time assertion that Store implements domain.Storage.
var _ domain.Storage = (*Store)(nil)
