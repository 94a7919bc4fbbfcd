// Package subscription computes and installs the single filter set this
// identity needs on its relays, per spec.md §4.5, §6.2: the self gift-wrap
// filter plus, once any group is joined, a single filter matching group
// messages and evolutions on the `h` tags of every group currently joined.
package subscription

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
)

// Manager recomputes the filter set whenever the joined-group membership
// changes and installs it on the relay as a single atomic call, under one
// subscription name generated for the Manager's lifetime.
type Manager struct {
	log     *zap.Logger
	relay   domain.RelayClient
	storage domain.Storage
	self    domaintypes.PublicIdentifier
	name    string

	mu         sync.Mutex
	lastGroups []domaintypes.NostrGroupID
}

// New constructs a Manager for self's gift wraps and storage's joined
// groups, under a freshly generated subscription name. log is nil-safe and
// defaults to zap.NewNop().
func New(relay domain.RelayClient, storage domain.Storage, self domaintypes.PublicIdentifier, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log, relay: relay, storage: storage, self: self, name: uuid.NewString()}
}

// Sync reads the current joined-group set from storage and, if it differs
// from what was last installed, atomically replaces the subscription.
func (m *Manager) Sync(ctx context.Context) error {
	groups, err := m.storage.ListGroups()
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "listing groups for subscription sync", err)
	}

	active := []domaintypes.NostrGroupID{}
	for _, g := range groups {
		if g.Membership == domaintypes.MembershipActive {
			active = append(active, g.NostrGroupID)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	m.mu.Lock()
	unchanged := m.lastGroups != nil && sameSet(m.lastGroups, active)
	m.mu.Unlock()
	if unchanged {
		return nil
	}

	set := buildFilterSet(m.name, m.self, active)
	if err := m.relay.Subscribe(ctx, set); err != nil {
		m.log.Warn("subscription sync failed", zap.Int("groups", len(active)), zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.lastGroups = active
	m.mu.Unlock()
	m.log.Info("subscription installed", zap.Int("groups", len(active)))
	return nil
}

func buildFilterSet(name string, self domaintypes.PublicIdentifier, groups []domaintypes.NostrGroupID) domaintypes.FilterSet {
	filters := []domaintypes.Filter{
		{
			Kinds: []int{domaintypes.WireKindGiftWrap},
			P:     []string{string(self)},
		},
	}
	if len(groups) > 0 {
		hashes := make([]string, len(groups))
		for i, g := range groups {
			hashes[i] = string(g)
		}
		filters = append(filters, domaintypes.Filter{
			Kinds: []int{domaintypes.WireKindGroupMessage, domaintypes.WireKindGroupEvolution},
			Hash:  hashes,
		})
	}
	return domaintypes.FilterSet{SubscriptionName: name, Filters: filters}
}

func sameSet(a, b []domaintypes.NostrGroupID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
