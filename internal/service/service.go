// Package service is the composition root and public facade of spec.md
// §4.7: it wires identity, storage, relay, the MLS engine, the event
// processor and the subscription manager together, mirroring the reference
// app layer's Wire/Config split.
package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"dialogcore/internal/config"
	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/identity"
	"dialogcore/internal/mlsengine"
	"dialogcore/internal/processor"
	"dialogcore/internal/relay"
	"dialogcore/internal/store/memstore"
	"dialogcore/internal/store/sqlstore"
	"dialogcore/internal/subscription"
	"dialogcore/internal/wireevent"
)

// Service is the concrete domain.Service implementation built by Wire.
type Service struct {
	cfg      config.Config
	log      *zap.Logger
	identity *identity.Identity
	storage  domain.Storage
	relay    domain.RelayClient
	engine   domain.MLSEngine
	proc     *processor.Processor
	subs     *subscription.Manager
	bus      *broadcaster

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Wire constructs a Service from cfg, opening the selected storage backend
// and building the rest of the dependency graph around it.
func Wire(cfg config.Config) (*Service, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	id, err := identity.New(cfg.IdentitySecret)
	if err != nil {
		return nil, err
	}

	var storage domain.Storage
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		storage, err = sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
	default:
		storage = memstore.New()
	}

	relayClient := relay.New(log)
	engine := mlsengine.New(storage, id, log)
	proc := processor.New(relayClient, storage, engine, log)
	subs := subscription.New(relayClient, storage, id.Public(), log)

	return &Service{
		cfg:      cfg,
		log:      log,
		identity: id,
		storage:  storage,
		relay:    relayClient,
		engine:   engine,
		proc:     proc,
		subs:     subs,
		bus:      newBroadcaster(),
	}, nil
}

// Connect dials the configured relays, seeds the processed-set, installs
// the current subscription and starts the dispatch loop.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.proc.Seed(); err != nil {
		return err
	}
	if err := s.relay.Connect(ctx, s.cfg.RelayURLs); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.proc.Run(runCtx)
	go s.pumpUpdates(runCtx)

	if err := s.subs.Sync(ctx); err != nil {
		s.log.Warn("initial subscription sync failed", zap.Error(err))
	}
	return nil
}

func (s *Service) pumpUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-s.proc.Updates():
			if !ok {
				return
			}
			s.bus.publish(u)
		}
	}
}

func (s *Service) Disconnect() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.relay.Disconnect()
}

func (s *Service) Status() domaintypes.ConnectionStatus { return s.relay.Status() }

// PublishKeyPackages generates count fresh key packages, persists their
// private halves and publishes the public events to every relay.
func (s *Service) PublishKeyPackages(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		ev, record, err := s.engine.GenerateKeyPackage()
		if err != nil {
			return err
		}
		if err := s.storage.PutKeyPackageRecord(record); err != nil {
			return err
		}
		s.proc.MarkProcessed(ev.ID)
		if err := s.relay.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// RefreshKeyPackages revokes every unrevoked self-issued key package whose
// private half is still held and publishes one replacement, per
// SPEC_FULL.md's revoke-and-replace policy. Self-issued records without a
// private half are left as they are.
func (s *Service) RefreshKeyPackages(ctx context.Context) error {
	records, err := s.storage.ListKeyPackageRecords()
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "listing key package records", err)
	}
	self := s.identity.Public()
	for _, r := range records {
		if r.PublicIdentifier != self || r.Revoked || !r.HasPrivateComponent() {
			continue
		}
		r.Revoked = true
		if err := s.storage.PutKeyPackageRecord(r); err != nil {
			return errtyp.Wrap(errtyp.StorageBackend, "revoking key package", err)
		}
	}
	return s.PublishKeyPackages(ctx, 1)
}

func (s *Service) AddContact(publicIdentifier domaintypes.PublicIdentifier, displayName string) error {
	return s.storage.PutContact(domaintypes.Contact{PublicIdentifier: publicIdentifier, DisplayName: displayName})
}

func (s *Service) ListContacts() ([]domaintypes.Contact, error) { return s.storage.ListContacts() }

// CreateGroup runs the MLS engine's preflight and key-schedule setup, then
// publishes the resulting welcomes and evolution event. The creator
// double-processes its own welcomes and evolution by marking them processed
// before they ever reach the relay, per the sender-side dedup contract.
func (s *Service) CreateGroup(ctx context.Context, name string, members []domaintypes.PublicIdentifier, cfg domaintypes.GroupConfig) (domaintypes.GroupID, error) {
	result, err := s.engine.CreateGroup(name, members, cfg)
	if err != nil {
		return "", err
	}

	for _, ev := range result.WelcomeEvents {
		s.proc.MarkProcessed(ev.ID)
		if err := s.relay.Publish(ctx, ev); err != nil {
			return "", err
		}
	}
	s.proc.MarkProcessed(result.EvolutionEvent.ID)
	if err := s.relay.Publish(ctx, result.EvolutionEvent); err != nil {
		return "", err
	}

	if err := s.subs.Sync(ctx); err != nil {
		s.log.Warn("subscription sync after create_group failed", zap.String("group", wireevent.ShortID(string(result.GroupID))), zap.Error(err))
	}
	return result.GroupID, nil
}

func (s *Service) ListPendingInvites() ([]domaintypes.PendingInvite, error) {
	return s.engine.ListPendingWelcomes()
}

func (s *Service) AcceptInvite(ctx context.Context, welcomeEventID domaintypes.EventID) error {
	group, err := s.engine.AcceptWelcome(welcomeEventID)
	if err != nil {
		return err
	}
	if err := s.subs.Sync(ctx); err != nil {
		s.log.Warn("subscription sync after accept_invite failed", zap.String("group", wireevent.ShortID(string(group.GroupID))), zap.Error(err))
	}
	s.bus.publish(domaintypes.Update{Kind: domaintypes.UpdateGroupHasNewMessages, GroupID: group.GroupID})
	return nil
}

func (s *Service) RejectInvite(welcomeEventID domaintypes.EventID) error {
	return s.storage.DeletePendingInvite(welcomeEventID)
}

func (s *Service) ListGroups() ([]domaintypes.Group, error) { return s.storage.ListGroups() }

func (s *Service) GetGroup(groupID domaintypes.GroupID) (domaintypes.Group, error) {
	group, ok, err := s.storage.GetGroup(groupID)
	if err != nil {
		return domaintypes.Group{}, err
	}
	if !ok {
		return domaintypes.Group{}, errtyp.New(errtyp.NotFound, "unknown group")
	}
	return group, nil
}

func (s *Service) ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error) {
	return s.engine.ListMessages(groupID)
}

// SendMessage follows spec.md §4.6.2's exact ordering: seal, self-process,
// mark processed, persist, then publish. The relay only ever sees an event
// this process has already fully absorbed.
func (s *Service) SendMessage(ctx context.Context, groupID domaintypes.GroupID, content string) error {
	ev, err := s.engine.CreateMessage(groupID, content)
	if err != nil {
		return err
	}
	return s.sealAndSend(ctx, ev)
}

func (s *Service) sealAndSend(ctx context.Context, ev domaintypes.Event) error {
	result, err := s.engine.ProcessMessage(ev)
	if err != nil {
		return err
	}
	s.proc.MarkProcessed(ev.ID)

	if result.Kind == domain.ProcessDecrypted {
		if _, err := s.storage.PutMessage(result.GroupID, result.Message); err != nil {
			return err
		}
	}
	if err := s.relay.Publish(ctx, ev); err != nil {
		return err
	}
	s.bus.publish(domaintypes.Update{Kind: domaintypes.UpdateGroupHasNewMessages, GroupID: result.GroupID})
	return nil
}

// Resend re-seals the stored plaintext of eventID under a fresh event and
// publishes it; the original ciphertext event is not retained once
// decrypted, so a resend is a new wire event carrying the same content,
// per DESIGN.md's resend design note.
func (s *Service) Resend(ctx context.Context, groupID domaintypes.GroupID, eventID domaintypes.EventID) error {
	messages, err := s.engine.ListMessages(groupID)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if m.EventID != eventID {
			continue
		}
		ev, err := s.engine.CreateMessage(groupID, m.Content)
		if err != nil {
			return err
		}
		return s.sealAndSend(ctx, ev)
	}
	return errtyp.New(errtyp.NotFound, "no stored message with that event id")
}

func (s *Service) SubscribeUpdates() (<-chan domaintypes.Update, func()) {
	return s.bus.subscribe()
}

var _ domain.Service = (*Service)(nil)
