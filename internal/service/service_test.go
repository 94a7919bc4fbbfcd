package service

import (
	"context"
	"testing"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/identity"
	"dialogcore/internal/processor"
	"dialogcore/internal/store/memstore"
	"dialogcore/internal/subscription"
)

type fakeRelay struct {
	stream    chan domaintypes.InboundEvent
	published []domaintypes.Event
	connected []string
}

func newFakeRelay() *fakeRelay { return &fakeRelay{stream: make(chan domaintypes.InboundEvent, 8)} }

func (f *fakeRelay) Connect(_ context.Context, urls []string) error {
	f.connected = urls
	return nil
}
func (f *fakeRelay) Disconnect() error                   { return nil }
func (f *fakeRelay) Status() domaintypes.ConnectionStatus { return domaintypes.Connected }
func (f *fakeRelay) Publish(_ context.Context, event domaintypes.Event) error {
	f.published = append(f.published, event)
	return nil
}
func (f *fakeRelay) Subscribe(context.Context, domaintypes.FilterSet) error { return nil }
func (f *fakeRelay) Unsubscribe(string) error                              { return nil }
func (f *fakeRelay) Stream() <-chan domaintypes.InboundEvent               { return f.stream }

// fakeEngine scripts each method a given test needs; unused methods panic
// so a test that exercises a code path it did not intend to fails loudly.
type fakeEngine struct {
	createGroup        func(string, []domaintypes.PublicIdentifier, domaintypes.GroupConfig) (domain.CreateGroupResult, error)
	createMessage      func(domaintypes.GroupID, string) (domaintypes.Event, error)
	processMessage     func(domaintypes.Event) (domain.ProcessResult, error)
	acceptWelcome      func(domaintypes.EventID) (domaintypes.Group, error)
	listMessages       func(domaintypes.GroupID) ([]domaintypes.Message, error)
	generateKeyPackage func() (domaintypes.Event, domaintypes.KeyPackageRecord, error)
}

func (f *fakeEngine) CreateGroup(name string, members []domaintypes.PublicIdentifier, cfg domaintypes.GroupConfig) (domain.CreateGroupResult, error) {
	return f.createGroup(name, members, cfg)
}
func (f *fakeEngine) ProcessWelcome(domaintypes.Event) (domaintypes.PendingInvite, error) {
	panic("not used")
}
func (f *fakeEngine) AcceptWelcome(id domaintypes.EventID) (domaintypes.Group, error) {
	return f.acceptWelcome(id)
}
func (f *fakeEngine) CreateMessage(groupID domaintypes.GroupID, plaintext string) (domaintypes.Event, error) {
	return f.createMessage(groupID, plaintext)
}
func (f *fakeEngine) ProcessMessage(e domaintypes.Event) (domain.ProcessResult, error) {
	return f.processMessage(e)
}
func (f *fakeEngine) ListGroups() ([]domaintypes.Group, error) { panic("not used") }
func (f *fakeEngine) ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error) {
	return f.listMessages(groupID)
}
func (f *fakeEngine) ListPendingWelcomes() ([]domaintypes.PendingInvite, error) { panic("not used") }
func (f *fakeEngine) GenerateKeyPackage() (domaintypes.Event, domaintypes.KeyPackageRecord, error) {
	return f.generateKeyPackage()
}

// newTestService wires a Service around a real memstore but fake relay and
// engine, bypassing Wire so each test can script exactly what it needs.
func newTestService(t *testing.T, relay *fakeRelay, engine *fakeEngine) *Service {
	t.Helper()
	id, err := identity.New("")
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	storage := memstore.New()
	proc := processor.New(relay, storage, engine, nil)
	subs := subscription.New(relay, storage, id.Public(), nil)
	return &Service{
		identity: id,
		storage:  storage,
		relay:    relay,
		engine:   engine,
		proc:     proc,
		subs:     subs,
		bus:      newBroadcaster(),
	}
}

func TestPublishKeyPackages_PersistsAndPublishesEach(t *testing.T) {
	relay := newFakeRelay()
	n := 0
	engine := &fakeEngine{
		generateKeyPackage: func() (domaintypes.Event, domaintypes.KeyPackageRecord, error) {
			n++
			id := domaintypes.EventID(string(rune('a' + n)))
			return domaintypes.Event{ID: id, Kind: domaintypes.WireKindKeyPackage},
				domaintypes.KeyPackageRecord{EventID: id, PrivateComponent: []byte{1}}, nil
		},
	}
	s := newTestService(t, relay, engine)

	if err := s.PublishKeyPackages(context.Background(), 3); err != nil {
		t.Fatalf("PublishKeyPackages: %v", err)
	}
	if len(relay.published) != 3 {
		t.Fatalf("want 3 published events, got %d", len(relay.published))
	}
	records, err := s.storage.ListKeyPackageRecords()
	if err != nil || len(records) != 3 {
		t.Fatalf("want 3 stored records, got %d err=%v", len(records), err)
	}
}

func TestRefreshKeyPackages_RevokesExistingBeforePublishingNew(t *testing.T) {
	relay := newFakeRelay()
	engine := &fakeEngine{
		generateKeyPackage: func() (domaintypes.Event, domaintypes.KeyPackageRecord, error) {
			return domaintypes.Event{ID: "new", Kind: domaintypes.WireKindKeyPackage},
				domaintypes.KeyPackageRecord{EventID: "new", PrivateComponent: []byte{1}}, nil
		},
	}
	s := newTestService(t, relay, engine)
	self := s.identity.Public()
	if err := s.storage.PutKeyPackageRecord(domaintypes.KeyPackageRecord{
		EventID: "old", PublicIdentifier: self, PrivateComponent: []byte{9},
	}); err != nil {
		t.Fatalf("PutKeyPackageRecord: %v", err)
	}

	if err := s.RefreshKeyPackages(context.Background()); err != nil {
		t.Fatalf("RefreshKeyPackages: %v", err)
	}

	records, err := s.storage.ListKeyPackageRecords()
	if err != nil {
		t.Fatalf("ListKeyPackageRecords: %v", err)
	}
	var oldRevoked, newPresent bool
	for _, r := range records {
		if r.EventID == "old" {
			oldRevoked = r.Revoked
		}
		if r.EventID == "new" {
			newPresent = true
		}
	}
	if !oldRevoked {
		t.Fatal("want the old key package revoked")
	}
	if !newPresent {
		t.Fatal("want a new key package published and stored")
	}
}

func TestCreateGroup_PublishesWelcomesAndEvolution(t *testing.T) {
	relay := newFakeRelay()
	welcome := domaintypes.Event{ID: "w1", Kind: domaintypes.WireKindGiftWrap}
	evolution := domaintypes.Event{ID: "ev1", Kind: domaintypes.WireKindGroupEvolution}
	engine := &fakeEngine{
		createGroup: func(name string, members []domaintypes.PublicIdentifier, cfg domaintypes.GroupConfig) (domain.CreateGroupResult, error) {
			return domain.CreateGroupResult{
				GroupID:        "g1",
				WelcomeEvents:  []domaintypes.Event{welcome},
				EvolutionEvent: evolution,
			}, nil
		},
	}
	s := newTestService(t, relay, engine)

	groupID, err := s.CreateGroup(context.Background(), "friends", nil, domaintypes.GroupConfig{})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if groupID != "g1" {
		t.Fatalf("want group id g1, got %q", groupID)
	}
	if len(relay.published) != 2 {
		t.Fatalf("want welcome and evolution both published, got %d", len(relay.published))
	}
}

func TestSendMessage_SealsLocallyBeforePublishing(t *testing.T) {
	relay := newFakeRelay()
	sent := domaintypes.Event{ID: "m1", Kind: domaintypes.WireKindGroupMessage}
	engine := &fakeEngine{
		createMessage: func(groupID domaintypes.GroupID, plaintext string) (domaintypes.Event, error) {
			return sent, nil
		},
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			return domain.ProcessResult{
				Kind:    domain.ProcessDecrypted,
				GroupID: "g1",
				Message: domaintypes.Message{EventID: e.ID, GroupID: "g1", Content: "hello"},
			}, nil
		},
	}
	s := newTestService(t, relay, engine)

	updates, unsubscribe := s.SubscribeUpdates()
	defer unsubscribe()

	if err := s.SendMessage(context.Background(), "g1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(relay.published) != 1 || relay.published[0].ID != "m1" {
		t.Fatalf("want the sealed event published, got %+v", relay.published)
	}
	msgs, err := s.storage.ListMessages("g1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("want the message persisted locally, got %d err=%v", len(msgs), err)
	}

	select {
	case u := <-updates:
		if u.Kind != domaintypes.UpdateGroupHasNewMessages || u.GroupID != "g1" {
			t.Fatalf("unexpected update: %+v", u)
		}
	default:
		t.Fatal("want an update emitted for the sent message")
	}
}

func TestResend_UnknownEventID_ReturnsNotFound(t *testing.T) {
	relay := newFakeRelay()
	engine := &fakeEngine{
		listMessages: func(domaintypes.GroupID) ([]domaintypes.Message, error) { return nil, nil },
	}
	s := newTestService(t, relay, engine)

	err := s.Resend(context.Background(), "g1", "missing")
	if !errtyp.Is(err, errtyp.NotFound) {
		t.Fatalf("want a not_found error for an unknown event id, got %v", err)
	}
}

func TestGetGroup_UnknownGroup_ReturnsNotFound(t *testing.T) {
	s := newTestService(t, newFakeRelay(), &fakeEngine{})
	_, err := s.GetGroup("missing")
	if !errtyp.Is(err, errtyp.NotFound) {
		t.Fatalf("want a not_found error for an unknown group, got %v", err)
	}
}

func TestAddContact_ThenListContacts(t *testing.T) {
	s := newTestService(t, newFakeRelay(), &fakeEngine{})
	if err := s.AddContact("bob-pubkey", "Bob"); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	contacts, err := s.ListContacts()
	if err != nil || len(contacts) != 1 || contacts[0].DisplayName != "Bob" {
		t.Fatalf("ListContacts: %+v err=%v", contacts, err)
	}
}
