package processor_test

import (
	"context"
	"testing"
	"time"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/processor"
	"dialogcore/internal/store/memstore"
)

type fakeRelay struct {
	stream chan domaintypes.InboundEvent
}

func newFakeRelay() *fakeRelay { return &fakeRelay{stream: make(chan domaintypes.InboundEvent, 8)} }

func (f *fakeRelay) Connect(context.Context, []string) error        { return nil }
func (f *fakeRelay) Disconnect() error                               { return nil }
func (f *fakeRelay) Status() domaintypes.ConnectionStatus             { return domaintypes.Connected }
func (f *fakeRelay) Publish(context.Context, domaintypes.Event) error { return nil }
func (f *fakeRelay) Subscribe(context.Context, domaintypes.FilterSet) error { return nil }
func (f *fakeRelay) Unsubscribe(string) error                         { return nil }
func (f *fakeRelay) Stream() <-chan domaintypes.InboundEvent          { return f.stream }

// fakeEngine lets each test script exactly what ProcessMessage/ProcessWelcome return.
type fakeEngine struct {
	processMessage func(domaintypes.Event) (domain.ProcessResult, error)
	processWelcome func(domaintypes.Event) (domaintypes.PendingInvite, error)
}

func (f *fakeEngine) CreateGroup(string, []domaintypes.PublicIdentifier, domaintypes.GroupConfig) (domain.CreateGroupResult, error) {
	panic("not used")
}
func (f *fakeEngine) ProcessWelcome(e domaintypes.Event) (domaintypes.PendingInvite, error) {
	return f.processWelcome(e)
}
func (f *fakeEngine) AcceptWelcome(domaintypes.EventID) (domaintypes.Group, error) { panic("not used") }
func (f *fakeEngine) CreateMessage(domaintypes.GroupID, string) (domaintypes.Event, error) {
	panic("not used")
}
func (f *fakeEngine) ProcessMessage(e domaintypes.Event) (domain.ProcessResult, error) {
	return f.processMessage(e)
}
func (f *fakeEngine) ListGroups() ([]domaintypes.Group, error)        { return nil, nil }
func (f *fakeEngine) ListMessages(domaintypes.GroupID) ([]domaintypes.Message, error) {
	return nil, nil
}
func (f *fakeEngine) ListPendingWelcomes() ([]domaintypes.PendingInvite, error) { return nil, nil }
func (f *fakeEngine) GenerateKeyPackage() (domaintypes.Event, domaintypes.KeyPackageRecord, error) {
	panic("not used")
}

func waitUpdate(t *testing.T, p *processor.Processor) domaintypes.Update {
	t.Helper()
	select {
	case u := <-p.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return domaintypes.Update{}
	}
}

func TestDispatch_GroupMessage_EmitsNewMessagesUpdate(t *testing.T) {
	relay := newFakeRelay()
	storage := memstore.New()
	engine := &fakeEngine{
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			return domain.ProcessResult{
				Kind:    domain.ProcessDecrypted,
				GroupID: "g1",
				Message: domaintypes.Message{EventID: e.ID, GroupID: "g1", Content: "hi"},
			}, nil
		},
	}
	p := processor.New(relay, storage, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "e1", Kind: domaintypes.WireKindGroupMessage}}

	u := waitUpdate(t, p)
	if u.Kind != domaintypes.UpdateGroupHasNewMessages || u.GroupID != "g1" {
		t.Fatalf("unexpected update: %+v", u)
	}

	msgs, err := storage.ListMessages("g1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("want one stored message, got %d err=%v", len(msgs), err)
	}
}

func TestDispatch_DuplicateEvent_NoSecondUpdate(t *testing.T) {
	relay := newFakeRelay()
	storage := memstore.New()
	calls := 0
	engine := &fakeEngine{
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			calls++
			return domain.ProcessResult{
				Kind:    domain.ProcessDecrypted,
				GroupID: "g1",
				Message: domaintypes.Message{EventID: e.ID, GroupID: "g1", Content: "hi"},
			}, nil
		},
	}
	p := processor.New(relay, storage, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "e1", Kind: domaintypes.WireKindGroupMessage}}
	waitUpdate(t, p)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "e1", Kind: domaintypes.WireKindGroupMessage}}

	select {
	case u := <-p.Updates():
		t.Fatalf("want no second update for a duplicate event, got %+v", u)
	case <-time.After(200 * time.Millisecond):
	}
	if calls != 1 {
		t.Fatalf("want engine invoked exactly once, got %d", calls)
	}
}

func TestMarkProcessed_SuppressesSelfEcho(t *testing.T) {
	relay := newFakeRelay()
	storage := memstore.New()
	calls := 0
	engine := &fakeEngine{
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			calls++
			return domain.ProcessResult{Kind: domain.ProcessDecrypted, GroupID: "g1"}, nil
		},
	}
	p := processor.New(relay, storage, engine, nil)
	p.MarkProcessed("self1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "self1", Kind: domaintypes.WireKindGroupMessage}}

	select {
	case u := <-p.Updates():
		t.Fatalf("want no update for the pre-marked self-echo, got %+v", u)
	case <-time.After(200 * time.Millisecond):
	}
	if calls != 0 {
		t.Fatalf("want engine never invoked for a pre-marked event, got %d calls", calls)
	}
}

func TestDispatch_RetryableFailure_LeavesEventUnprocessed(t *testing.T) {
	relay := newFakeRelay()
	storage := memstore.New()
	calls := 0
	engine := &fakeEngine{
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			calls++
			return domain.ProcessResult{}, errtyp.New(errtyp.ProtocolFailure, "epoch ahead").Retry()
		},
	}
	p := processor.New(relay, storage, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "e1", Kind: domaintypes.WireKindGroupMessage}}
	u := waitUpdate(t, p)
	if u.Kind != domaintypes.UpdateError {
		t.Fatalf("want UpdateError, got %+v", u)
	}

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "e1", Kind: domaintypes.WireKindGroupMessage}}
	waitUpdate(t, p)

	if calls != 2 {
		t.Fatalf("want a retryable failure to leave the event eligible for redelivery, got %d calls", calls)
	}
}

func TestSeed_PreloadsProcessedSetFromStorage(t *testing.T) {
	relay := newFakeRelay()
	storage := memstore.New()
	if err := storage.PutGroup(domaintypes.Group{GroupID: "g1"}); err != nil {
		t.Fatalf("PutGroup: %v", err)
	}
	if _, err := storage.PutMessage("g1", domaintypes.Message{EventID: "already-seen", GroupID: "g1"}); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}
	calls := 0
	engine := &fakeEngine{
		processMessage: func(e domaintypes.Event) (domain.ProcessResult, error) {
			calls++
			return domain.ProcessResult{Kind: domain.ProcessDecrypted, GroupID: "g1"}, nil
		},
	}
	p := processor.New(relay, storage, engine, nil)
	if err := p.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	relay.stream <- domaintypes.InboundEvent{Event: domaintypes.Event{ID: "already-seen", Kind: domaintypes.WireKindGroupMessage}}

	select {
	case u := <-p.Updates():
		t.Fatalf("want no update for an event seeded as already processed, got %+v", u)
	case <-time.After(200 * time.Millisecond):
	}
	if calls != 0 {
		t.Fatalf("want engine never invoked for a seeded event, got %d calls", calls)
	}
}
