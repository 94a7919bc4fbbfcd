package mlsengine_test

import (
	"errors"
	"testing"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/identity"
	"dialogcore/internal/mlsengine"
	"dialogcore/internal/store/memstore"
)

func makeEngine(t *testing.T) (*mlsengine.Engine, domaintypes.PublicIdentifier) {
	t.Helper()
	id, err := identity.New("")
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return mlsengine.New(memstore.New(), id, nil), id.Public()
}

func TestCreateGroup_MissingKeyPackage_Fails(t *testing.T) {
	eng, _ := makeEngine(t)
	_, err := eng.CreateGroup("friends", []domaintypes.PublicIdentifier{"bob"}, domaintypes.GroupConfig{})
	if !errtyp.Is(err, errtyp.MissingKeyPackage) {
		t.Fatalf("want missing_key_package error, got %v", err)
	}
}

func TestWelcomeAcceptAndMessageRoundTrip(t *testing.T) {
	aliceStore := memstore.New()
	aliceID, err := identity.New("")
	if err != nil {
		t.Fatalf("identity.New alice: %v", err)
	}
	alice := mlsengine.New(aliceStore, aliceID, nil)

	bobStore := memstore.New()
	bobID, err := identity.New("")
	if err != nil {
		t.Fatalf("identity.New bob: %v", err)
	}
	bob := mlsengine.New(bobStore, bobID, nil)

	kpEvent, kpRecord, err := bob.GenerateKeyPackage()
	if err != nil {
		t.Fatalf("GenerateKeyPackage: %v", err)
	}
	if err := bobStore.PutKeyPackageRecord(kpRecord); err != nil {
		t.Fatalf("PutKeyPackageRecord (bob, self): %v", err)
	}

	// alice observes bob's key package from the relay
	observed, err := mlsengine.ObserveKeyPackage(kpEvent)
	if err != nil {
		t.Fatalf("ObserveKeyPackage: %v", err)
	}
	if err := aliceStore.PutKeyPackageRecord(observed); err != nil {
		t.Fatalf("PutKeyPackageRecord (alice, observed): %v", err)
	}

	result, err := alice.CreateGroup("friends", []domaintypes.PublicIdentifier{bobID.Public()}, domaintypes.GroupConfig{Description: "test group"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if len(result.WelcomeEvents) != 1 {
		t.Fatalf("want one welcome event, got %d", len(result.WelcomeEvents))
	}

	// alice already holds the epoch secret in-process from CreateGroup; only
	// bob's side of the exchange needs processing here.
	invite, err := bob.ProcessWelcome(result.WelcomeEvents[0])
	if err != nil {
		t.Fatalf("ProcessWelcome: %v", err)
	}
	if invite.ProposedGroupID != result.GroupID {
		t.Fatalf("invite group id mismatch: %q vs %q", invite.ProposedGroupID, result.GroupID)
	}

	group, err := bob.AcceptWelcome(invite.WelcomeEventID)
	if err != nil {
		t.Fatalf("AcceptWelcome: %v", err)
	}
	if group.GroupID != result.GroupID {
		t.Fatalf("accepted group id mismatch: %q vs %q", group.GroupID, result.GroupID)
	}

	msgEvent, err := alice.CreateMessage(result.GroupID, "hello bob")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	// alice double-processes her own outbound message to advance her state
	// before it ever reaches the relay.
	if _, err := alice.ProcessMessage(msgEvent); err != nil {
		t.Fatalf("alice self-ProcessMessage: %v", err)
	}

	procResult, err := bob.ProcessMessage(msgEvent)
	if err != nil {
		t.Fatalf("bob ProcessMessage: %v", err)
	}
	if procResult.Kind != domain.ProcessDecrypted {
		t.Fatalf("want ProcessDecrypted, got %v", procResult.Kind)
	}
	if procResult.Message.Content != "hello bob" {
		t.Fatalf("want decrypted content %q, got %q", "hello bob", procResult.Message.Content)
	}
}

// TestProcessMessage_EpochDisposition exercises the two decrypt-failure
// dispositions: an event tagged with an epoch newer than our local state is
// a retryable ProtocolFailure (we just haven't caught up), while one at or
// behind our local epoch that still won't open is a non-retryable
// CryptoFailure (we are not a member at that epoch, and never will be again).
func TestProcessMessage_EpochDisposition(t *testing.T) {
	store := memstore.New()
	id, err := identity.New("")
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	eng := mlsengine.New(store, id, nil)

	// Establish a real group (and a real epoch secret held in-process) via
	// the public API, with no members so no key package preflight is needed.
	result, err := eng.CreateGroup("solo", nil, domaintypes.GroupConfig{})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	// Advance the durable record to epoch 5 without telling the engine's
	// in-process secret about it, simulating local state that has moved on
	// from (or never caught up to) whatever sealed the incoming event.
	group, found, err := store.GetGroup(result.GroupID)
	if err != nil || !found {
		t.Fatalf("GetGroup: found=%v err=%v", found, err)
	}
	group.Epoch = 5
	if err := store.PutGroup(group); err != nil {
		t.Fatalf("PutGroup: %v", err)
	}

	// Undecryptable under whatever secret the engine holds for this group,
	// but long enough to clear the nonce-plus-ciphertext length check and
	// reach the open() call.
	const undecryptableContent = "000000000000000000000000000000000000000000000000000000000000"

	aheadEvent := domaintypes.Event{
		Kind:    domaintypes.WireKindGroupMessage,
		Content: undecryptableContent,
		Tags: []domaintypes.Tag{
			{domaintypes.TagGroup, string(result.NostrGroupID)},
			{domaintypes.TagEpoch, "9"},
		},
	}
	_, err = eng.ProcessMessage(aheadEvent)
	var te *errtyp.Error
	if !errors.As(err, &te) || te.Kind != errtyp.ProtocolFailure || !te.Retryable {
		t.Fatalf("want a retryable ProtocolFailure for an epoch ahead of local state, got %v", err)
	}

	behindEvent := domaintypes.Event{
		Kind:    domaintypes.WireKindGroupMessage,
		Content: undecryptableContent,
		Tags: []domaintypes.Tag{
			{domaintypes.TagGroup, string(result.NostrGroupID)},
			{domaintypes.TagEpoch, "1"},
		},
	}
	_, err = eng.ProcessMessage(behindEvent)
	if !errors.As(err, &te) || te.Kind != errtyp.CryptoFailure || te.Retryable {
		t.Fatalf("want a non-retryable CryptoFailure for a message we are no longer a member of, got %v", err)
	}
}

func TestProcessMessage_UnknownGroup_Ignored(t *testing.T) {
	eng, _ := makeEngine(t)
	event := domaintypes.Event{
		Kind: domaintypes.WireKindGroupMessage,
		Tags: []domaintypes.Tag{{domaintypes.TagGroup, "no-such-group"}},
	}
	result, err := eng.ProcessMessage(event)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if result.Kind != domain.ProcessIgnored {
		t.Fatalf("want ProcessIgnored, got %v", result.Kind)
	}
}
