package memstore_test

import (
	"testing"

	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/store/memstore"
)

func TestPutMessage_IdempotentOnEventID(t *testing.T) {
	s := memstore.New()
	msg := domaintypes.Message{EventID: "e1", GroupID: "g1", Content: "hello", RelayTimestamp: 100}

	status, err := s.PutMessage("g1", msg)
	if err != nil || status != domaintypes.MessageInserted {
		t.Fatalf("first put: status=%v err=%v", status, err)
	}

	status, err = s.PutMessage("g1", msg)
	if err != nil || status != domaintypes.MessageAlreadyPresent {
		t.Fatalf("second put: status=%v err=%v", status, err)
	}

	msgs, err := s.ListMessages("g1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want exactly one stored message, got %d", len(msgs))
	}
}

func TestListMessages_OrderedByTimestampThenEventID(t *testing.T) {
	s := memstore.New()
	inputs := []domaintypes.Message{
		{EventID: "e3", GroupID: "g1", RelayTimestamp: 100},
		{EventID: "e1", GroupID: "g1", RelayTimestamp: 100},
		{EventID: "e2", GroupID: "g1", RelayTimestamp: 99},
	}
	for _, m := range inputs {
		if _, err := s.PutMessage("g1", m); err != nil {
			t.Fatalf("PutMessage: %v", err)
		}
	}

	got, err := s.ListMessages("g1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	want := []domaintypes.EventID{"e2", "e1", "e3"}
	for i, m := range got {
		if m.EventID != want[i] {
			t.Fatalf("position %d: want %q got %q", i, want[i], m.EventID)
		}
	}
}

func TestListAllMessageEventIDs_SeedsAcrossGroups(t *testing.T) {
	s := memstore.New()
	_, _ = s.PutMessage("g1", domaintypes.Message{EventID: "e1", GroupID: "g1"})
	_, _ = s.PutMessage("g2", domaintypes.Message{EventID: "e2", GroupID: "g2"})

	ids, err := s.ListAllMessageEventIDs()
	if err != nil {
		t.Fatalf("ListAllMessageEventIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 event ids, got %d", len(ids))
	}
}

func TestContact_PutUpserts(t *testing.T) {
	s := memstore.New()
	if err := s.PutContact(domaintypes.Contact{PublicIdentifier: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatalf("PutContact: %v", err)
	}
	if err := s.PutContact(domaintypes.Contact{PublicIdentifier: "bob", DisplayName: "Bobby"}); err != nil {
		t.Fatalf("PutContact upsert: %v", err)
	}

	contacts, err := s.ListContacts()
	if err != nil || len(contacts) != 1 || contacts[0].DisplayName != "Bobby" {
		t.Fatalf("ListContacts: %+v err=%v", contacts, err)
	}
}

func TestDeletePendingInvite_NotFound(t *testing.T) {
	s := memstore.New()
	if err := s.DeletePendingInvite("missing"); err == nil {
		t.Fatal("want error for missing invite")
	}
}
