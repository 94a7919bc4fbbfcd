// Package sqlstore is the on-disk SQL Storage backend of spec.md §4.2,
// §6.3, backed by the pure-Go modernc.org/sqlite driver so the
// module stays cgo-free. Writes commit before returning success, per
// spec.md's durable-backend guarantee.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"strings"

	_ "modernc.org/sqlite"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
)

// Store is a database/sql-backed implementation of domain.Storage.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// the schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "opening sqlite database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY races
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errtyp.Wrap(errtyp.StorageBackend, "applying schema", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PutGroup(g domaintypes.Group) error {
	admins, err := json.Marshal(g.Admins)
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "marshal admins", err)
	}
	relays, err := json.Marshal(g.Relays)
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "marshal relays", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO groups (mls_group_id, nostr_group_id, name, description, epoch, admins, relays, creator, membership)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mls_group_id) DO UPDATE SET
			nostr_group_id = excluded.nostr_group_id,
			name = excluded.name,
			description = excluded.description,
			epoch = excluded.epoch,
			admins = excluded.admins,
			relays = excluded.relays,
			membership = excluded.membership`,
		string(g.GroupID), string(g.NostrGroupID), g.Name, g.Description, g.Epoch,
		string(admins), string(relays), string(g.Creator), int(g.Membership))
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "put group", err)
	}
	return nil
}

func (s *Store) GetGroup(groupID domaintypes.GroupID) (domaintypes.Group, bool, error) {
	row := s.db.QueryRow(`
		SELECT mls_group_id, nostr_group_id, name, description, epoch, admins, relays, creator, membership
		FROM groups WHERE mls_group_id = ?`, string(groupID))
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return domaintypes.Group{}, false, nil
	}
	if err != nil {
		return domaintypes.Group{}, false, errtyp.Wrap(errtyp.StorageBackend, "get group", err)
	}
	return g, true, nil
}

func (s *Store) ListGroups() ([]domaintypes.Group, error) {
	rows, err := s.db.Query(`
		SELECT mls_group_id, nostr_group_id, name, description, epoch, admins, relays, creator, membership
		FROM groups ORDER BY mls_group_id`)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list groups", err)
	}
	defer rows.Close()

	var out []domaintypes.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan group", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) DeleteGroup(groupID domaintypes.GroupID) error {
	_, err := s.db.Exec(`DELETE FROM groups WHERE mls_group_id = ?`, string(groupID))
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "delete group", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (domaintypes.Group, error) {
	var (
		g              domaintypes.Group
		adminsJSON     string
		relaysJSON     string
		membershipInt  int
	)
	if err := row.Scan(&g.GroupID, &g.NostrGroupID, &g.Name, &g.Description, &g.Epoch,
		&adminsJSON, &relaysJSON, &g.Creator, &membershipInt); err != nil {
		return domaintypes.Group{}, err
	}
	g.Membership = domaintypes.MembershipState(membershipInt)
	_ = json.Unmarshal([]byte(adminsJSON), &g.Admins)
	_ = json.Unmarshal([]byte(relaysJSON), &g.Relays)
	return g, nil
}

// PutMessage is atomic with respect to ListMessages by virtue of the
// PRIMARY KEY constraint on event_id being the deduplication mechanism
// itself, per spec.md §6.3.
func (s *Store) PutMessage(groupID domaintypes.GroupID, m domaintypes.Message) (domaintypes.PutMessageStatus, error) {
	_, err := s.db.Exec(`
		INSERT INTO messages (event_id, group_id, author, content, created_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(m.EventID), string(groupID), string(m.Author), m.Content, m.RelayTimestamp, m.ReceivedAt)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return domaintypes.MessageAlreadyPresent, nil
		}
		return 0, errtyp.Wrap(errtyp.StorageBackend, "put message", err)
	}
	return domaintypes.MessageInserted, nil
}

func (s *Store) ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error) {
	rows, err := s.db.Query(`
		SELECT event_id, group_id, author, content, created_at, received_at
		FROM messages WHERE group_id = ?
		ORDER BY created_at ASC, event_id ASC`, string(groupID))
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list messages", err)
	}
	defer rows.Close()

	var out []domaintypes.Message
	for rows.Next() {
		var m domaintypes.Message
		if err := rows.Scan(&m.EventID, &m.GroupID, &m.Author, &m.Content, &m.RelayTimestamp, &m.ReceivedAt); err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListAllMessageEventIDs() ([]domaintypes.EventID, error) {
	rows, err := s.db.Query(`SELECT event_id FROM messages`)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list event ids", err)
	}
	defer rows.Close()

	var out []domaintypes.EventID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan event id", err)
		}
		out = append(out, domaintypes.EventID(id))
	}
	return out, rows.Err()
}

func (s *Store) PutPendingInvite(inv domaintypes.PendingInvite) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_invites (welcome_event_id, inviter, proposed_group_id, group_name, group_description, received_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(welcome_event_id) DO UPDATE SET state = excluded.state`,
		string(inv.WelcomeEventID), string(inv.Inviter), string(inv.ProposedGroupID),
		inv.GroupName, inv.GroupDescription, inv.ReceivedAt, int(inv.State))
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "put pending invite", err)
	}
	return nil
}

func (s *Store) ListPendingInvites() ([]domaintypes.PendingInvite, error) {
	rows, err := s.db.Query(`
		SELECT welcome_event_id, inviter, proposed_group_id, group_name, group_description, received_at, state
		FROM pending_invites ORDER BY received_at ASC`)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list pending invites", err)
	}
	defer rows.Close()

	var out []domaintypes.PendingInvite
	for rows.Next() {
		var inv domaintypes.PendingInvite
		var state int
		if err := rows.Scan(&inv.WelcomeEventID, &inv.Inviter, &inv.ProposedGroupID,
			&inv.GroupName, &inv.GroupDescription, &inv.ReceivedAt, &state); err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan pending invite", err)
		}
		inv.State = domaintypes.InviteState(state)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) DeletePendingInvite(welcomeEventID domaintypes.EventID) error {
	res, err := s.db.Exec(`DELETE FROM pending_invites WHERE welcome_event_id = ?`, string(welcomeEventID))
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "delete pending invite", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "rows affected", err)
	}
	if n == 0 {
		return errtyp.New(errtyp.NotFound, "pending invite not found")
	}
	return nil
}

func (s *Store) PutKeyPackageRecord(r domaintypes.KeyPackageRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO keypackage_records (event_id, public_identifier, public_component, private_component, published_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET revoked = excluded.revoked`,
		string(r.EventID), string(r.PublicIdentifier), r.PublicComponent, r.PrivateComponent, r.PublishedAt, r.Revoked)
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "put key package record", err)
	}
	return nil
}

func (s *Store) ListKeyPackageRecords() ([]domaintypes.KeyPackageRecord, error) {
	rows, err := s.db.Query(`
		SELECT event_id, public_identifier, public_component, private_component, published_at, revoked
		FROM keypackage_records ORDER BY published_at ASC`)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list key package records", err)
	}
	defer rows.Close()

	var out []domaintypes.KeyPackageRecord
	for rows.Next() {
		var r domaintypes.KeyPackageRecord
		if err := rows.Scan(&r.EventID, &r.PublicIdentifier, &r.PublicComponent, &r.PrivateComponent, &r.PublishedAt, &r.Revoked); err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan key package record", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PutContact(c domaintypes.Contact) error {
	_, err := s.db.Exec(`
		INSERT INTO contacts (public_identifier, display_name, verified_handle)
		VALUES (?, ?, ?)
		ON CONFLICT(public_identifier) DO UPDATE SET
			display_name = excluded.display_name,
			verified_handle = excluded.verified_handle`,
		string(c.PublicIdentifier), c.DisplayName, c.VerifiedHandle)
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "put contact", err)
	}
	return nil
}

func (s *Store) ListContacts() ([]domaintypes.Contact, error) {
	rows, err := s.db.Query(`SELECT public_identifier, display_name, verified_handle FROM contacts ORDER BY public_identifier`)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.StorageBackend, "list contacts", err)
	}
	defer rows.Close()

	var out []domaintypes.Contact
	for rows.Next() {
		var c domaintypes.Contact
		if err := rows.Scan(&c.PublicIdentifier, &c.DisplayName, &c.VerifiedHandle); err != nil {
			return nil, errtyp.Wrap(errtyp.StorageBackend, "scan contact", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isUniqueConstraintErr(err error) bool {
	// modernc.org/sqlite surfaces constraint violations as *sqlite.Error
	// whose message contains "UNIQUE constraint failed"; matching on the
	// message avoids importing the driver's internal error type.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time assertion that Store implements domain.Storage.
var _ domain.Storage = (*Store)(nil)
