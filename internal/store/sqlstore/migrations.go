package sqlstore

// schema is applied once at Open time. Every statement is idempotent so
// repeated opens of an existing database file are safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		mls_group_id   TEXT PRIMARY KEY,
		nostr_group_id TEXT NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		epoch          INTEGER NOT NULL DEFAULT 0,
		admins         TEXT NOT NULL DEFAULT '[]',
		relays         TEXT NOT NULL DEFAULT '[]',
		creator        TEXT NOT NULL,
		membership     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		event_id    TEXT PRIMARY KEY,
		group_id    TEXT NOT NULL REFERENCES groups(mls_group_id),
		author      TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		received_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group_order
		ON messages(group_id, created_at, event_id)`,
	`CREATE TABLE IF NOT EXISTS pending_invites (
		welcome_event_id  TEXT PRIMARY KEY,
		inviter           TEXT NOT NULL,
		proposed_group_id TEXT NOT NULL,
		group_name        TEXT NOT NULL DEFAULT '',
		group_description TEXT NOT NULL DEFAULT '',
		received_at       INTEGER NOT NULL,
		state             INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS keypackage_records (
		event_id          TEXT PRIMARY KEY,
		public_identifier TEXT NOT NULL,
		public_component  BLOB NOT NULL,
		private_component BLOB,
		published_at      INTEGER NOT NULL,
		revoked           INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		public_identifier TEXT PRIMARY KEY,
		display_name      TEXT NOT NULL DEFAULT '',
		verified_handle   TEXT NOT NULL DEFAULT ''
	)`,
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
