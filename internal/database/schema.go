package database

import "database/sql"

// The stored surface of this core is small: chat messages only. Rooms and
// presence are in-memory structures and are never persisted.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    room_id    TEXT NOT NULL DEFAULT '',
    username   TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created
    ON messages (room_id, created_at);
`

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
