package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
)

// ErrSnapshotNotFound is returned when no snapshot has the requested name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a named state map for one room.
type Snapshot struct {
	Name    string
	RoomID  event.RoomID
	Version eventauth.RoomVersion
	State   event.StateMap
}

// WriteSnapshot stores a snapshot, replacing any snapshot with the same name.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("write snapshot: name is required")
	}
	if snap.RoomID == "" {
		return fmt.Errorf("write snapshot %s: room_id is required", snap.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM snapshot_entries WHERE name = ?`,
		`DELETE FROM snapshots WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, snap.Name); err != nil {
			return fmt.Errorf("write snapshot %s: %w", snap.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, room_id, version) VALUES (?, ?, ?)
	`, snap.Name, string(snap.RoomID), string(snap.Version)); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.Name, err)
	}

	for _, e := range snap.State.Entries() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_entries (name, type, state_key, event_id)
			VALUES (?, ?, ?, ?)
		`, snap.Name, e.Type, e.StateKey, string(e.EventID)); err != nil {
			return fmt.Errorf("write snapshot %s entry %s/%s: %w", snap.Name, e.Type, e.StateKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", snap.Name, err)
	}
	return nil
}

// ReadSnapshot returns the named snapshot or an error matching
// ErrSnapshotNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, name string) (Snapshot, error) {
	snap := Snapshot{Name: name}
	var roomID, version string
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, version FROM snapshots WHERE name = ?
	`, name).Scan(&roomID, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("snapshot %q: %w", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot %q: %w", name, err)
	}
	snap.RoomID = event.RoomID(roomID)
	snap.Version = eventauth.RoomVersion(version)

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, state_key, event_id FROM snapshot_entries
		WHERE name = ?
		ORDER BY type COLLATE BINARY ASC, state_key COLLATE BINARY ASC
	`, name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot entries: %w", err)
	}
	defer rows.Close()

	var entries []event.StateEntry
	for rows.Next() {
		var e event.StateEntry
		var id string
		if err := rows.Scan(&e.Type, &e.StateKey, &id); err != nil {
			return Snapshot{}, fmt.Errorf("scan snapshot entry: %w", err)
		}
		e.EventID = event.EventID(id)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate snapshot entries: %w", err)
	}

	state, err := event.StateMapFromEntries(entries)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %q: %w", name, err)
	}
	snap.State = state
	return snap, nil
}

// SnapshotInfo summarizes a stored snapshot.
type SnapshotInfo struct {
	Name    string                `json:"name"`
	RoomID  event.RoomID          `json:"room_id"`
	Version eventauth.RoomVersion `json:"version"`
	Entries int                   `json:"entries"`
}

// ListSnapshots returns all snapshots ordered by name.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.room_id, s.version, COUNT(e.event_id)
		FROM snapshots s
		LEFT JOIN snapshot_entries e ON e.name = s.name
		GROUP BY s.name, s.room_id, s.version
		ORDER BY s.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	infos := []SnapshotInfo{}
	for rows.Next() {
		var info SnapshotInfo
		var roomID, version string
		if err := rows.Scan(&info.Name, &roomID, &version, &info.Entries); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.RoomID = event.RoomID(roomID)
		info.Version = eventauth.RoomVersion(version)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}
