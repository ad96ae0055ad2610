package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/stateres/internal/canonicaljson"
	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/stateres"
)

var _ stateres.Store = (*Store)(nil)

const insertEventSQL = `
	INSERT INTO events
	(event_id, room_id, type, state_key, sender, depth, origin_server_ts, json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO NOTHING
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteEvent inserts an event. Uses ON CONFLICT(event_id) DO NOTHING, so
// writing an id that already exists is a no-op and the stored body is kept.
//
// The body is stored as canonical JSON.
func (s *Store) WriteEvent(ctx context.Context, ev *event.Event) error {
	return insertEvent(ctx, s.db, ev)
}

// WriteEvents inserts events in a single transaction. Either every event is
// written or none is.
func (s *Store) WriteEvents(ctx context.Context, events []*event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, db execer, ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	body, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	var stateKey sql.NullString
	if ev.StateKey != nil {
		stateKey = sql.NullString{String: *ev.StateKey, Valid: true}
	}

	_, err = db.ExecContext(ctx, insertEventSQL,
		string(ev.ID),
		string(ev.RoomID),
		ev.Type,
		stateKey,
		string(ev.Sender),
		ev.Depth,
		ev.OriginServerTS,
		body,
	)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent returns the event with the given id in the given room.
// A missing id, or an id stored under another room, returns an error
// matching stateres.ErrEventNotFound.
func (s *Store) GetEvent(ctx context.Context, roomID event.RoomID, eventID event.EventID) (*event.Event, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT json FROM events
		WHERE event_id = ? AND room_id = ?
	`, string(eventID), string(roomID)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s in %s: %w", eventID, roomID, stateres.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query event %s: %w", eventID, err)
	}
	return unmarshalEvent(body)
}

// ListRoomEvents returns every stored event of a room.
// Results are ordered by depth, origin_server_ts, then event_id byte-wise.
//
// Returns an empty slice (not nil) if the room has no events.
func (s *Store) ListRoomEvents(ctx context.Context, roomID event.RoomID) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT json FROM events
		WHERE room_id = ?
		ORDER BY depth ASC, origin_server_ts ASC, event_id COLLATE BINARY ASC
	`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []*event.Event{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(body)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListRooms returns the distinct room ids with stored events, byte-wise sorted.
func (s *Store) ListRooms(ctx context.Context) ([]event.RoomID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT room_id FROM events
		ORDER BY room_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []event.RoomID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, event.RoomID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// marshalEvent renders an event as canonical JSON text.
func marshalEvent(ev *event.Event) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	data, err := canonicaljson.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}
	return string(data), nil
}

func unmarshalEvent(body string) (*event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.PrevEvents == nil {
		ev.PrevEvents = []event.EventID{}
	}
	if ev.AuthEvents == nil {
		ev.AuthEvents = []event.EventID{}
	}
	return &ev, nil
}
