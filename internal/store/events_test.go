package store

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
	"github.com/roach88/stateres/internal/stateres"
	"github.com/roach88/stateres/internal/testutil"
)

func TestWriteEvent_GetEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := createTestRoom()

	want := r.Event("T1")
	if err := s.WriteEvent(ctx, want); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	got, err := s.GetEvent(ctx, testutil.RoomID, want.ID)
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.ID != want.ID || got.Type != want.Type || got.Sender != want.Sender {
		t.Errorf("GetEvent() = %+v, want %+v", got, want)
	}
	if got.StateKey == nil || *got.StateKey != "" {
		t.Errorf("state_key = %v, want empty string", got.StateKey)
	}
	if got.Depth != want.Depth || got.OriginServerTS != want.OriginServerTS {
		t.Errorf("depth/ts = %d/%d, want %d/%d", got.Depth, got.OriginServerTS, want.Depth, want.OriginServerTS)
	}
	if !slices.Equal(got.AuthEvents, want.AuthEvents) {
		t.Errorf("auth_events = %v, want %v", got.AuthEvents, want.AuthEvents)
	}
	if !slices.Equal(got.PrevEvents, want.PrevEvents) {
		t.Errorf("prev_events = %v, want %v", got.PrevEvents, want.PrevEvents)
	}
	if topic := event.ContentField(got.Content, "topic").String(); topic != "hello" {
		t.Errorf("content topic = %q, want %q", topic, "hello")
	}
}

func TestWriteEvent_NonStateEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := testutil.NewBaseRoom(nil)
	msg := r.Add("MSG", "m.room.message", testutil.Alice, nil,
		map[string]any{"body": "hi"}, testutil.Prev("IJR"))
	if err := s.WriteEvent(ctx, msg); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	got, err := s.GetEvent(ctx, testutil.RoomID, msg.ID)
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.IsState() {
		t.Errorf("non-state event came back with state_key %q", *got.StateKey)
	}
	if got.AuthEvents == nil {
		t.Error("auth_events should be an empty slice, got nil")
	}
}

func TestWriteEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ev := createTestRoom().Event("T1")

	for i := 0; i < 3; i++ {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() iteration %d failed: %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Errorf("event count = %d, expected 1", count)
	}
}

func TestWriteEvent_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ev := createTestRoom().Event("T1")

	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}
	changed := *ev
	changed.Content = []byte(`{"topic":"rewritten"}`)
	if err := s.WriteEvent(ctx, &changed); err != nil {
		t.Fatalf("second WriteEvent() failed: %v", err)
	}

	got, err := s.GetEvent(ctx, testutil.RoomID, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if topic := event.ContentField(got.Content, "topic").String(); topic != "hello" {
		t.Errorf("topic = %q, want first write to win", topic)
	}
}

func TestWriteEvent_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)
	ev := &event.Event{ID: "$x:example.org", RoomID: testutil.RoomID, Type: event.TypeTopic}

	if err := s.WriteEvent(context.Background(), ev); err == nil {
		t.Error("expected error for event without sender")
	}
}

func TestWriteEvent_PreservesDecomposedText(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// NFD: "e" followed by a combining acute accent.
	jose := event.UserID("@jose\u0301:example.org")
	r := testutil.NewBaseRoom(nil)
	want := r.Add("JOSE", event.TypeMember, jose, event.StringPtr(string(jose)),
		map[string]any{"membership": "join", "displayname": "Jose\u0301"},
		testutil.Prev("IJR"), testutil.Auth("CREATE", "IJR", "IPOWER"))
	if err := s.WriteEvent(ctx, want); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	got, err := s.GetEvent(ctx, testutil.RoomID, want.ID)
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.StateKey == nil || *got.StateKey != string(jose) {
		t.Errorf("state_key = %q, want %q", derefString(got.StateKey), jose)
	}
	if got.Sender != jose {
		t.Errorf("sender = %q, want %q", got.Sender, jose)
	}
	if name := event.ContentField(got.Content, "displayname").String(); name != "Jose\u0301" {
		t.Errorf("displayname = %q, want %q", name, "Jose\u0301")
	}

	key, ok := got.Key()
	if !ok || key != (event.StateKey{Type: event.TypeMember, StateKey: string(jose)}) {
		t.Errorf("Key() = %v, %v; want member slot of %s", key, ok, jose)
	}
}

func TestWriteEvent_RejectsInvalidUTF8(t *testing.T) {
	s := createTestStore(t)
	r := testutil.NewBaseRoom(nil)
	ev := r.Topic("BAD", testutil.Alice, "hello")
	ev.StateKey = event.StringPtr("\xff")

	if err := s.WriteEvent(context.Background(), ev); err == nil {
		t.Error("expected error for invalid UTF-8 state_key")
	}
}

func derefString(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestWriteEvents_Transactional(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := createTestRoom()

	events := append(r.Events(), &event.Event{ID: "$bad:example.org"})
	if err := s.WriteEvents(ctx, events); err == nil {
		t.Fatal("expected error for invalid event in batch")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Errorf("event count = %d after failed batch, expected 0", count)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetEvent(context.Background(), testutil.RoomID, "$missing:example.org")
	if !errors.Is(err, stateres.ErrEventNotFound) {
		t.Errorf("GetEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestGetEvent_WrongRoom(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ev := createTestRoom().Event("T1")
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	_, err := s.GetEvent(ctx, "!other:example.org", ev.ID)
	if !errors.Is(err, stateres.ErrEventNotFound) {
		t.Errorf("GetEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestListRoomEvents_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := createTestRoom()

	// Insert in reverse to make sure ordering comes from the query.
	events := r.Events()
	slices.Reverse(events)
	if err := s.WriteEvents(ctx, events); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	got, err := s.ListRoomEvents(ctx, testutil.RoomID)
	if err != nil {
		t.Fatalf("ListRoomEvents() failed: %v", err)
	}

	var ids []event.EventID
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	want := r.IDs("CREATE", "IMA", "IPOWER", "IJR", "T1")
	if !slices.Equal(ids, want) {
		t.Errorf("ListRoomEvents() = %v, want %v", ids, want)
	}
}

func TestListRoomEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ListRoomEvents(context.Background(), testutil.RoomID)
	if err != nil {
		t.Fatalf("ListRoomEvents() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListRoomEvents() = %v, want empty slice", got)
	}
}

func TestListRooms(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteEvents(ctx, createTestRoom().Events()); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}
	other := testutil.NewRoom()
	other.Add("CREATE", event.TypeCreate, testutil.Bob, event.StringPtr(""),
		map[string]any{"creator": string(testutil.Bob)}, testutil.InRoom("!another:example.org"))
	if err := s.WriteEvents(ctx, other.Events()); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() failed: %v", err)
	}
	want := []event.RoomID{"!another:example.org", testutil.RoomID}
	if !slices.Equal(rooms, want) {
		t.Errorf("ListRooms() = %v, want %v", rooms, want)
	}
}

func TestStore_BacksResolver(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := testutil.NewBaseRoom(nil)
	r.Topic("TA", testutil.Alice, "a", testutil.Prev("IJR"), testutil.Auth("CREATE", "IMA", "IPOWER"))
	r.Topic("TB", testutil.Alice, "b", testutil.Prev("IJR"), testutil.Auth("CREATE", "IMA", "IPOWER"))
	if err := s.WriteEvents(ctx, r.Events()); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	base := r.BaseState()
	withTopic := func(alias string) event.StateMap {
		m := base.Clone()
		m[event.StateKey{Type: event.TypeTopic}] = r.Event(alias).ID
		return m
	}

	got, err := stateres.Resolve(ctx, testutil.RoomID, eventauth.RoomVersion("10"),
		[]event.StateMap{withTopic("TA"), withTopic("TB")}, nil, s)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	// Equal power and the later timestamp wins the mainline tie-break.
	if id, _ := got.Get(event.TypeTopic, ""); id != r.Event("TB").ID {
		t.Errorf("resolved topic = %s, want %s", id, r.Event("TB").ID)
	}
}

func TestStore_BacksResolverWithDecomposedStateKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	jose := event.UserID("@jose\u0301:example.org")
	r := testutil.NewBaseRoom(nil)
	r.Member("JOSE", jose, jose, event.MembershipJoin,
		testutil.Prev("IJR"), testutil.Auth("CREATE", "IJR", "IPOWER"))
	if err := s.WriteEvents(ctx, r.Events()); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	got, err := stateres.Resolve(ctx, testutil.RoomID, eventauth.RoomVersion("10"),
		[]event.StateMap{r.BaseState(), r.State("CREATE", "IMA", "IPOWER", "IJR", "JOSE")}, nil, s)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if id, _ := got.Get(event.TypeMember, string(jose)); id != r.Event("JOSE").ID {
		t.Errorf("resolved member = %s, want %s", id, r.Event("JOSE").ID)
	}
}
