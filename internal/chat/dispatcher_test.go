package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"world-chat/internal/auth"
	"world-chat/internal/errs"
	"world-chat/internal/messaging"
	"world-chat/internal/models"
	"world-chat/internal/presence"
	"world-chat/internal/reaction"
	"world-chat/internal/repository"
	"world-chat/internal/session"
	"world-chat/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testQuiet = 60 * time.Millisecond

type harness struct {
	hub      *Hub
	sessions *session.Registry
	presence presence.Store
	store    *repository.MemoryStore
	d        *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, presence.NewMemoryStore())
}

func newHarnessWith(t *testing.T, online presence.Store) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		hub:      NewHub(nil, log),
		sessions: session.NewRegistry(),
		presence: online,
		store:    repository.NewMemoryStore(),
	}
	pipeline := messaging.NewPipeline(h.store, h.store, h.store, h.hub, messaging.Options{}, nil, log)
	h.d = NewDispatcher(Deps{
		Hub:         h.hub,
		Sessions:    h.sessions,
		Presence:    h.presence,
		Pipeline:    pipeline,
		Reactions:   reaction.NewEngine(h.store, h.store, log),
		Profiles:    h.store,
		TypingQuiet: testQuiet,
		Log:         log,
	})
	t.Cleanup(h.d.Typing().Close)
	return h
}

func (h *harness) connect(principal *auth.Principal) *Client {
	c := NewClient(nil, 64, principal, zerolog.Nop())
	h.d.Connect(c)
	return c
}

func (h *harness) send(t *testing.T, c *Client, event string, data any) {
	t.Helper()
	frame, err := types.Encode(event, data)
	require.NoError(t, err)
	h.d.Handle(context.Background(), c, frame)
}

// join binds c to identity, names it and discards the resulting frames.
func (h *harness) join(t *testing.T, c *Client, identity, name string) {
	t.Helper()
	h.send(t, c, types.EventJoin, types.JoinRequest{Identity: identity})
	h.send(t, c, types.EventSetDisplayName, types.SetDisplayNameRequest{Identity: identity, DisplayName: name})
}

func next(t *testing.T, c *Client) types.Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var env types.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.ID)
		return types.Envelope{}
	}
}

// nextEvent skips frames until event arrives.
func nextEvent(t *testing.T, c *Client, event string) types.Envelope {
	t.Helper()
	for {
		env := next(t, c)
		if env.Event == event {
			return env
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case _, ok := <-c.Send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func requireSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame for %s: %s", c.ID, frame)
	case <-time.After(20 * time.Millisecond):
	}
}

func payload[T any](t *testing.T, env types.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func errorCode(t *testing.T, c *Client) string {
	t.Helper()
	return payload[types.ErrorPayload](t, nextEvent(t, c, types.EventError)).Code
}

func TestDispatcher_Join_Publishes_Online_Count(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)

	// Given guestA joins alone
	h.send(t, a, types.EventJoin, types.JoinRequest{Identity: "guestA"})

	// Then guestA sees a count of 1 and a display name prompt
	req.Equal(1, payload[types.OnlineCountPayload](t, nextEvent(t, a, types.EventOnlineCount)).Count)
	prompt := nextEvent(t, a, types.EventDisplayNameRequired)
	req.Equal("guestA", payload[types.DisplayNameRequiredPayload](t, prompt).Identity)

	// When guestB joins
	h.send(t, b, types.EventJoin, types.JoinRequest{Identity: "guestB"})

	// Then both see 2
	req.Equal(2, payload[types.OnlineCountPayload](t, nextEvent(t, a, types.EventOnlineCount)).Count)
	req.Equal(2, payload[types.OnlineCountPayload](t, nextEvent(t, b, types.EventOnlineCount)).Count)
}

func TestDispatcher_Message_Reaches_Everyone_Until_Disconnect(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	drain(a)
	drain(b)

	// When guestA says hi
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "hi"})

	// Then both connections receive the same materialized message
	for _, c := range []*Client{a, b} {
		view := payload[types.MessageView](t, nextEvent(t, c, types.EventNewMessage))
		req.Equal("hi", view.Content)
		req.Equal("guestA", view.SenderID)
		req.Equal("Ada", view.SenderName)
	}

	// When guestB disconnects
	h.d.Disconnect(context.Background(), b)

	// Then guestA sees the count drop and guestB gets nothing more
	req.Equal(1, payload[types.OnlineCountPayload](t, nextEvent(t, a, types.EventOnlineCount)).Count)
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "anyone?"})
	nextEvent(t, a, types.EventNewMessage)
	requireSilent(t, b)

	online, err := h.presence.IsOnline(context.Background(), "guestB")
	req.NoError(err)
	req.False(online)
}

func TestDispatcher_Reaction_Toggle_Broadcasts_Grouped_View(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "vote"})
	view := payload[types.MessageView](t, nextEvent(t, a, types.EventNewMessage))
	drain(a)
	drain(b)

	// When guestB reacts with a thumbs up
	h.send(t, b, types.EventToggleReaction, types.ToggleReactionRequest{MessageID: view.ID, Emoji: "👍"})

	// Then everyone sees one thumbs up from guestB
	for _, c := range []*Client{a, b} {
		got := payload[types.ReactionsUpdatedPayload](t, nextEvent(t, c, types.EventReactionsUpdated))
		req.Equal(view.ID, got.MessageID)
		req.Equal(models.ReactionGroup{Count: 1, Users: []string{"guestB"}}, got.Reactions["👍"])
	}

	// When guestB toggles again
	h.send(t, b, types.EventToggleReaction, types.ToggleReactionRequest{MessageID: view.ID, Emoji: "👍"})

	// Then the emoji is gone
	got := payload[types.ReactionsUpdatedPayload](t, nextEvent(t, a, types.EventReactionsUpdated))
	req.NotContains(got.Reactions, "👍")
}

func TestDispatcher_Events_Before_Join_Are_Rejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, b, "guestB", "Bob")
	drain(b)

	// When an unjoined connection tries to send
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "hi"})

	// Then only it hears about it
	req.Equal(string(errs.CodeNotAuthenticated), errorCode(t, a))
	requireSilent(t, b)
}

func TestDispatcher_Rejects_Malformed_And_Unknown_Frames(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a := h.connect(nil)

	h.d.Handle(context.Background(), a, []byte("not json"))
	req.Equal(string(errs.CodeInvalidPayload), errorCode(t, a))

	h.send(t, a, "shout", nil)
	req.Equal(string(errs.CodeInvalidPayload), errorCode(t, a))

	h.send(t, a, types.EventJoin, types.JoinRequest{})
	req.Equal(string(errs.CodeInvalidPayload), errorCode(t, a))
	req.Equal(0, h.sessions.Len())
}

func TestDispatcher_Invalid_Message_Is_Not_Broadcast(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	drain(a)
	drain(b)

	// When guestA sends markup that sanitizes to nothing
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "  <script></script> "})

	// Then guestA gets INVALID_MESSAGE and nobody gets a message
	req.Equal(string(errs.CodeInvalidMessage), errorCode(t, a))
	requireSilent(t, b)

	msgs, err := h.store.FetchSince(context.Background(), models.GlobalRoom, repository.Cursor{}, 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestDispatcher_Send_Without_Display_Name_Prompts(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a := h.connect(nil)
	h.send(t, a, types.EventJoin, types.JoinRequest{Identity: "guestA"})
	drain(a)

	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "hi"})

	env := next(t, a)
	req.Equal(types.EventDisplayNameRequired, env.Event)
}

func TestDispatcher_Second_Connection_Evicts_First(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	ctx := context.Background()
	first, second := h.connect(nil), h.connect(nil)

	// Given guestA is joined on one connection
	h.join(t, first, "guestA", "Ada")

	// When guestA joins again elsewhere
	h.send(t, second, types.EventJoin, types.JoinRequest{Identity: "guestA"})

	// Then the first connection is closed and the identity moves over
	req.True(first.IsClosed())
	conn, ok := h.sessions.ConnectionOf("guestA")
	req.True(ok)
	req.Equal(second.ID, conn)
	req.False(h.hub.InRoom(models.GlobalRoom, first.ID))

	// And the stale connection's cleanup leaves guestA online
	h.d.Disconnect(ctx, first)
	online, err := h.presence.IsOnline(ctx, "guestA")
	req.NoError(err)
	req.True(online)
	count, err := h.presence.Count(ctx)
	req.NoError(err)
	req.Equal(1, count)
}

func TestDispatcher_Join_Must_Match_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a := h.connect(&auth.Principal{Identity: "guestA"})

	h.send(t, a, types.EventJoin, types.JoinRequest{Identity: "guestB"})

	req.Equal(string(errs.CodeForbidden), errorCode(t, a))
	req.Equal(0, h.sessions.Len())
}

func TestDispatcher_Typing_Excludes_Typist_And_Expires(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	drain(a)
	drain(b)

	// When guestA starts typing and goes quiet
	h.send(t, a, types.EventTypingStart, types.TypingRequest{})

	// Then guestB sees start then stop, and guestA sees neither
	started := next(t, b)
	req.Equal(types.EventUserTyping, started.Event)
	req.Equal("guestA", payload[types.TypingPayload](t, started).Identity)
	stopped := next(t, b)
	req.Equal(types.EventUserStoppedTyping, stopped.Event)
	requireSilent(t, a)
}

func TestDispatcher_Typing_Outside_Room_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a := h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	drain(a)

	h.send(t, a, types.EventTypingStart, types.TypingRequest{Room: "elsewhere"})

	req.Equal(string(errs.CodeForbidden), errorCode(t, a))
	req.Equal(0, h.d.Typing().Len())
}

func TestDispatcher_Disconnect_Clears_Typing(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	h.send(t, a, types.EventTypingStart, types.TypingRequest{})
	drain(b)

	h.d.Disconnect(context.Background(), a)

	nextEvent(t, b, types.EventUserStoppedTyping)
	req.Equal(0, h.d.Typing().Len())
}

func TestDispatcher_Edit_And_Delete_Are_Broadcast(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a, b := h.connect(nil), h.connect(nil)
	h.join(t, a, "guestA", "Ada")
	h.join(t, b, "guestB", "Bob")
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "draft"})
	view := payload[types.MessageView](t, nextEvent(t, a, types.EventNewMessage))
	drain(a)
	drain(b)

	// guestB may not edit guestA's message
	h.send(t, b, types.EventEditMessage, types.EditMessageRequest{MessageID: view.ID, Content: "mine"})
	req.Equal(string(errs.CodeForbidden), errorCode(t, b))

	h.send(t, a, types.EventEditMessage, types.EditMessageRequest{MessageID: view.ID, Content: "final"})
	edited := payload[types.MessageView](t, nextEvent(t, b, types.EventMessageEdited))
	req.Equal("final", edited.Content)
	req.True(edited.Edited)

	h.send(t, a, types.EventDeleteMessage, types.DeleteMessageRequest{MessageID: view.ID})
	deleted := payload[types.MessageDeletedPayload](t, nextEvent(t, b, types.EventMessageDeleted))
	req.Equal(view.ID, deleted.MessageID)
	req.True(deleted.Deleted)
}

// gatedPresence parks Remove until the test releases it.
type gatedPresence struct {
	*presence.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPresence) Remove(ctx context.Context, identity string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.Remove(ctx, identity)
}

func TestDispatcher_Rejoin_During_Slow_Removal(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	online := &gatedPresence{
		MemoryStore: presence.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	h := newHarnessWith(t, online)
	old, watcher := h.connect(nil), h.connect(nil)
	h.join(t, old, "guestA", "Ada")
	h.join(t, watcher, "guestB", "Bob")

	// Given guestA's disconnect is stuck inside the presence store
	left := make(chan struct{})
	go func() {
		h.d.Disconnect(ctx, old)
		close(left)
	}()
	select {
	case <-online.entered:
	case <-time.After(time.Second):
		t.Fatal("disconnect never reached the presence store")
	}

	// When guestA rejoins on a new connection meanwhile
	frame, err := types.Encode(types.EventJoin, types.JoinRequest{Identity: "guestA"})
	req.NoError(err)
	fresh := h.connect(nil)
	joined := make(chan struct{})
	go func() {
		h.d.Handle(ctx, fresh, frame)
		close(joined)
	}()

	// Then the join is not held up by the pending removal
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join waited on another identity's presence removal")
	}

	// And once the removal lands guestA is still online
	close(online.release)
	<-left
	isOnline, err := h.presence.IsOnline(ctx, "guestA")
	req.NoError(err)
	req.True(isOnline)
	count, err := h.presence.Count(ctx)
	req.NoError(err)
	req.Equal(2, count)
}

func TestDispatcher_Join_Adopts_Token_Display_Name(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	a := h.connect(&auth.Principal{Identity: "guestA", DisplayName: "  Ada Lovelace "})

	// When a token holder with a name joins for the first time
	h.send(t, a, types.EventJoin, types.JoinRequest{Identity: "guestA"})

	// Then no prompt is sent and messages carry the token's name
	req.Equal(types.EventOnlineCount, next(t, a).Event)
	h.send(t, a, types.EventSendMessage, types.SendMessageRequest{Content: "hi"})
	env := next(t, a)
	req.Equal(types.EventNewMessage, env.Event)
	req.Equal("Ada Lovelace", payload[types.MessageView](t, env).SenderName)
}

func TestDispatcher_Join_Keeps_Chosen_Display_Name(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, err := h.store.SetDisplayName(context.Background(), "guestB", "Bob")
	req.NoError(err)
	b := h.connect(&auth.Principal{Identity: "guestB", DisplayName: "Robert"})

	h.send(t, b, types.EventJoin, types.JoinRequest{Identity: "guestB"})

	profile, err := h.store.GetProfile(context.Background(), "guestB")
	req.NoError(err)
	req.Equal("Bob", profile.DisplayName)
}

func TestDispatcher_Eviction_Does_Not_Echo_Typing_To_Old_Socket(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	old, watcher := h.connect(nil), h.connect(nil)
	h.join(t, old, "guestA", "Ada")
	h.join(t, watcher, "guestB", "Bob")
	h.send(t, old, types.EventTypingStart, types.TypingRequest{})
	drain(old)
	drain(watcher)

	// When guestA opens a second session
	fresh := h.connect(nil)
	h.send(t, fresh, types.EventJoin, types.JoinRequest{Identity: "guestA"})

	// Then others learn guestA stopped typing
	nextEvent(t, watcher, types.EventUserStoppedTyping)

	// But the evicted socket is never told about its own typing
	req.True(old.IsClosed())
	for frame := range old.Send {
		var env types.Envelope
		req.NoError(json.Unmarshal(frame, &env))
		req.NotEqual(types.EventUserStoppedTyping, env.Event)
	}
}
