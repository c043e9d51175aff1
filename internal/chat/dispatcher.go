package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"world-chat/internal/auth"
	"world-chat/internal/errs"
	"world-chat/internal/messaging"
	"world-chat/internal/metrics"
	"world-chat/internal/models"
	"world-chat/internal/presence"
	"world-chat/internal/reaction"
	"world-chat/internal/repository"
	"world-chat/internal/session"
	"world-chat/internal/types"
	"world-chat/internal/typing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Deps struct {
	Hub         *Hub
	Sessions    *session.Registry
	Presence    presence.Store
	Pipeline    *messaging.Pipeline
	Reactions   *reaction.Engine
	Profiles    repository.ProfileRepo
	TypingQuiet time.Duration
	Room        string
	Metrics     *metrics.Collectors
	Log         zerolog.Logger
}

// Dispatcher routes inbound events of every connection and runs the
// join/disconnect lifecycle. Handle is called sequentially per connection and
// concurrently across connections.
type Dispatcher struct {
	hub       *Hub
	sessions  *session.Registry
	presence  presence.Store
	pipeline  *messaging.Pipeline
	reactions *reaction.Engine
	profiles  repository.ProfileRepo
	typing    *typing.Debouncer
	room      string
	metrics   *metrics.Collectors
	log       zerolog.Logger

	handlers map[string]handlerFunc

	// countSeq orders count reads; countMu only guards which read was last
	// broadcast and is never held across a store call
	countSeq  atomic.Uint64
	countMu   sync.Mutex
	countSent uint64
}

const maxDisplayName = 32

type handlerFunc func(ctx context.Context, c *Client, identity string, env types.Envelope) error

func NewDispatcher(deps Deps) *Dispatcher {
	room := deps.Room
	if room == "" {
		room = models.GlobalRoom
	}
	d := &Dispatcher{
		hub:       deps.Hub,
		sessions:  deps.Sessions,
		presence:  deps.Presence,
		pipeline:  deps.Pipeline,
		reactions: deps.Reactions,
		profiles:  deps.Profiles,
		room:      room,
		metrics:   deps.Metrics,
		log:       deps.Log.With().Str("component", "dispatcher").Logger(),
	}
	d.typing = typing.NewDebouncer(deps.TypingQuiet, d.onTyping, deps.Log)
	d.handlers = map[string]handlerFunc{
		types.EventSetDisplayName: d.setDisplayName,
		types.EventSendMessage:    d.sendMessage,
		types.EventTypingStart:    d.typingStart,
		types.EventTypingStop:     d.typingStop,
		types.EventToggleReaction: d.toggleReaction,
		types.EventEditMessage:    d.editMessage,
		types.EventDeleteMessage:  d.deleteMessage,
	}
	return d
}

func (d *Dispatcher) Typing() *typing.Debouncer { return d.typing }

// Connect admits a transport-level connection in the unjoined state.
func (d *Dispatcher) Connect(c *Client) {
	d.hub.Register(c)
	d.metrics.ConnectionOpened()
	d.log.Info().Str("conn", c.ID).Msg("connected")
}

// Handle decodes one frame and runs its handler. Failures go back to the
// sender only and never close the connection.
func (d *Dispatcher) Handle(ctx context.Context, c *Client, frame []byte) {
	env, err := types.DecodeEnvelope(frame)
	if err != nil {
		d.reply(c, "", err)
		return
	}

	if env.Event == types.EventJoin {
		d.reply(c, env.Event, d.join(ctx, c, env))
		return
	}

	handler, ok := d.handlers[env.Event]
	if !ok {
		d.reply(c, env.Event, errs.Withf(errs.ErrInvalidPayload, "unknown event %q", env.Event))
		return
	}

	identity, joined := d.sessions.IdentityOf(c.ID)
	if !joined {
		d.reply(c, env.Event, errs.ErrNotAuthenticated)
		return
	}
	d.reply(c, env.Event, handler(ctx, c, identity, env))
}

// Disconnect runs the cleanup path once per connection: leave rooms, unbind,
// drop presence, clear typing and publish the new count. An evicted
// connection no longer owns its identity, so only the hub entry is removed.
func (d *Dispatcher) Disconnect(ctx context.Context, c *Client) {
	c.gone.Do(func() {
		d.hub.Unregister(c)
		d.metrics.ConnectionClosed()

		identity, ok := d.sessions.Unbind(c.ID)
		if !ok {
			d.log.Info().Str("conn", c.ID).Msg("disconnected before join")
			return
		}
		d.typing.Clear(identity)
		d.leavePresence(ctx, identity)
		d.log.Info().Str("conn", c.ID).Str("identity", identity).Int("sessions", d.sessions.Len()).Msg("disconnected")
	})
}

func (d *Dispatcher) join(ctx context.Context, c *Client, env types.Envelope) error {
	var req types.JoinRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return errs.Withf(errs.ErrInvalidPayload, "identity is required")
	}
	if c.Principal != nil && c.Principal.Identity != identity {
		return errs.Withf(errs.ErrForbidden, "identity does not match the presented token")
	}

	if previous, ok := d.sessions.IdentityOf(c.ID); ok && previous != identity {
		d.typing.Clear(previous)
		d.sessions.Unbind(c.ID)
		d.leavePresence(ctx, previous)
	}

	res := d.sessions.Bind(c.ID, identity)
	if res.HasEviction() {
		d.evict(res.Evicted, identity)
	}

	// join the room first so the count broadcast reaches this connection too
	d.hub.JoinRoom(d.room, c)
	if err := d.enterPresence(ctx, identity); err != nil {
		d.hub.LeaveRoom(d.room, c)
		d.sessions.Unbind(c.ID)
		return err
	}
	d.log.Info().Str("conn", c.ID).Str("identity", identity).Str("room", d.room).
		Int("room_size", d.hub.RoomSize(d.room)).Msg("joined")

	d.ensureDisplayName(ctx, c, identity)
	return nil
}

// evict closes the connection that previously held identity. Its binding is
// already gone, so its own disconnect path will not touch presence.
func (d *Dispatcher) evict(connectionID, identity string) {
	d.metrics.Evicted()
	old, ok := d.hub.Client(connectionID)
	if ok {
		d.hub.Unregister(old)
	}
	// after unregistering, so the stop notice never reaches the evicted socket
	d.typing.Clear(identity)
	if !ok {
		return
	}
	old.Emit(types.EventError, types.ErrorPayload{
		Code:    string(errs.CodeNotAuthenticated),
		Message: "session opened elsewhere",
	})
	old.Close()
	d.log.Info().Str("conn", connectionID).Str("identity", identity).Msg("evicted previous session")
}

// ensureDisplayName adopts the verified token's name when the identity has
// none yet, and otherwise prompts the connection for one.
func (d *Dispatcher) ensureDisplayName(ctx context.Context, c *Client, identity string) {
	profile, err := d.profiles.GetProfile(ctx, identity)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		d.log.Error().Err(err).Str("identity", identity).Msg("profile lookup failed")
		return
	case profile.DisplayNameSet:
		return
	}

	if name := principalName(c.Principal); name != "" {
		_, err := d.profiles.SetDisplayName(ctx, identity, name)
		if err == nil {
			d.log.Debug().Str("identity", identity).Msg("display name taken from token")
			return
		}
		d.log.Error().Err(err).Str("identity", identity).Msg("adopting token display name failed")
	}
	c.Emit(types.EventDisplayNameRequired, types.DisplayNameRequiredPayload{Identity: identity})
}

func (d *Dispatcher) setDisplayName(ctx context.Context, c *Client, identity string, env types.Envelope) error {
	var req types.SetDisplayNameRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := types.Validate(&req); err != nil {
		return err
	}
	if req.Identity != identity {
		return errs.Withf(errs.ErrForbidden, "cannot rename another identity")
	}

	profile, err := d.profiles.SetDisplayName(ctx, identity, req.DisplayName)
	if err != nil {
		d.log.Error().Err(err).Str("identity", identity).Msg("set display name failed")
		return errs.New(errs.CodeInternal, "display name could not be saved")
	}
	c.Emit(types.EventDisplayNameUpdated, types.DisplayNameUpdatedPayload{
		Identity:    profile.Identity,
		DisplayName: profile.DisplayName,
	})
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, c *Client, identity string, env types.Envelope) error {
	var req types.SendMessageRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	replyTo, err := optionalID(req.ReplyToMessageID)
	if err != nil {
		return err
	}

	_, err = d.pipeline.CreateAndBroadcast(ctx, messaging.CreateRequest{
		Room:          d.room,
		Author:        identity,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		ReplyToID:     replyTo,
	})
	if errors.Is(err, errs.ErrUsernameRequired) {
		c.Emit(types.EventDisplayNameRequired, types.DisplayNameRequiredPayload{Identity: identity})
		return nil
	}
	return err
}

func (d *Dispatcher) typingStart(_ context.Context, c *Client, identity string, env types.Envelope) error {
	room, err := d.typingRoom(c, env)
	if err != nil {
		return err
	}
	d.typing.Start(room, identity)
	return nil
}

func (d *Dispatcher) typingStop(_ context.Context, c *Client, identity string, env types.Envelope) error {
	room, err := d.typingRoom(c, env)
	if err != nil {
		return err
	}
	d.typing.Stop(room, identity)
	return nil
}

func (d *Dispatcher) typingRoom(c *Client, env types.Envelope) (string, error) {
	var req types.TypingRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return "", err
	}
	room := req.Room
	if room == "" {
		room = d.room
	}
	if !d.hub.InRoom(room, c.ID) {
		return "", errs.Withf(errs.ErrForbidden, "not a member of room %q", room)
	}
	return room, nil
}

// onTyping fans typing transitions out to everyone in the room but the typist.
func (d *Dispatcher) onTyping(e typing.Event) {
	exclude, _ := d.sessions.ConnectionOf(e.Identity)
	event := types.EventUserStoppedTyping
	if e.Typing {
		event = types.EventUserTyping
	}
	d.hub.BroadcastToRoom(e.Room, event, types.TypingPayload{Identity: e.Identity}, exclude)
}

func (d *Dispatcher) toggleReaction(ctx context.Context, _ *Client, identity string, env types.Envelope) error {
	var req types.ToggleReactionRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return errs.Withf(errs.ErrInvalidPayload, "messageId is not a uuid")
	}

	res, err := d.reactions.Toggle(ctx, messageID, identity, req.Emoji)
	if err != nil {
		return err
	}
	d.metrics.ReactionToggled(string(res.Outcome))
	d.hub.BroadcastToRoom(res.Room, types.EventReactionsUpdated, types.ReactionsUpdatedPayload{
		MessageID: res.MessageID.String(),
		Reactions: res.Reactions,
	}, "")
	return nil
}

func (d *Dispatcher) editMessage(ctx context.Context, _ *Client, identity string, env types.Envelope) error {
	var req types.EditMessageRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return errs.Withf(errs.ErrInvalidPayload, "messageId is not a uuid")
	}
	_, err = d.pipeline.Edit(ctx, messageID, identity, req.Content)
	return err
}

func (d *Dispatcher) deleteMessage(ctx context.Context, _ *Client, identity string, env types.Envelope) error {
	var req types.DeleteMessageRequest
	if err := types.Decode(env.Data, &req); err != nil {
		return err
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return errs.Withf(errs.ErrInvalidPayload, "messageId is not a uuid")
	}
	_, err = d.pipeline.Delete(ctx, messageID, identity)
	return err
}

func (d *Dispatcher) enterPresence(ctx context.Context, identity string) error {
	if err := d.presence.Add(ctx, identity); err != nil {
		d.log.Error().Err(err).Str("identity", identity).Msg("presence add failed")
		return errs.New(errs.CodeInternal, "presence unavailable")
	}
	d.publishCount(ctx)
	return nil
}

// leavePresence removes identity unless a newer connection has bound it. No
// lock spans the store calls: if a rebind slips in between the check and the
// removal, the second check restores the entry. A rebind is always made
// before its own add, so one of the two adds lands after the remove.
func (d *Dispatcher) leavePresence(ctx context.Context, identity string) {
	if _, rebound := d.sessions.ConnectionOf(identity); rebound {
		return
	}
	if err := d.presence.Remove(ctx, identity); err != nil {
		d.log.Error().Err(err).Str("identity", identity).Msg("presence remove failed")
	}
	if _, rebound := d.sessions.ConnectionOf(identity); rebound {
		if err := d.presence.Add(ctx, identity); err != nil {
			d.log.Error().Err(err).Str("identity", identity).Msg("presence restore failed")
		}
	}
	d.publishCount(ctx)
}

// publishCount broadcasts the current count. Reads are sequenced before the
// store call, and a read that finishes after a newer one is dropped, so a
// stale count never overwrites a fresher one.
func (d *Dispatcher) publishCount(ctx context.Context) {
	seq := d.countSeq.Add(1)
	count, err := d.presence.Count(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("presence count failed")
		return
	}

	d.countMu.Lock()
	defer d.countMu.Unlock()
	if seq < d.countSent {
		return
	}
	d.countSent = seq
	d.metrics.SetOnline(count)
	d.hub.BroadcastToRoom(d.room, types.EventOnlineCount, types.OnlineCountPayload{Count: count}, "")
}

func (d *Dispatcher) reply(c *Client, event string, err error) {
	if err == nil {
		return
	}
	code := errs.CodeOf(err)
	ev := d.log.Debug()
	if code == errs.CodeInternal || code == errs.CodeMessageFailed || code == errs.CodeReactionFailed {
		ev = d.log.Error()
	}
	ev.Err(err).Str("conn", c.ID).Str("event", event).Str("code", string(code)).Msg("event rejected")

	c.Emit(types.EventError, types.ErrorPayload{Code: string(code), Message: errs.MessageOf(err)})
}

func optionalID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errs.Withf(errs.ErrInvalidPayload, "replyToMessageId is not a uuid")
	}
	return &id, nil
}

func principalName(p *auth.Principal) string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(p.DisplayName)
	if r := []rune(name); len(r) > maxDisplayName {
		name = strings.TrimSpace(string(r[:maxDisplayName]))
	}
	return name
}
