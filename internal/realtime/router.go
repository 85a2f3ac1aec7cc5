// Package realtime is the event router: it owns the order in which commands
// from every connection are applied to the session store and fans the
// resulting deltas out to connections.
package realtime

import (
	"context"
	"errors"
	"time"

	"vox-chat/internal/domain"
	"vox-chat/internal/events"
	"vox-chat/internal/observability"
	"vox-chat/internal/session"
	"vox-chat/pkg/logger"

	"go.uber.org/zap"
)

// Sender delivers an encoded frame to one connection. It must not block.
type Sender interface {
	Send(connID string, frame []byte)
}

// Queue runs persistence jobs in the background, in enqueue order.
type Queue interface {
	Enqueue(op string, job func(ctx context.Context) error) bool
}

// Persistence is the write side of the persistence gateway.
type Persistence interface {
	SaveChannel(ctx context.Context, c domain.Channel) error
	DeleteChannel(ctx context.Context, id string) error
	SaveMessage(ctx context.Context, m *domain.Message) error
	DeleteMessage(ctx context.Context, id string) error
	ReplaceRoles(ctx context.Context, roles []domain.Role) error
	SetUserRoles(ctx context.Context, username string, roleIDs []string) error
	TouchUser(ctx context.Context, username string, at time.Time) error
	RecordLogin(ctx context.Context, l domain.LoginLog) error
}

// PreviewFetcher derives a link preview for a URL. A nil preview with a nil
// error means none could be derived.
type PreviewFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.LinkPreview, error)
}

const defaultInboxSize = 1024

type envelopeKind int

const (
	kindConnect envelopeKind = iota
	kindDisconnect
	kindCommand
	kindPreview
)

type envelope struct {
	kind       envelopeKind
	connID     string
	remoteAddr string
	cmd        events.Command
	preview    previewResult
}

type previewResult struct {
	channelID string
	messageID string
	preview   *domain.LinkPreview
}

type Router struct {
	store   *session.Store
	sender  Sender
	queue   Queue
	persist Persistence
	preview PreviewFetcher
	metrics *observability.Metrics
	log     *logger.Logger

	inbox chan envelope
	done  chan struct{}
	ctx   context.Context

	peers   *peerTable
	newID   func() string
	timeNow func() time.Time
}

type Option func(*Router)

// WithPersistence enables durable writes through q.
func WithPersistence(p Persistence, q Queue) Option {
	return func(r *Router) {
		r.persist = p
		r.queue = q
	}
}

func WithPreviewFetcher(f PreviewFetcher) Option {
	return func(r *Router) { r.preview = f }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Router) { r.log = l }
}

func WithInboxSize(n int) Option {
	return func(r *Router) { r.inbox = make(chan envelope, n) }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

func NewRouter(store *session.Store, sender Sender, opts ...Option) *Router {
	r := &Router{
		store:   store,
		sender:  sender,
		log:     logger.Nop(),
		inbox:   make(chan envelope, defaultInboxSize),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		peers:   newPeerTable(),
		newID:   newLoginID,
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes envelopes one at a time until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	r.ctx = ctx
	defer close(r.done)

	for {
		select {
		case env := <-r.inbox:
			r.process(env)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Connect registers a new connection. The sender must already be able to
// deliver to connID, since the init snapshot is sent straight away.
func (r *Router) Connect(connID, remoteAddr string) {
	r.submit(envelope{kind: kindConnect, connID: connID, remoteAddr: remoteAddr})
}

func (r *Router) Disconnect(connID string) {
	r.submit(envelope{kind: kindDisconnect, connID: connID})
}

// Dispatch decodes one inbound frame and queues it for the loop. Frames that
// fail to decode are rejected here and never reach the loop.
func (r *Router) Dispatch(connID string, raw []byte) error {
	cmd, err := events.Decode(raw)
	if err != nil {
		r.metrics.CommandRejected("decode", "malformed")
		return err
	}
	r.submit(envelope{kind: kindCommand, connID: connID, cmd: cmd})
	return nil
}

func (r *Router) submit(env envelope) {
	select {
	case r.inbox <- env:
	case <-r.done:
	}
}

func (r *Router) process(env envelope) {
	switch env.kind {
	case kindConnect:
		r.onConnect(env.connID, env.remoteAddr)
	case kindDisconnect:
		r.onDisconnect(env.connID)
	case kindPreview:
		r.onPreview(env.preview)
	case kindCommand:
		if !r.store.HasConnection(env.connID) {
			return
		}
		start := time.Now()
		name := env.cmd.Event()
		if err := r.handle(env.connID, env.cmd); err != nil {
			r.reject(env.connID, name, err)
			return
		}
		r.metrics.CommandHandled(name, time.Since(start))
	}
}

func (r *Router) handle(connID string, cmd events.Command) error {
	switch c := cmd.(type) {
	case *events.SetUsername:
		return r.setUsername(connID, c)
	case *events.JoinChannel:
		return r.store.JoinRoom(connID, c.ChannelID)
	case *events.LeaveChannel:
		r.store.LeaveRoom(connID, c.ChannelID)
		return nil
	case *events.SendMessage:
		return r.sendMessage(connID, c)
	case *events.EditMessage:
		return r.editMessage(connID, c)
	case *events.DeleteMessage:
		return r.deleteMessage(connID, c)
	case *events.AddReaction:
		return r.react(c.Reaction, r.store.AddReaction, connID)
	case *events.RemoveReaction:
		return r.react(c.Reaction, r.store.RemoveReaction, connID)
	case *events.CreateChannel:
		return r.createChannel(connID, c)
	case *events.UpdateChannel:
		return r.updateChannel(connID, c)
	case *events.DeleteChannel:
		return r.deleteChannel(connID, c)
	case *events.UpdateRoles:
		return r.updateRoles(connID, c)
	case *events.AssignRole:
		return r.assignRole(connID, c)
	case *events.JoinVoice:
		return r.joinVoice(connID, c)
	case *events.LeaveVoice:
		return r.leaveVoice(connID, c)
	case *events.KickUser:
		return r.kickUser(connID, c)
	case *events.UpdateVoiceState:
		return r.updateVoiceState(connID, c)
	case *events.UpdatePresence:
		return r.updatePresence(connID, c)
	case *events.ScreenShareStart:
		return r.startShare(connID, c)
	case *events.ScreenShareStop:
		return r.stopShare(connID, c)
	case *events.ScreenData:
		return r.relayScreenData(connID, c)
	case *events.Typing:
		return r.typing(connID, c)
	case *events.Signal:
		return r.relaySignal(connID, c)
	}
	return events.ErrUnknownEvent
}

// errSilent marks rejections that were already answered.
var errSilent = errors.New("rejected")

func (r *Router) reject(connID, event string, err error) {
	reason := rejectReason(err)
	r.metrics.CommandRejected(event, reason)
	if errors.Is(err, errSilent) {
		return
	}
	r.log.Logger.Debug("command dropped",
		zap.String("event", event),
		zap.String("conn_id", connID),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// enqueue hands a persistence job to the background writer. State has
// already been changed and broadcast by the time it runs.
func (r *Router) enqueue(op string, job func(ctx context.Context, p Persistence) error) {
	if r.persist == nil || r.queue == nil {
		return
	}
	p := r.persist
	if !r.queue.Enqueue(op, func(ctx context.Context) error { return job(ctx, p) }) {
		r.log.Logger.Warn("persistence queue full, write dropped", zap.String("op", op))
	}
}
