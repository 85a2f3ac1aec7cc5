package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"vox-chat/internal/domain"
	"vox-chat/internal/events"
	"vox-chat/internal/session"
	"vox-chat/pkg/logger"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

// recorder is a Sender that keeps every frame per connection.
type recorder struct {
	mu     sync.Mutex
	frames map[string][]events.Frame
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[string][]events.Frame)}
}

func (r *recorder) Send(connID string, frame []byte) {
	var f events.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[connID] = append(r.frames[connID], f)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[string][]events.Frame)
}

func (r *recorder) names(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames[connID] {
		out = append(out, f.Event)
	}
	return out
}

// received returns the frames of one event type sent to connID.
func (r *recorder) received(connID, event string) []events.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Frame
	for _, f := range r.frames[connID] {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// total counts frames of one event type across all connections.
func (r *recorder) total(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, frames := range r.frames {
		for _, f := range frames {
			if f.Event == event {
				n++
			}
		}
	}
	return n
}

// syncQueue runs persistence jobs inline.
type syncQueue struct{}

func (syncQueue) Enqueue(_ string, job func(ctx context.Context) error) bool {
	_ = job(context.Background())
	return true
}

type fakePersistence struct {
	ops    []string
	logins []domain.LoginLog
	roles  map[string][]string
}

func (f *fakePersistence) record(op string) error {
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakePersistence) SaveChannel(context.Context, domain.Channel) error {
	return f.record("SaveChannel")
}

func (f *fakePersistence) DeleteChannel(context.Context, string) error {
	return f.record("DeleteChannel")
}

func (f *fakePersistence) SaveMessage(context.Context, *domain.Message) error {
	return f.record("SaveMessage")
}

func (f *fakePersistence) DeleteMessage(context.Context, string) error {
	return f.record("DeleteMessage")
}

func (f *fakePersistence) ReplaceRoles(context.Context, []domain.Role) error {
	return f.record("ReplaceRoles")
}

func (f *fakePersistence) SetUserRoles(_ context.Context, name string, ids []string) error {
	if f.roles == nil {
		f.roles = make(map[string][]string)
	}
	f.roles[name] = ids
	return f.record("SetUserRoles")
}

func (f *fakePersistence) TouchUser(context.Context, string, time.Time) error {
	return f.record("TouchUser")
}

func (f *fakePersistence) RecordLogin(_ context.Context, l domain.LoginLog) error {
	f.logins = append(f.logins, l)
	return f.record("RecordLogin")
}

type fixture struct {
	router  *Router
	store   *session.Store
	sent    *recorder
	persist *fakePersistence
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	store := session.New(session.LoadedState{
		Channels: domain.DefaultChannels(),
		Roles:    domain.DefaultRoles(),
	},
		session.WithClock(func() time.Time { return now }),
		session.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	f := &fixture{store: store, sent: newRecorder(), persist: &fakePersistence{}}
	opts = append([]Option{
		WithPersistence(f.persist, syncQueue{}),
		WithLogger(logger.Wrap(zaptest.NewLogger(t))),
	}, opts...)
	f.router = NewRouter(store, f.sent, opts...)
	return f
}

func (f *fixture) connect(t *testing.T, connID, name string) {
	t.Helper()
	f.router.process(envelope{kind: kindConnect, connID: connID, remoteAddr: "10.0.0.7:52100"})
	if name != "" {
		f.send(t, connID, events.CmdSetUsername, name)
	}
}

func (f *fixture) send(t *testing.T, connID, event string, data any) {
	t.Helper()
	raw, err := events.Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := events.Decode(raw)
	if err != nil {
		t.Fatalf("Decode(%s): %v", raw, err)
	}
	f.router.process(envelope{kind: kindCommand, connID: connID, cmd: cmd})
}

func payload[T any](t *testing.T, f events.Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Event, err)
	}
	return v
}

func TestRouter_InitIsFirstEvent(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "")
	f.connect(t, "c2", "")

	got := f.sent.names("c2")
	if len(got) == 0 || got[0] != events.EventInit {
		t.Fatalf("first event for c2 = %v, want init", got)
	}
	snap := payload[session.Snapshot](t, f.sent.received("c2", events.EventInit)[0])
	if len(snap.Channels) != 2 {
		t.Errorf("snapshot channels = %d, want 2", len(snap.Channels))
	}
	if _, ok := snap.UserPresence["c1"]; !ok {
		t.Errorf("snapshot presence missing c1: %v", snap.UserPresence)
	}
	if n := len(f.sent.received("c1", events.EventPresenceUpdate)); n != 2 {
		t.Errorf("c1 presence updates = %d, want 2", n)
	}
}

func TestRouter_MentionDelivery(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.connect(t, "c3", "carol")
	f.sent.reset()

	f.send(t, "c1", events.CmdSendMessage, map[string]any{
		"channelId": "general", "text": "hello @bob", "user": "alice",
	})

	for _, id := range []string{"c1", "c3"} {
		if n := len(f.sent.received(id, events.EventMention)); n != 0 {
			t.Errorf("%s got %d mention notices, want 0", id, n)
		}
	}
	mentions := f.sent.received("c2", events.EventMention)
	if len(mentions) != 1 {
		t.Fatalf("bob got %d mention notices, want 1", len(mentions))
	}
	got := payload[events.MentionPayload](t, mentions[0])
	want := events.MentionPayload{ChannelID: "general", MessageID: got.MessageID, MentionedBy: "alice"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mention payload (-want +got):\n%s", diff)
	}

	msgs := f.store.MessagesByChannel()["general"]
	if len(msgs) != 1 || msgs[0].Reactions == nil || len(msgs[0].Reactions) != 0 {
		t.Fatalf("general messages = %+v, want one message with empty reactions", msgs)
	}
	if n := f.sent.total(events.EventNewMessage); n != 3 {
		t.Errorf("new-message frames = %d, want 3", n)
	}
	if diff := cmp.Diff([]string{"TouchUser", "RecordLogin", "SetUserRoles"}, f.persist.ops[:3]); diff != "" {
		t.Errorf("persistence ops (-want +got):\n%s", diff)
	}
	if f.persist.ops[len(f.persist.ops)-1] != "SaveMessage" {
		t.Errorf("last persistence op = %s, want SaveMessage", f.persist.ops[len(f.persist.ops)-1])
	}
}

func TestRouter_SetUsernameRecordsLogin(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "login-1" }))
	f.connect(t, "c1", "alice")

	if len(f.persist.logins) != 1 {
		t.Fatalf("logins = %d, want 1", len(f.persist.logins))
	}
	l := f.persist.logins[0]
	if l.ID != "login-1" || l.Username != "alice" || l.IPAddress != "10.0.0.7" || l.ConnID != "c1" {
		t.Errorf("login = %+v", l)
	}
	if diff := cmp.Diff([]string{domain.RoleAdminID}, f.persist.roles["alice"]); diff != "" {
		t.Errorf("seeded roles (-want +got):\n%s", diff)
	}
	if n := len(f.sent.received("c1", events.EventUsernamesUpdate)); n != 1 {
		t.Errorf("usernames-update = %d, want 1", n)
	}
}

func TestRouter_DisconnectCleanup(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.send(t, "c1", events.CmdJoinVoice, "voc")
	f.send(t, "c2", events.CmdJoinVoice, "voc")
	f.send(t, "c1", events.CmdScreenShareStart, "voc")
	f.send(t, "c1", events.CmdWebRTCOffer, map[string]any{"targetUserId": "c2", "offer": map[string]string{"sdp": "v=0"}})
	f.sent.reset()

	f.router.process(envelope{kind: kindDisconnect, connID: "c1"})

	for event, want := range map[string]int{
		events.EventScreenShareStopped: 1,
		events.EventUserLeftVoice:      1,
		events.EventPresenceUpdate:     1,
		events.EventVoiceUsersUpdate:   1,
	} {
		if got := f.sent.total(event); got != want {
			t.Errorf("%s frames = %d, want %d", event, got, want)
		}
	}
	if len(f.sent.names("c1")) != 0 {
		t.Errorf("disconnected connection received %v", f.sent.names("c1"))
	}
	if _, ok := f.store.Presence()["c1"]; ok {
		t.Error("presence still lists c1")
	}
	if diff := cmp.Diff([]string{"c2"}, f.store.VoiceMembers("voc")); diff != "" {
		t.Errorf("voc members (-want +got):\n%s", diff)
	}
	if len(f.store.ScreenSharers()) != 0 {
		t.Errorf("screen sharers = %v, want none", f.store.ScreenSharers())
	}
	if peers := f.router.PeerSessions("c2"); len(peers) != 0 {
		t.Errorf("c2 peer sessions = %v, want none", peers)
	}

	want := []string{
		events.EventScreenShareStopped,
		events.EventUserLeftVoice,
		events.EventVoiceUsersUpdate,
		events.EventPresenceUpdate,
		events.EventUsernamesUpdate,
	}
	if diff := cmp.Diff(want, f.sent.names("c2")); diff != "" {
		t.Errorf("c2 event order (-want +got):\n%s", diff)
	}
}

func TestRouter_MentionNonASCIIName(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "José")
	f.connect(t, "c3", "Jos")
	f.sent.reset()

	f.send(t, "c1", events.CmdSendMessage, map[string]any{
		"channelId": "general", "text": "hi @José", "user": "alice",
	})

	for id, want := range map[string]int{"c1": 0, "c2": 1, "c3": 0} {
		if got := len(f.sent.received(id, events.EventMention)); got != want {
			t.Errorf("%s mention notices = %d, want %d", id, got, want)
		}
	}
}

func TestRouter_BroadcastAudiences(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		conn  string
		event string
		data  any
		want  map[string]map[string]int
		check func(t *testing.T, f *fixture)
	}{
		{
			name: "join-voice tells the other members only",
			setup: func(t *testing.T, f *fixture) {
				f.send(t, "c1", events.CmdJoinVoice, "voc")
				f.send(t, "c2", events.CmdJoinVoice, "voc")
			},
			conn:  "c3",
			event: events.CmdJoinVoice,
			data:  "voc",
			want: map[string]map[string]int{
				events.EventUserJoinedVoice:  {"c1": 1, "c2": 1, "c3": 0},
				events.EventVoiceUsersUpdate: {"c1": 1, "c2": 1, "c3": 1},
			},
		},
		{
			name: "leave-voice clears the leaver's share",
			setup: func(t *testing.T, f *fixture) {
				for _, id := range []string{"c1", "c2", "c3"} {
					f.send(t, id, events.CmdJoinVoice, "voc")
				}
				f.send(t, "c1", events.CmdScreenShareStart, "voc")
			},
			conn:  "c1",
			event: events.CmdLeaveVoice,
			data:  "voc",
			want: map[string]map[string]int{
				events.EventUserLeftVoice:      {"c1": 0, "c2": 1, "c3": 1},
				events.EventVoiceUsersUpdate:   {"c1": 1, "c2": 1, "c3": 1},
				events.EventScreenShareStopped: {"c1": 1, "c2": 1, "c3": 1},
			},
			check: func(t *testing.T, f *fixture) {
				if diff := cmp.Diff([]string{"c2", "c3"}, f.store.VoiceMembers("voc")); diff != "" {
					t.Errorf("voc members (-want +got):\n%s", diff)
				}
				if len(f.store.ScreenSharers()) != 0 {
					t.Errorf("screen sharers = %v, want none", f.store.ScreenSharers())
				}
			},
		},
		{
			name: "typing stays in the room and skips the sender",
			setup: func(t *testing.T, f *fixture) {
				f.send(t, "c3", events.CmdLeaveChannel, "general")
			},
			conn:  "c1",
			event: events.CmdTyping,
			data:  map[string]any{"channelId": "general", "isTyping": true},
			want: map[string]map[string]int{
				events.EventUserTyping: {"c1": 0, "c2": 1, "c3": 0},
			},
			check: func(t *testing.T, f *fixture) {
				got := payload[events.TypingPayload](t, f.sent.received("c2", events.EventUserTyping)[0])
				want := events.TypingPayload{ChannelID: "general", User: "alice", IsTyping: true}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("typing payload (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:  "update-presence reaches everyone",
			conn:  "c1",
			event: events.CmdUpdatePresence,
			data:  "idle",
			want: map[string]map[string]int{
				events.EventPresenceUpdate: {"c1": 1, "c2": 1, "c3": 1},
			},
			check: func(t *testing.T, f *fixture) {
				if got := f.store.Presence()["c1"]; got != domain.PresenceIdle {
					t.Errorf("c1 presence = %s, want idle", got)
				}
			},
		},
		{
			name:  "update-voice-state reaches everyone",
			conn:  "c1",
			event: events.CmdUpdateVoiceState,
			data:  map[string]bool{"muted": true},
			want: map[string]map[string]int{
				events.EventVoiceStateUpdate: {"c1": 1, "c2": 1, "c3": 1},
			},
			check: func(t *testing.T, f *fixture) {
				got := payload[events.VoiceStatePayload](t, f.sent.received("c2", events.EventVoiceStateUpdate)[0])
				want := events.VoiceStatePayload{UserID: "c1", State: domain.VoiceState{Muted: true}}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("voice state payload (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:  "update-channel to a taken name changes nothing",
			conn:  "c1",
			event: events.CmdUpdateChannel,
			data:  map[string]string{"id": "general", "name": "Voc"},
			want: map[string]map[string]int{
				events.EventChannelsUpdated: {"c1": 0, "c2": 0, "c3": 0},
			},
			check: func(t *testing.T, f *fixture) {
				for _, ch := range f.store.Channels() {
					if ch.ID == "general" && ch.Name != "general" {
						t.Errorf("general renamed to %q", ch.Name)
					}
				}
				for _, op := range f.persist.ops {
					if op == "SaveChannel" {
						t.Error("rejected rename was persisted")
					}
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t, "c1", "alice")
			f.connect(t, "c2", "bob")
			f.connect(t, "c3", "carol")
			if tt.setup != nil {
				tt.setup(t, f)
			}
			f.sent.reset()

			f.send(t, tt.conn, tt.event, tt.data)

			for event, perConn := range tt.want {
				for id, want := range perConn {
					if got := len(f.sent.received(id, event)); got != want {
						t.Errorf("%s frames to %s = %d, want %d", event, id, got, want)
					}
				}
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestRouter_VoiceSwitchIsSignalled(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.send(t, "c1", events.CmdCreateChannel, map[string]string{"name": "Lounge", "type": "voice"})
	var lounge string
	for _, ch := range f.store.Channels() {
		if ch.Name == "Lounge" {
			lounge = ch.ID
		}
	}
	if lounge == "" {
		t.Fatal("Lounge was not created")
	}
	f.send(t, "c1", events.CmdJoinVoice, "voc")
	f.sent.reset()

	f.send(t, "c1", events.CmdJoinVoice, lounge)

	errs := f.sent.received("c1", events.EventChannelError)
	if len(errs) != 1 {
		t.Fatalf("channel-error frames = %d, want 1", len(errs))
	}
	if got := payload[events.ChannelErrorPayload](t, errs[0]).Code; got != events.CodeVoiceSwitch {
		t.Errorf("code = %s, want %s", got, events.CodeVoiceSwitch)
	}
	if ch, _ := f.store.VoiceChannelOf("c1"); ch != "voc" {
		t.Errorf("voice channel = %q, want voc", ch)
	}
	if n := f.sent.total(events.EventVoiceUsersUpdate); n != 0 {
		t.Errorf("voice-users-update frames = %d, want 0", n)
	}
}

func TestRouter_EditPermissionBoundary(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")

	roles := domain.DefaultRoles()
	roles[2].Permissions = []domain.Permission{domain.PermSendMessages}
	f.send(t, "c1", events.CmdUpdateRoles, roles)
	f.send(t, "c1", events.CmdSendMessage, map[string]string{"channelId": "general", "text": "original"})
	msg := f.store.MessagesByChannel()["general"][0]
	f.sent.reset()

	f.send(t, "c2", events.CmdEditMessage, map[string]string{"channelId": "general", "messageId": msg.ID, "newText": "defaced"})

	if n := f.sent.total(events.EventMessageUpdated); n != 0 {
		t.Errorf("message-updated frames = %d, want 0", n)
	}
	if n := f.sent.total(events.EventChannelError); n != 0 {
		t.Errorf("channel-error frames = %d, want 0", n)
	}
	got, _ := f.store.Message("general", msg.ID)
	if got.Text != "original" || got.Edited != nil {
		t.Errorf("message = %+v, want untouched", got)
	}

	f.send(t, "c1", events.CmdEditMessage, map[string]string{"channelId": "general", "messageId": msg.ID, "newText": "fixed"})
	if n := f.sent.total(events.EventMessageUpdated); n != 2 {
		t.Errorf("message-updated frames after admin edit = %d, want 2", n)
	}
}

func TestRouter_AdministratorProtection(t *testing.T) {
	tests := []struct {
		name  string
		actor string
		event string
		data  any
		code  string
	}{
		{
			name:  "strip the last administrator",
			actor: "c1",
			event: events.CmdAssignRole,
			data:  map[string]any{"userId": "alice", "roleIds": []string{domain.RoleMemberID}},
			code:  events.CodeLastAdministrator,
		},
		{
			name:  "delete the administrator role",
			actor: "c1",
			event: events.CmdUpdateRoles,
			data:  domain.DefaultRoles()[1:],
			code:  events.CodeAdministratorRole,
		},
		{
			name:  "member replaces roles",
			actor: "c2",
			event: events.CmdUpdateRoles,
			data:  domain.DefaultRoles(),
			code:  events.CodePermissionDenied,
		},
		{
			name:  "member assigns roles",
			actor: "c2",
			event: events.CmdAssignRole,
			data:  map[string]any{"userId": "bob", "roleIds": []string{domain.RoleAdminID}},
			code:  events.CodePermissionDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t, "c1", "alice")
			f.connect(t, "c2", "bob")
			before := f.store.Snapshot()
			f.sent.reset()

			f.send(t, tt.actor, tt.event, tt.data)

			errs := f.sent.received(tt.actor, events.EventChannelError)
			if len(errs) != 1 {
				t.Fatalf("channel-error frames = %d, want 1", len(errs))
			}
			if got := payload[events.ChannelErrorPayload](t, errs[0]).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
			if got := len(f.sent.names("c1")) + len(f.sent.names("c2")); got != 1 {
				t.Errorf("frames sent = %d, want only the error", got)
			}
			if diff := cmp.Diff(before, f.store.Snapshot()); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestRouter_RolePermissionRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")

	roles := append(domain.DefaultRoles(), domain.Role{
		ID:          "r1",
		Name:        "Speaker",
		Permissions: []domain.Permission{domain.PermSendMessages, domain.PermConnectVoice},
	})
	f.send(t, "c1", events.CmdUpdateRoles, roles)

	var got []domain.Permission
	for _, r := range f.store.Snapshot().Roles {
		if r.ID == "r1" {
			got = r.Permissions
		}
	}
	if diff := cmp.Diff(roles[3].Permissions, got); diff != "" {
		t.Errorf("r1 permissions (-want +got):\n%s", diff)
	}
	if n := len(f.sent.received("c1", events.EventRolesUpdated)); n != 1 {
		t.Errorf("roles-updated = %d, want 1", n)
	}
}

func TestRouter_ChannelDeletionCascade(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.send(t, "c1", events.CmdSendMessage, map[string]string{"channelId": "general", "text": "soon gone"})
	f.send(t, "c2", events.CmdJoinVoice, "voc")
	f.sent.reset()

	f.send(t, "c1", events.CmdDeleteChannel, "general")
	f.send(t, "c1", events.CmdDeleteChannel, "voc")

	if _, ok := f.store.MessagesByChannel()["general"]; ok {
		t.Error("general messages survived deletion")
	}
	if _, ok := f.store.VoiceUsers()["voc"]; ok {
		t.Error("voc membership survived deletion")
	}
	if n := len(f.sent.received("c2", events.EventForceDisconnectVoice)); n != 1 {
		t.Errorf("force-disconnect-voice to c2 = %d, want 1", n)
	}
	if n := len(f.sent.received("c2", events.EventChannelsUpdated)); n != 2 {
		t.Errorf("channels-updated to c2 = %d, want 2", n)
	}
	f.sent.reset()

	f.send(t, "c1", events.CmdSendMessage, map[string]string{"channelId": "general", "text": "anyone?"})
	if n := f.sent.total(events.EventNewMessage); n != 0 {
		t.Errorf("new-message frames = %d, want 0", n)
	}
}

func TestRouter_ReactionIdempotence(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.send(t, "c1", events.CmdSendMessage, map[string]string{"channelId": "general", "text": "hi"})
	msg := f.store.MessagesByChannel()["general"][0]
	f.sent.reset()

	react := map[string]string{"channelId": "general", "messageId": msg.ID, "emoji": "👍", "userId": "c1"}
	f.send(t, "c1", events.CmdAddReaction, react)
	f.send(t, "c1", events.CmdAddReaction, react)

	updates := f.sent.received("c1", events.EventReactionUpdated)
	if len(updates) != 1 {
		t.Fatalf("reaction-updated = %d, want 1", len(updates))
	}
	got := payload[events.ReactionUpdatedPayload](t, updates[0]).Reactions
	if diff := cmp.Diff(domain.Reactions{"👍": {"c1"}}, got); diff != "" {
		t.Errorf("reactions (-want +got):\n%s", diff)
	}

	f.send(t, "c1", events.CmdRemoveReaction, react)
	f.send(t, "c1", events.CmdRemoveReaction, react)
	if n := len(f.sent.received("c1", events.EventReactionUpdated)); n != 2 {
		t.Errorf("reaction-updated after removals = %d, want 2", n)
	}
	if m, _ := f.store.Message("general", msg.ID); len(m.Reactions) != 0 {
		t.Errorf("reactions = %v, want empty", m.Reactions)
	}
}

func TestRouter_ScreenDataOnlyFromSharer(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.connect(t, "c3", "carol")
	for _, id := range []string{"c1", "c2", "c3"} {
		f.send(t, id, events.CmdJoinVoice, "voc")
	}
	f.send(t, "c1", events.CmdScreenShareStart, "voc")
	f.sent.reset()

	f.send(t, "c2", events.CmdScreenData, map[string]any{"channelId": "voc", "data": "spoofed"})
	if n := f.sent.total(events.EventScreenStream); n != 0 {
		t.Fatalf("screen-stream frames from non-sharer = %d, want 0", n)
	}

	f.send(t, "c1", events.CmdScreenData, map[string]any{"channelId": "voc", "data": "frame-1"})
	for id, want := range map[string]int{"c1": 0, "c2": 1, "c3": 1} {
		if got := len(f.sent.received(id, events.EventScreenStream)); got != want {
			t.Errorf("%s screen-stream frames = %d, want %d", id, got, want)
		}
	}
	got := payload[events.ScreenStreamPayload](t, f.sent.received("c2", events.EventScreenStream)[0])
	if got.UserID != "c1" || string(got.Data) != `"frame-1"` {
		t.Errorf("screen-stream payload = %+v", got)
	}
}

func TestRouter_SignalRelay(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.send(t, "c1", events.CmdJoinVoice, "voc")
	f.send(t, "c2", events.CmdJoinVoice, "voc")
	f.sent.reset()

	f.send(t, "c1", events.CmdWebRTCOffer, map[string]any{"targetUserId": "c2", "offer": map[string]string{"type": "offer", "sdp": "v=0"}})
	f.send(t, "c1", events.CmdWebRTCOffer, map[string]any{"targetUserId": "ghost", "offer": map[string]string{"type": "offer"}})

	offers := f.sent.received("c2", events.EventWebRTCOffer)
	if len(offers) != 1 {
		t.Fatalf("offers to c2 = %d, want 1", len(offers))
	}
	got := payload[map[string]json.RawMessage](t, offers[0])
	if string(got["sourceUserId"]) != `"c1"` || string(got["offer"]) != `{"sdp":"v=0","type":"offer"}` {
		t.Errorf("relayed offer = %s", offers[0].Data)
	}
	if f.sent.total(events.EventWebRTCOffer) != 1 {
		t.Errorf("offer relayed to an unknown target")
	}
	if diff := cmp.Diff([]string{"c2"}, f.router.PeerSessions("c1")); diff != "" {
		t.Errorf("c1 peers (-want +got):\n%s", diff)
	}

	f.send(t, "c2", events.CmdLeaveVoice, "voc")
	if peers := f.router.PeerSessions("c1"); len(peers) != 0 {
		t.Errorf("c1 peers after c2 left = %v, want none", peers)
	}
	if n := len(f.sent.received("c1", events.EventUserLeftVoice)); n != 1 {
		t.Errorf("user-left-voice to c1 = %d, want 1", n)
	}
}

func TestRouter_KickUser(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "alice")
	f.connect(t, "c2", "bob")
	f.send(t, "c1", events.CmdJoinVoice, "voc")
	f.send(t, "c2", events.CmdJoinVoice, "voc")
	f.send(t, "c2", events.CmdScreenShareStart, "voc")
	f.sent.reset()

	f.send(t, "c2", events.CmdKickUser, map[string]string{"userId": "c1", "channelId": "voc"})
	if n := f.sent.total(events.EventForceDisconnectVoice); n != 0 {
		t.Fatalf("member was able to kick")
	}

	f.send(t, "c1", events.CmdKickUser, map[string]string{"userId": "c2", "channelId": "voc"})
	if n := len(f.sent.received("c2", events.EventForceDisconnectVoice)); n != 1 {
		t.Errorf("force-disconnect-voice to c2 = %d, want 1", n)
	}
	if n := f.sent.total(events.EventScreenShareStopped); n != 2 {
		t.Errorf("screen-share-stopped frames = %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"c1"}, f.store.VoiceMembers("voc")); diff != "" {
		t.Errorf("voc members (-want +got):\n%s", diff)
	}
}

type stubFetcher struct {
	preview *domain.LinkPreview
}

func (s stubFetcher) Fetch(context.Context, string) (*domain.LinkPreview, error) {
	return s.preview, nil
}

func TestRouter_LinkPreviewReentersLoop(t *testing.T) {
	preview := &domain.LinkPreview{URL: "https://example.com/post", Title: "A post"}
	f := newFixture(t, WithPreviewFetcher(stubFetcher{preview: preview}))
	f.connect(t, "c1", "alice")
	f.send(t, "c1", events.CmdSendMessage, map[string]string{"channelId": "general", "text": "see https://example.com/post."})
	f.sent.reset()

	select {
	case env := <-f.router.inbox:
		f.router.process(env)
	case <-time.After(2 * time.Second):
		t.Fatal("preview result never arrived")
	}

	updates := f.sent.received("c1", events.EventMessageUpdated)
	if len(updates) != 1 {
		t.Fatalf("message-updated = %d, want 1", len(updates))
	}
	got := payload[events.MessageUpdatedPayload](t, updates[0])
	if diff := cmp.Diff(preview, got.LinkPreview); diff != "" {
		t.Errorf("link preview (-want +got):\n%s", diff)
	}
	m := f.store.MessagesByChannel()["general"][0]
	if m.LinkPreview == nil || m.LinkPreview.Title != "A post" {
		t.Errorf("stored preview = %+v", m.LinkPreview)
	}
}

func TestRouter_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.router.Run(ctx) }()

	f.router.Connect("c1", "10.0.0.7:1")
	if err := f.router.Dispatch("c1", []byte(`{"event":"set-username","data":"alice"}`)); err != nil {
		t.Fatal(err)
	}
	if err := f.router.Dispatch("c1", []byte(`{"event":"nope"}`)); err == nil {
		t.Error("Dispatch accepted an unknown event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.sent.received("c1", events.EventUsernamesUpdate)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("set-username was never processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	f.router.Disconnect("c1")
}

func TestMentionedNames(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"hello @bob", []string{"bob"}},
		{"@bob and @carol, also @bob again", []string{"bob", "carol"}},
		{"mail me at x@y", []string{"y"}},
		{"thanks @j.doe.", []string{"j.doe"}},
		{"hola @José y @Zoë", []string{"José", "Zoë"}},
		{"@игорь_2 ping", []string{"игорь_2"}},
		{"nobody here", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, mentionedNames(tt.text)); diff != "" {
			t.Errorf("mentionedNames(%q) (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestFirstURL(t *testing.T) {
	tests := map[string]string{
		"look https://example.com/a?b=1 and http://x.org": "https://example.com/a?b=1",
		"(see https://example.com/a).":                    "https://example.com/a",
		"no links":                                        "",
	}
	for text, want := range tests {
		if got := firstURL(text); got != want {
			t.Errorf("firstURL(%q) = %q, want %q", text, got, want)
		}
	}
}
