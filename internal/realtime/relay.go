package realtime

import (
	"sort"
	"time"

	"vox-chat/internal/events"
	voxerrors "vox-chat/pkg/errors"
)

// PeerSession tracks one WebRTC pairing between two connections. The server
// never sees media; the session only records that negotiation happened.
type PeerSession struct {
	CreatedAt  time.Time
	LastSignal time.Time
}

// peerTable maps a connection to its peer sessions, keyed by the remote
// connection id. It is only touched from the router loop.
type peerTable struct {
	sessions map[string]map[string]*PeerSession
}

func newPeerTable() *peerTable {
	return &peerTable{sessions: make(map[string]map[string]*PeerSession)}
}

// touch records a signal between a and b, opening the pairing on both ends
// if needed.
func (t *peerTable) touch(a, b string, now time.Time, open bool) {
	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		local, remote := pair[0], pair[1]
		s, ok := t.sessions[local][remote]
		if !ok {
			if !open {
				continue
			}
			if t.sessions[local] == nil {
				t.sessions[local] = make(map[string]*PeerSession)
			}
			s = &PeerSession{CreatedAt: now}
			t.sessions[local][remote] = s
		}
		s.LastSignal = now
	}
}

// drop closes every session connID takes part in, on both ends.
func (t *peerTable) drop(connID string) {
	for remote := range t.sessions[connID] {
		delete(t.sessions[remote], connID)
		if len(t.sessions[remote]) == 0 {
			delete(t.sessions, remote)
		}
	}
	delete(t.sessions, connID)
}

func (t *peerTable) peers(connID string) []string {
	out := make([]string, 0, len(t.sessions[connID]))
	for id := range t.sessions[connID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// relaySignal forwards a negotiation payload untouched to its target,
// tagged with the sender's connection id. Offers and answers open a peer
// session; candidates only refresh one.
func (r *Router) relaySignal(connID string, s *events.Signal) error {
	if s.TargetUserID == connID || !r.store.HasConnection(s.TargetUserID) {
		return voxerrors.ErrNotFound
	}
	open := s.Kind == events.CmdWebRTCOffer || s.Kind == events.CmdWebRTCAnswer
	r.peers.touch(connID, s.TargetUserID, r.timeNow(), open)
	r.toConn(s.TargetUserID, s.Kind, events.SignalPayload(s.Kind, connID, s.Payload))
	return nil
}

// relayScreenData fans a frame out to the sharer's voice room. Frames from
// anyone but the registered sharer are dropped.
func (r *Router) relayScreenData(connID string, c *events.ScreenData) error {
	recipients, err := r.store.FrameRecipients(connID, c.ChannelID)
	if err != nil {
		return err
	}
	r.deliver(recipients, r.encode(events.EventScreenStream, events.ScreenStreamPayload{UserID: connID, Data: c.Data}))
	return nil
}

// PeerSessions lists the connections connID currently negotiates with. It
// must only be called from the router loop or when the loop is not running.
func (r *Router) PeerSessions(connID string) []string {
	return r.peers.peers(connID)
}
