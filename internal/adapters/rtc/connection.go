package rtc

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dkeye/duo/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const negotiationDebounce = 100 * time.Millisecond

// WebRTCConnection wraps one pion PeerConnection towards a single remote
// connection. It satisfies negotiation.PeerConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnectionID

	mu                  sync.Mutex
	onICE               func(webrtc.ICECandidateInit)
	onTrack             func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onNegotiationNeeded func()
	onClosed            func()
	closeOnce           sync.Once
}

// Config builds a pion configuration from STUN/TURN urls.
func Config(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, remote domain.ConnectionID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, remote: remote}
	c.bind()
	return c, nil
}

// NewReceivingConnection is NewWebRTCConnection with a recvonly video
// transceiver, so the first offer carries a video section even before any
// local track is added.
func NewReceivingConnection(cfg webrtc.Configuration, remote domain.ConnectionID) (*WebRTCConnection, error) {
	c, err := NewWebRTCConnection(cfg, remote)
	if err != nil {
		return nil, err
	}
	if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *WebRTCConnection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})

	// pion fires this once per AddTrack/RemoveTrack; bursts collapse into one.
	debounced := debounce.New(negotiationDebounce)
	c.pc.OnNegotiationNeeded(func() {
		debounced(func() {
			c.mu.Lock()
			fn := c.onNegotiationNeeded
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	})
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *WebRTCConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiationNeeded = fn
	c.mu.Unlock()
}

// OnClosed sets application-level callback for cleanup.
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// AddLocalTrack attaches a local track to the PeerConnection.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *WebRTCConnection) RemoveLocalTrack(sender *webrtc.RTPSender) error {
	return c.pc.RemoveTrack(sender)
}

func (c *WebRTCConnection) Close() {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	}
	c.fireClosed()
}

func (c *WebRTCConnection) fireClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		fn := c.onClosed
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
