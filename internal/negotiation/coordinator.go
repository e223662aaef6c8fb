// Package negotiation drives the offer/answer/ICE exchange for one pairing
// of peers. A Coordinator owns the signaling phase, the offer guard and the
// queue of early remote candidates; it is advanced by discrete calls, one
// per local event or relay message.
package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/duo/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnexpectedAnswer = errors.New("answer without a local offer")
	ErrNoTarget         = errors.New("no negotiation target")
)

type Phase int

const (
	Stable Phase = iota
	HaveLocalOffer
	HaveRemoteOffer
)

func (p Phase) String() string {
	switch p {
	case Stable:
		return "stable"
	case HaveLocalOffer:
		return "have-local-offer"
	case HaveRemoteOffer:
		return "have-remote-offer"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PeerConnection is the part of a WebRTC peer connection the coordinator
// drives. *rtc.WebRTCConnection implements it.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
}

// Signaler emits negotiation messages towards the counterpart. A returned
// error is final; the coordinator never retries.
type Signaler interface {
	SendOffer(target domain.ConnectionID, sd webrtc.SessionDescription) error
	SendAnswer(target domain.ConnectionID, sd webrtc.SessionDescription) error
}

type Coordinator struct {
	pc     PeerConnection
	sig    Signaler
	target domain.ConnectionID
	polite bool

	mu            sync.Mutex
	phase         Phase
	offerInFlight bool
	pending       bool
	remoteSet     bool
	queue         CandidateQueue
}

// New pairs local with target. The side with the lower connection id is
// polite: on colliding offers it rolls back its own and answers the other.
func New(pc PeerConnection, sig Signaler, local, target domain.ConnectionID) *Coordinator {
	return &Coordinator{
		pc:     pc,
		sig:    sig,
		target: target,
		polite: local < target,
	}
}

func (c *Coordinator) Target() domain.ConnectionID { return c.target }
func (c *Coordinator) Polite() bool                { return c.polite }

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) OfferInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerInFlight
}

// Negotiate creates and sends an offer. A request made while another offer
// is in flight or the phase is not Stable sends nothing, but it is not
// dropped either: it is remembered and replayed once the phase returns to
// Stable, so a track change made mid-exchange still reaches the
// counterpart. Several deferred requests collapse into one offer.
func (c *Coordinator) Negotiate() error {
	if c.target == "" {
		return ErrNoTarget
	}
	c.mu.Lock()
	if c.offerInFlight || c.phase != Stable {
		c.pending = true
		c.mu.Unlock()
		log.Debug().Str("module", "negotiation").Str("target", string(c.target)).Msg("negotiation deferred")
		return nil
	}
	c.offerInFlight = true
	offer, err := c.pc.CreateOffer()
	if err == nil {
		err = c.pc.SetLocalDescription(offer)
	}
	if err != nil {
		c.offerInFlight = false
		c.mu.Unlock()
		return fmt.Errorf("create offer: %w", err)
	}
	c.phase = HaveLocalOffer
	c.mu.Unlock()

	if err := c.sig.SendOffer(c.target, offer); err != nil {
		c.mu.Lock()
		if c.phase == HaveLocalOffer {
			c.rollbackLocked()
		}
		c.mu.Unlock()
		return fmt.Errorf("send offer: %w", err)
	}
	log.Debug().Str("module", "negotiation").Str("target", string(c.target)).Msg("offer sent")
	return nil
}

// MediaChanged is called after a local track was added or removed.
func (c *Coordinator) MediaChanged() error {
	return c.Negotiate()
}

// HandleOffer applies a remote offer and answers it. On collision the
// impolite side ignores the incoming offer and keeps waiting for its answer.
func (c *Coordinator) HandleOffer(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.phase != Stable {
		if !c.polite {
			c.mu.Unlock()
			log.Debug().Str("module", "negotiation").Str("target", string(c.target)).Msg("ignoring colliding offer")
			return nil
		}
		log.Debug().Str("module", "negotiation").Str("target", string(c.target)).Msg("rolling back for colliding offer")
		c.rollbackLocked()
		c.pending = true
	}

	if err := c.pc.SetRemoteDescription(sd); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("apply offer: %w", err)
	}
	c.phase = HaveRemoteOffer
	c.remoteSet = true
	c.drainLocked()

	answer, err := c.pc.CreateAnswer()
	if err == nil {
		err = c.pc.SetLocalDescription(answer)
	}
	if err != nil {
		c.rollbackLocked()
		c.mu.Unlock()
		return fmt.Errorf("create answer: %w", err)
	}
	c.phase = Stable
	retry := c.takePendingLocked()
	c.mu.Unlock()

	if err := c.sig.SendAnswer(c.target, answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	if retry {
		return c.Negotiate()
	}
	return nil
}

// HandleAnswer completes an exchange this side started.
func (c *Coordinator) HandleAnswer(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.phase != HaveLocalOffer {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w (phase %s)", ErrUnexpectedAnswer, phase)
	}
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		c.rollbackLocked()
		c.mu.Unlock()
		return fmt.Errorf("apply answer: %w", err)
	}
	c.phase = Stable
	c.offerInFlight = false
	c.remoteSet = true
	c.drainLocked()
	retry := c.takePendingLocked()
	c.mu.Unlock()

	if retry {
		return c.Negotiate()
	}
	return nil
}

// HandleCandidate applies ci, or queues it while no remote description
// exists yet.
func (c *Coordinator) HandleCandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		if c.queue.Push(ci) {
			log.Debug().Str("module", "negotiation").Str("target", string(c.target)).Int("queued", c.queue.Len()).Msg("candidate queued")
		}
		return nil
	}
	if err := c.pc.AddICECandidate(ci); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// Pending reports how many candidates wait for a remote description.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Reset forgets all negotiation state, e.g. after the counterpart left.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = Stable
	c.offerInFlight = false
	c.pending = false
	c.remoteSet = false
	c.queue.Clear()
}

func (c *Coordinator) rollbackLocked() {
	if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("target", string(c.target)).Msg("rollback")
	}
	c.phase = Stable
	c.offerInFlight = false
}

func (c *Coordinator) drainLocked() {
	for _, ci := range c.queue.Drain() {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("target", string(c.target)).Msg("queued candidate rejected")
		}
	}
}

func (c *Coordinator) takePendingLocked() bool {
	p := c.pending
	c.pending = false
	return p
}
