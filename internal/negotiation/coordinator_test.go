package negotiation

import (
	"errors"
	"testing"

	"github.com/dkeye/duo/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePC struct {
	calls      []string
	candidates []string
	offerErr   error
}

func (f *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	f.calls = append(f.calls, "create-offer")
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (f *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	f.calls = append(f.calls, "create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (f *fakePC) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.calls = append(f.calls, "local:"+sd.Type.String())
	return nil
}

func (f *fakePC) SetRemoteDescription(sd webrtc.SessionDescription) error {
	f.calls = append(f.calls, "remote:"+sd.Type.String())
	return nil
}

func (f *fakePC) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.candidates = append(f.candidates, ci.Candidate)
	return nil
}

type sent struct {
	kind   string
	target domain.ConnectionID
}

type fakeSignaler struct {
	sent []sent
	err  error
}

func (f *fakeSignaler) SendOffer(target domain.ConnectionID, _ webrtc.SessionDescription) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{"offer", target})
	return nil
}

func (f *fakeSignaler) SendAnswer(target domain.ConnectionID, _ webrtc.SessionDescription) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{"answer", target})
	return nil
}

var (
	remoteOffer  = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	remoteAnswer = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
)

func cand(s string) webrtc.ICECandidateInit { return webrtc.ICECandidateInit{Candidate: s} }

func TestOfferAnswerCycle(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c1", "c2")

	require.NoError(t, c.Negotiate())
	assert.Equal(t, HaveLocalOffer, c.Phase())
	assert.True(t, c.OfferInFlight())
	assert.Equal(t, []sent{{"offer", "c2"}}, sig.sent)

	require.NoError(t, c.HandleAnswer(remoteAnswer))
	assert.Equal(t, Stable, c.Phase())
	assert.False(t, c.OfferInFlight())
	assert.Equal(t, []string{"create-offer", "local:offer", "remote:answer"}, pc.calls)
}

func TestNegotiateSuppressedWhileOfferInFlight(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c1", "c2")

	require.NoError(t, c.Negotiate())
	require.NoError(t, c.MediaChanged())
	assert.Len(t, sig.sent, 1, "second offer must wait")

	require.NoError(t, c.HandleAnswer(remoteAnswer))
	assert.Len(t, sig.sent, 2, "deferred negotiation replays once stable")
	assert.Equal(t, HaveLocalOffer, c.Phase())
}

func TestDeferredNegotiationsCollapse(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c1", "c2")

	require.NoError(t, c.Negotiate())
	require.NoError(t, c.MediaChanged())
	require.NoError(t, c.Negotiate())
	require.NoError(t, c.MediaChanged())
	assert.Len(t, sig.sent, 1)

	require.NoError(t, c.HandleAnswer(remoteAnswer))
	assert.Len(t, sig.sent, 2, "one replayed offer for all deferred requests")

	require.NoError(t, c.HandleAnswer(remoteAnswer))
	assert.Len(t, sig.sent, 2)
	assert.Equal(t, Stable, c.Phase())
}

func TestHandleOfferAnswers(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c2", "c1")

	require.NoError(t, c.HandleOffer(remoteOffer))
	assert.Equal(t, Stable, c.Phase())
	assert.Equal(t, []sent{{"answer", "c1"}}, sig.sent)
	assert.Equal(t, []string{"remote:offer", "create-answer", "local:answer"}, pc.calls)
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c2", "c1")

	require.NoError(t, c.HandleCandidate(cand("a")))
	require.NoError(t, c.HandleCandidate(cand("b")))
	require.NoError(t, c.HandleCandidate(cand("a")))
	require.NoError(t, c.HandleCandidate(cand("c")))
	assert.Empty(t, pc.candidates)
	assert.Equal(t, 3, c.Pending())

	require.NoError(t, c.HandleOffer(remoteOffer))
	assert.Equal(t, []string{"a", "b", "c"}, pc.candidates)
	assert.Zero(t, c.Pending())

	require.NoError(t, c.HandleCandidate(cand("d")))
	assert.Equal(t, []string{"a", "b", "c", "d"}, pc.candidates)
}

func TestCandidatesDrainAfterAnswer(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "c1", "c2")

	require.NoError(t, c.Negotiate())
	require.NoError(t, c.HandleCandidate(cand("x")))
	require.NoError(t, c.HandleCandidate(cand("y")))
	assert.Empty(t, pc.candidates)

	require.NoError(t, c.HandleAnswer(remoteAnswer))
	assert.Equal(t, []string{"x", "y"}, pc.candidates)
}

func TestGlarePoliteRollsBack(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "a", "b")
	require.True(t, c.Polite())

	require.NoError(t, c.Negotiate())
	require.NoError(t, c.HandleOffer(remoteOffer))

	assert.Contains(t, pc.calls, "local:rollback")
	require.Len(t, sig.sent, 3)
	assert.Equal(t, "answer", sig.sent[1].kind)
	assert.Equal(t, "offer", sig.sent[2].kind, "own change is renegotiated after answering")
}

func TestGlareImpoliteIgnores(t *testing.T) {
	pc, sig := &fakePC{}, &fakeSignaler{}
	c := New(pc, sig, "b", "a")
	require.False(t, c.Polite())

	require.NoError(t, c.Negotiate())
	require.NoError(t, c.HandleOffer(remoteOffer))

	assert.Equal(t, HaveLocalOffer, c.Phase())
	assert.Len(t, sig.sent, 1)
	assert.NotContains(t, pc.calls, "remote:offer")
}

func TestUnexpectedAnswer(t *testing.T) {
	c := New(&fakePC{}, &fakeSignaler{}, "c1", "c2")
	assert.ErrorIs(t, c.HandleAnswer(remoteAnswer), ErrUnexpectedAnswer)
}

func TestSendFailureIsReportedAndRolledBack(t *testing.T) {
	boom := errors.New("socket closed")
	pc, sig := &fakePC{}, &fakeSignaler{err: boom}
	c := New(pc, sig, "c1", "c2")

	err := c.Negotiate()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Stable, c.Phase())
	assert.False(t, c.OfferInFlight())

	sig.err = nil
	require.NoError(t, c.Negotiate())
	assert.Len(t, sig.sent, 1)
}

func TestCreateOfferFailure(t *testing.T) {
	pc := &fakePC{offerErr: errors.New("no transceivers")}
	c := New(pc, &fakeSignaler{}, "c1", "c2")
	assert.Error(t, c.Negotiate())
	assert.Equal(t, Stable, c.Phase())
	assert.False(t, c.OfferInFlight())
}

func TestNoTarget(t *testing.T) {
	c := New(&fakePC{}, &fakeSignaler{}, "c1", "")
	assert.ErrorIs(t, c.Negotiate(), ErrNoTarget)
}

func TestResetClearsState(t *testing.T) {
	pc := &fakePC{}
	c := New(pc, &fakeSignaler{}, "c1", "c2")
	require.NoError(t, c.Negotiate())
	require.NoError(t, c.HandleCandidate(cand("a")))

	c.Reset()
	assert.Equal(t, Stable, c.Phase())
	assert.Zero(t, c.Pending())
	assert.False(t, c.OfferInFlight())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "stable", Stable.String())
	assert.Equal(t, "have-local-offer", HaveLocalOffer.String())
	assert.Equal(t, "have-remote-offer", HaveRemoteOffer.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
