package negotiation

import (
	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v4"
)

// CandidateQueue holds remote ICE candidates that arrived before a remote
// description was set. Order is preserved; only exact duplicates are
// dropped.
type CandidateQueue struct {
	q deque.Deque[webrtc.ICECandidateInit]
}

// Push appends c and reports whether it was queued.
func (cq *CandidateQueue) Push(c webrtc.ICECandidateInit) bool {
	for i := 0; i < cq.q.Len(); i++ {
		if sameCandidate(cq.q.At(i), c) {
			return false
		}
	}
	cq.q.PushBack(c)
	return true
}

func (cq *CandidateQueue) Len() int { return cq.q.Len() }

// Drain empties the queue, returning candidates in arrival order.
func (cq *CandidateQueue) Drain() []webrtc.ICECandidateInit {
	out := make([]webrtc.ICECandidateInit, 0, cq.q.Len())
	for cq.q.Len() > 0 {
		out = append(out, cq.q.PopFront())
	}
	return out
}

func (cq *CandidateQueue) Clear() { cq.q.Clear() }

func sameCandidate(a, b webrtc.ICECandidateInit) bool {
	return a.Candidate == b.Candidate &&
		eqPtr(a.SDPMid, b.SDPMid) &&
		eqPtr(a.SDPMLineIndex, b.SDPMLineIndex) &&
		eqPtr(a.UsernameFragment, b.UsernameFragment)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
