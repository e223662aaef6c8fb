package protocol

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/duo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDescription(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `{"type":"offer","sdp":"v=0"}`, true},
		{"missing sdp", `{"type":"offer"}`, false},
		{"missing type", `{"sdp":"v=0"}`, false},
		{"not an object", `"v=0"`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescription(json.RawMessage(tt.raw))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidFormat)
		})
	}
}

func TestValidateCandidate(t *testing.T) {
	assert.NoError(t, ValidateCandidate(json.RawMessage(`{"candidate":"candidate:1 1 udp 1 1.2.3.4 5 typ host","sdpMid":"0"}`)))
	assert.ErrorIs(t, ValidateCandidate(json.RawMessage(`{"candidate":""}`)), domain.ErrInvalidFormat)
	assert.ErrorIs(t, ValidateCandidate(json.RawMessage(`[]`)), domain.ErrInvalidFormat)
	assert.ErrorIs(t, ValidateCandidate(nil), domain.ErrInvalidFormat)
}

func TestRelayedKeepsPayloadVerbatim(t *testing.T) {
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 0.0.0.0"}`)
	b, err := json.Marshal(Relayed{Type: TypeOffer, Offer: payload, FromConnectionID: "c1"})
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &got))
	assert.JSONEq(t, string(payload), string(got["offer"]))
	assert.NotContains(t, got, "answer")
	assert.NotContains(t, got, "candidate")
	assert.NotContains(t, got, "fromUserId")
}

func TestPeerJoinedFlattensPeer(t *testing.T) {
	b, err := json.Marshal(PeerJoined{Type: TypePeerJoined, Peer: Peer{UserID: "bob", Name: "Bob", ConnectionID: "c2"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"peer-joined","userId":"bob","name":"Bob","connectionId":"c2"}`, string(b))
}
