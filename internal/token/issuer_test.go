package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountability-call-service/internal/observability/metrics"
)

func newIssuer(cfg Config) (*Issuer, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewIssuer(cfg, m), m
}

func claims(t *testing.T, jwt string) map[string]any {
	t.Helper()
	parts := strings.Split(jwt, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestParseRequest(t *testing.T) {
	issuer, _ := newIssuer(Config{})

	tests := []struct {
		name     string
		body     string
		room     string
		identity string
		err      error
	}{
		{name: "room and identity", body: `{"room":"my-room","identity":"alice_1"}`, room: "my-room", identity: "alice_1"},
		{name: "room with dot", body: `{"room":"team.daily","identity":"bob"}`, room: "team.daily", identity: "bob"},
		{name: "default room", body: `{"identity":"bob"}`, room: DefaultRoom, identity: "bob"},
		{name: "unicode letters", body: `{"room":"sala-é","identity":"josé"}`, room: "sala-é", identity: "josé"},
		{name: "empty object", body: `{}`, err: ErrInvalidBody},
		{name: "not json", body: `room=x`, err: ErrInvalidBody},
		{name: "array", body: `[1]`, err: ErrInvalidBody},
		{name: "bad room chars", body: `{"room":"a b"}`, err: ErrInvalidRoom},
		{name: "room not string", body: `{"room":5}`, err: ErrInvalidRoom},
		{name: "room null", body: `{"room":null}`, err: ErrInvalidRoom},
		{name: "empty room", body: `{"room":""}`, err: ErrInvalidRoom},
		{name: "room too long", body: `{"room":"` + strings.Repeat("r", 101) + `"}`, err: ErrRoomTooLong},
		{name: "identity with dot", body: `{"identity":"a.b"}`, err: ErrInvalidIdentity},
		{name: "identity not string", body: `{"identity":true}`, err: ErrInvalidIdentity},
		{name: "identity number", body: `{"identity":7}`, err: ErrInvalidIdentity},
		{name: "identity list", body: `{"identity":["a"]}`, err: ErrInvalidIdentity},
		{name: "identity too long", body: `{"identity":"` + strings.Repeat("i", 101) + `"}`, err: ErrIdentityTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := issuer.ParseRequest([]byte(tt.body))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.room, req.Room)
			assert.Equal(t, tt.identity, req.Identity)
		})
	}
}

func TestParseRequest_GeneratesIdentity(t *testing.T) {
	issuer, _ := newIssuer(Config{})

	for _, body := range []string{
		`{"room":"r"}`,
		`{"room":"r","identity":""}`,
		`{"room":"r","identity":null}`,
		`{"room":"r","identity":false}`,
		`{"room":"r","identity":0}`,
		`{"room":"r","identity":[]}`,
		`{"room":"r","identity":{}}`,
	} {
		req, err := issuer.ParseRequest([]byte(body))
		require.NoError(t, err, body)
		assert.Regexp(t, `^user-[0-9a-f]{16}$`, req.Identity)
	}
}

func TestValidateLengthBoundary(t *testing.T) {
	assert.NoError(t, ValidateRoom(strings.Repeat("r", MaxNameLength)))
	assert.NoError(t, ValidateIdentity(strings.Repeat("i", MaxNameLength)))
}

func TestNewIdentity_Unique(t *testing.T) {
	assert.NotEqual(t, NewIdentity(), NewIdentity())
}

func TestIssue(t *testing.T) {
	issuer, m := newIssuer(Config{
		APIKey:    "devkey",
		APISecret: "secret-secret-secret-secret-secret",
		ServerURL: "wss://livekit.example",
		TTL:       10 * time.Minute,
	})

	resp, err := issuer.Issue(Request{Room: "goggins-room", Identity: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "wss://livekit.example", resp.ServerURL)
	assert.Equal(t, "goggins-room", resp.Room)
	assert.Equal(t, "alice", resp.Identity)

	parsed, err := auth.ParseAPIToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Identity())
	assert.Equal(t, "devkey", parsed.APIKey())

	c := claims(t, resp.Token)
	assert.Equal(t, "alice", c["name"])
	video, ok := c["video"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, video["roomJoin"])
	assert.Equal(t, "goggins-room", video["room"])
	assert.Equal(t, true, video["canPublish"])
	assert.Equal(t, true, video["canSubscribe"])
	assert.NotContains(t, c, "roomConfig")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokensIssued))
}

func TestIssue_AgentDispatch(t *testing.T) {
	issuer, _ := newIssuer(Config{APIKey: "k", APISecret: "s", AgentName: "goggins-agent"})

	resp, err := issuer.Issue(Request{Room: "r", Identity: "alice"})
	require.NoError(t, err)

	c := claims(t, resp.Token)
	assert.Contains(t, c, "roomConfig")
	raw, _ := json.Marshal(c["roomConfig"])
	assert.Contains(t, string(raw), "goggins-agent")
}

func TestIssue_MissingCredentials(t *testing.T) {
	issuer, m := newIssuer(Config{APIKey: "only-key"})

	_, err := issuer.Issue(Request{Room: "r", Identity: "a"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokensRejected.WithLabelValues("credentials")))

	_, err = issuer.ObserverToken("r", "observer")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestObserverToken(t *testing.T) {
	issuer, _ := newIssuer(Config{APIKey: "k", APISecret: "s"})

	jwt, err := issuer.ObserverToken("goggins-room", "transcript-observer")
	require.NoError(t, err)

	c := claims(t, jwt)
	assert.Equal(t, "transcript-observer", c["sub"])
	video := c["video"].(map[string]any)
	assert.Equal(t, true, video["hidden"])
	assert.Equal(t, false, video["canPublish"])
	assert.Equal(t, true, video["canSubscribe"])
}
