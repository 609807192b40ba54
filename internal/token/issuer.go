// Package token issues LiveKit access tokens for browser participants and
// for the transcript observer.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"

	"accountability-call-service/internal/observability/metrics"
)

const (
	// DefaultRoom is used when a request names no room.
	DefaultRoom = "goggins-room"
	// MaxNameLength bounds room names and identities, in characters.
	MaxNameLength = 100
	// DefaultTTL is the token lifetime.
	DefaultTTL = time.Hour
)

// Validation and configuration errors. Their messages are returned to clients.
var (
	ErrInvalidBody        = errors.New("Invalid request body")
	ErrInvalidRoom        = errors.New("Invalid room name")
	ErrRoomTooLong        = errors.New("Room name too long")
	ErrInvalidIdentity    = errors.New("Invalid identity")
	ErrIdentityTooLong    = errors.New("Identity too long")
	ErrMissingCredentials = errors.New("LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be set")
)

// Config holds issuer configuration.
type Config struct {
	APIKey      string
	APISecret   string
	ServerURL   string
	DefaultRoom string
	AgentName   string // dispatched into the room when set
	TTL         time.Duration
}

// Request is a validated token request.
type Request struct {
	Room     string
	Identity string
}

// Response is returned to the browser.
type Response struct {
	Token     string `json:"token"`
	ServerURL string `json:"serverUrl,omitempty"`
	Room      string `json:"room"`
	Identity  string `json:"identity"`
}

// Issuer signs access tokens.
type Issuer struct {
	cfg     Config
	metrics *metrics.Metrics
}

// NewIssuer creates an issuer. A nil m uses metrics.DefaultMetrics.
func NewIssuer(cfg Config, m *metrics.Metrics) *Issuer {
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = DefaultRoom
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Issuer{cfg: cfg, metrics: m}
}

// ParseRequest decodes and validates a token request body. An absent room
// becomes the default room. An absent or empty identity (null, "", false, 0,
// [] or {}) is generated; any other non-string identity is invalid.
func (i *Issuer) ParseRequest(body []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		return Request{}, ErrInvalidBody
	}

	req := Request{Room: i.cfg.DefaultRoom}
	if raw, ok := fields["room"]; ok {
		if err := json.Unmarshal(raw, &req.Room); err != nil || isNull(raw) {
			return Request{}, ErrInvalidRoom
		}
	}
	if err := ValidateRoom(req.Room); err != nil {
		return Request{}, err
	}

	if raw, ok := fields["identity"]; ok && !isEmptyValue(raw) {
		if err := json.Unmarshal(raw, &req.Identity); err != nil {
			return Request{}, ErrInvalidIdentity
		}
	}
	if req.Identity == "" {
		req.Identity = NewIdentity()
	} else if err := ValidateIdentity(req.Identity); err != nil {
		return Request{}, err
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func isEmptyValue(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

// ValidateRoom accepts letters, digits, '-', '_' and '.' up to MaxNameLength characters.
func ValidateRoom(room string) error {
	if room == "" || !allowed(room, "-_.") {
		return ErrInvalidRoom
	}
	if utf8.RuneCountInString(room) > MaxNameLength {
		return ErrRoomTooLong
	}
	return nil
}

// ValidateIdentity accepts letters, digits, '-' and '_' up to MaxNameLength characters.
func ValidateIdentity(identity string) error {
	if identity == "" || !allowed(identity, "-_") {
		return ErrInvalidIdentity
	}
	if utf8.RuneCountInString(identity) > MaxNameLength {
		return ErrIdentityTooLong
	}
	return nil
}

func allowed(s, extra string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(extra, r) {
			continue
		}
		return false
	}
	return true
}

// NewIdentity returns "user-" followed by 16 random hex characters.
func NewIdentity() string {
	id := uuid.New()
	return fmt.Sprintf("user-%x", id[:8])
}

// Issue signs a participant token for req.
func (i *Issuer) Issue(req Request) (Response, error) {
	if i.cfg.APIKey == "" || i.cfg.APISecret == "" {
		i.metrics.RecordTokenRejected("credentials")
		return Response{}, ErrMissingCredentials
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     req.Room,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)

	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret).
		SetVideoGrant(grant).
		SetIdentity(req.Identity).
		SetName(req.Identity).
		SetValidFor(i.cfg.TTL)

	if i.cfg.AgentName != "" {
		at.SetRoomConfig(&livekit.RoomConfiguration{
			Agents: []*livekit.RoomAgentDispatch{{
				AgentName: i.cfg.AgentName,
				Metadata:  fmt.Sprintf(`{"user_id": %q}`, req.Identity),
			}},
		})
	}

	jwt, err := at.ToJWT()
	if err != nil {
		i.metrics.RecordTokenRejected("signing")
		return Response{}, fmt.Errorf("sign token: %w", err)
	}

	i.metrics.RecordTokenIssued()
	log.Info().Str("room", req.Room).Str("identity", req.Identity).Msg("Token generated")

	return Response{
		Token:     jwt,
		ServerURL: i.cfg.ServerURL,
		Room:      req.Room,
		Identity:  req.Identity,
	}, nil
}

// ObserverToken signs a hidden, subscribe-only token used by the transcript
// observer to join room without appearing in the participant list.
func (i *Issuer) ObserverToken(room, identity string) (string, error) {
	if i.cfg.APIKey == "" || i.cfg.APISecret == "" {
		return "", ErrMissingCredentials
	}
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
		Hidden:   true,
	}
	grant.SetCanPublish(false)
	grant.SetCanPublishData(false)
	grant.SetCanSubscribe(true)

	return auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetValidFor(24 * time.Hour).
		ToJWT()
}
