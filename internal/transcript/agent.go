package transcript

import (
	"bytes"
	"encoding/json"
)

// AgentStateKey is the participant attribute under which agents publish their state.
const AgentStateKey = "lk.agent.state"

// AgentState is a coarse activity label published by the conversational agent.
// The set is open; only StateSpeaking is treated specially by callers.
type AgentState string

const (
	StateListening    AgentState = "listening"
	StateSpeaking     AgentState = "speaking"
	StateThinking     AgentState = "thinking"
	StateInitializing AgentState = "initializing"
)

// Speaking reports whether the state is exactly "speaking".
func (s AgentState) Speaking() bool {
	return s == StateSpeaking
}

// AttributesKind tags the shape an attribute bag arrived in.
type AttributesKind int

const (
	// AttributesNone means the participant carries no attributes.
	AttributesNone AttributesKind = iota
	// AttributesGetter is a map-like value exposing a lookup method.
	AttributesGetter
	// AttributesObject is a plain key-indexed map.
	AttributesObject
	// AttributesEncoded is a JSON document held as a string.
	AttributesEncoded
	// AttributesMalformed is any other shape. Lookups on it always miss.
	AttributesMalformed
)

func (k AttributesKind) String() string {
	switch k {
	case AttributesNone:
		return "none"
	case AttributesGetter:
		return "getter"
	case AttributesObject:
		return "object"
	case AttributesEncoded:
		return "encoded"
	default:
		return "malformed"
	}
}

// Getter is a map-like attribute store.
type Getter interface {
	Get(key string) (string, bool)
}

// Attributes is a participant's free-form key/value bag in one of the
// shapes listed by AttributesKind. The zero value is AttributesNone.
type Attributes struct {
	kind    AttributesKind
	getter  Getter
	object  map[string]any
	encoded string
}

// GetterAttributes wraps a map-like store.
func GetterAttributes(g Getter) Attributes {
	if g == nil {
		return Attributes{}
	}
	return Attributes{kind: AttributesGetter, getter: g}
}

// ObjectAttributes wraps a plain map.
func ObjectAttributes(m map[string]any) Attributes {
	if m == nil {
		return Attributes{}
	}
	return Attributes{kind: AttributesObject, object: m}
}

// StringAttributes wraps a string map, the shape LiveKit participant records use.
func StringAttributes(m map[string]string) Attributes {
	if m == nil {
		return Attributes{}
	}
	obj := make(map[string]any, len(m))
	for k, v := range m {
		obj[k] = v
	}
	return Attributes{kind: AttributesObject, object: obj}
}

// EncodedAttributes wraps a JSON-encoded attribute document. It is parsed on lookup.
func EncodedAttributes(s string) Attributes {
	if s == "" {
		return Attributes{}
	}
	return Attributes{kind: AttributesEncoded, encoded: s}
}

// MalformedAttributes records an attribute value of an unsupported shape.
func MalformedAttributes() Attributes {
	return Attributes{kind: AttributesMalformed}
}

// ParseAttributes classifies a raw JSON attribute value.
func ParseAttributes(raw []byte) Attributes {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Attributes{}
	}

	switch raw[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return MalformedAttributes()
		}
		return ObjectAttributes(m)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return MalformedAttributes()
		}
		return EncodedAttributes(s)
	default:
		return MalformedAttributes()
	}
}

// Kind returns the shape tag.
func (a Attributes) Kind() AttributesKind {
	return a.kind
}

// Lookup returns the string stored under key. Non-string values, parse
// failures and missing keys all report ok == false.
func (a Attributes) Lookup(key string) (string, bool) {
	switch a.kind {
	case AttributesGetter:
		v, ok := a.getter.Get(key)
		return v, ok && v != ""
	case AttributesObject:
		return stringValue(a.object, key)
	case AttributesEncoded:
		var m map[string]any
		if err := json.Unmarshal([]byte(a.encoded), &m); err != nil {
			return "", false
		}
		return stringValue(m, key)
	default:
		return "", false
	}
}

func stringValue(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok && s != ""
}

// UnmarshalJSON implements json.Unmarshaler. It never fails; unsupported
// shapes become AttributesMalformed.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = ParseAttributes(data)
	return nil
}

// MarshalJSON implements json.Marshaler. Getter-backed bags cannot be
// enumerated and encode as null.
func (a Attributes) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AttributesObject:
		return json.Marshal(a.object)
	case AttributesEncoded:
		return json.Marshal(a.encoded)
	default:
		return []byte("null"), nil
	}
}

// AgentStateOf derives the agent's activity state from its attributes.
// It returns StateListening when the participant is nil, has no attributes,
// or the state cannot be read. A panicking Getter also yields StateListening.
func AgentStateOf(p *Participant) (state AgentState) {
	defer func() {
		if recover() != nil {
			state = StateListening
		}
	}()

	if p == nil || p.Attributes.Kind() == AttributesNone {
		return StateListening
	}
	v, ok := p.Attributes.Lookup(AgentStateKey)
	if !ok {
		return StateListening
	}
	return AgentState(v)
}
