package traveler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultName is used when a record carries no display name.
const DefaultName = "Traveler"

// Role identifies who produced an exchange.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Record is the per-traveler document held by the record store.
type Record struct {
	ID            string         `json:"id"`
	ExternalID    string         `json:"external_id"`
	DisplayName   string         `json:"display_name,omitempty"`
	Profile       Profile        `json:"profile,omitempty"`
	LearnedExtras map[string]any `json:"learned_extras,omitempty"`
	History       HistoryState   `json:"conversation_history"`
}

// Name returns the display name, defaulting to DefaultName.
func (r Record) Name() string {
	if name := strings.TrimSpace(r.DisplayName); name != "" {
		return name
	}
	return DefaultName
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.Profile = r.Profile.Clone()
	if r.LearnedExtras != nil {
		c.LearnedExtras = make(map[string]any, len(r.LearnedExtras))
		for k, v := range r.LearnedExtras {
			c.LearnedExtras[k] = v
		}
	}
	c.History = r.History.Clone()
	return c
}

// Exchange is one turn of conversation.
type Exchange struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryState is the bounded recent buffer plus a running summary.
type HistoryState struct {
	RecentMessages []Exchange `json:"recent_messages"`
	Summary        string     `json:"summary"`
}

func (h HistoryState) Clone() HistoryState {
	c := HistoryState{Summary: h.Summary}
	if h.RecentMessages != nil {
		c.RecentMessages = make([]Exchange, len(h.RecentMessages))
		copy(c.RecentMessages, h.RecentMessages)
	}
	return c
}

// Profile maps closed field keys to their values.
type Profile map[string]Value

func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	c := make(Profile, len(p))
	for k, v := range p {
		c[k] = v.Clone()
	}
	return c
}

// Get returns the value stored under key, or an unset value.
func (p Profile) Get(key string) Value {
	if p == nil {
		return Value{}
	}
	return p[key]
}

type valueKind uint8

const (
	kindUnset valueKind = iota
	kindScalar
	kindList
)

// Value holds a profile attribute: scalar text or a list of strings.
// Stored data is not trusted to match the conventional shape of a field,
// so both forms are representable for every key.
type Value struct {
	kind   valueKind
	scalar string
	list   []string
}

func Scalar(s string) Value { return Value{kind: kindScalar, scalar: s} }

func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{kind: kindList, list: out}
}

func (v Value) IsList() bool { return v.kind == kindList }

// Empty reports whether the value carries no renderable content.
func (v Value) Empty() bool {
	switch v.kind {
	case kindScalar:
		return strings.TrimSpace(v.scalar) == ""
	case kindList:
		return len(v.list) == 0
	default:
		return true
	}
}

// Items returns the list form of the value. A scalar yields a single item.
func (v Value) Items() []string {
	switch v.kind {
	case kindScalar:
		return []string{v.scalar}
	case kindList:
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	default:
		return nil
	}
}

// String renders the value for prompts; lists are comma-joined.
func (v Value) String() string {
	switch v.kind {
	case kindScalar:
		return v.scalar
	case kindList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

func (v Value) Clone() Value {
	if v.kind == kindList {
		return List(v.list...)
	}
	return v
}

// Interface returns the JSON-shaped form (string, []string or nil).
func (v Value) Interface() any {
	switch v.kind {
	case kindScalar:
		return v.scalar
	case kindList:
		return v.Items()
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode list value: %w", err)
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			items = append(items, rawText(r))
		}
		*v = Value{kind: kindList, list: items}
	default:
		*v = Scalar(rawText(data))
	}
	return nil
}

// ValueOf converts a decoded JSON value into a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t.Clone()
	case string:
		return Scalar(t)
	case []string:
		return List(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, textOf(item))
		}
		return List(items...)
	default:
		return Scalar(textOf(t))
	}
}

func rawText(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(r))
}

func textOf(x any) string {
	switch t := x.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, bool, json.Number, int, int64:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
