package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Lead is a sales prospect tracked through the pipeline.
type Lead struct {
	ID            string       `json:"id"`
	OrgID         string       `json:"org_id"`
	Name          string       `json:"name"`
	Email         string       `json:"email,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Channel       string       `json:"channel,omitempty"`
	Status        Stage        `json:"status"`
	AssigneeID    string       `json:"assignee_id,omitempty"`
	AssigneeName  string       `json:"assignee_name,omitempty"`
	ValueCents    int64        `json:"value_cents"`
	Tags          Tags         `json:"tags,omitempty"`
	CustomFields  CustomFields `json:"custom_fields,omitempty"`
	LastContactAt *time.Time   `json:"last_contact_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Derived by collaborators; the engine never writes these.
	Score  *float64 `json:"score,omitempty"`
	Alerts []string `json:"alerts,omitempty"`
}

// Clone returns a deep copy so snapshots never alias store state.
func (l Lead) Clone() Lead {
	out := l
	out.Tags = l.Tags.Clone()
	out.CustomFields = l.CustomFields.Clone()
	if l.LastContactAt != nil {
		t := *l.LastContactAt
		out.LastContactAt = &t
	}
	if l.Score != nil {
		s := *l.Score
		out.Score = &s
	}
	if l.Alerts != nil {
		out.Alerts = append([]string(nil), l.Alerts...)
	}
	return out
}

// Tags is a tag set. Order is irrelevant; NewTags keeps it sorted so
// equal sets compare equal.
type Tags []string

// NewTags builds a normalized, duplicate-free set.
func NewTags(values ...string) Tags {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make(Tags, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Has reports membership.
func (t Tags) Has(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// Union returns a new set holding both t and extra.
func (t Tags) Union(extra ...string) Tags {
	all := make([]string, 0, len(t)+len(extra))
	all = append(all, t...)
	all = append(all, extra...)
	return NewTags(all...)
}

// Clone copies the set.
func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	return append(Tags(nil), t...)
}

// ValueKind is the closed set of custom-field primitive kinds.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
)

// CustomValue is a single typed custom-field value.
type CustomValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) CustomValue  { return CustomValue{Kind: KindString, Str: s} }
func NumberValue(n float64) CustomValue { return CustomValue{Kind: KindNumber, Num: n} }
func BoolValue(b bool) CustomValue      { return CustomValue{Kind: KindBool, Bool: b} }

// Validate rejects unknown kinds and non-finite numbers.
func (v CustomValue) Validate() error {
	switch v.Kind {
	case KindString, KindBool:
		return nil
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return fmt.Errorf("%w: non-finite number", ErrInvalidCustomField)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidCustomField, v.Kind)
	}
}

// MarshalJSON encodes the value as its bare JSON primitive.
func (v CustomValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalidCustomField, v.Kind)
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *CustomValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("%w: expected string, number or boolean", ErrInvalidCustomField)
	}
	return nil
}

// CustomFields maps field keys to typed values.
type CustomFields map[string]CustomValue

// Validate checks every key and value.
func (f CustomFields) Validate() error {
	for k, v := range f {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidCustomField)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

// Clone copies the map.
func (f CustomFields) Clone() CustomFields {
	if f == nil {
		return nil
	}
	out := make(CustomFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// LeadPatch is a shallow patch. Nil fields are left untouched; Tags and
// CustomFields, when set, replace the whole value.
type LeadPatch struct {
	Name          *string
	Email         *string
	Phone         *string
	AssigneeID    *string
	AssigneeName  *string
	ValueCents    *int64
	Tags          *Tags
	CustomFields  *CustomFields
	LastContactAt *time.Time
	UpdatedAt     *time.Time
}

// Validate checks the replacement custom fields, if any.
func (p LeadPatch) Validate() error {
	if p.CustomFields != nil {
		return p.CustomFields.Validate()
	}
	return nil
}

func (p LeadPatch) apply(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Phone != nil {
		l.Phone = *p.Phone
	}
	if p.AssigneeID != nil {
		l.AssigneeID = *p.AssigneeID
	}
	if p.AssigneeName != nil {
		l.AssigneeName = *p.AssigneeName
	}
	if p.ValueCents != nil {
		l.ValueCents = *p.ValueCents
	}
	if p.Tags != nil {
		l.Tags = NewTags(*p.Tags...)
	}
	if p.CustomFields != nil {
		l.CustomFields = p.CustomFields.Clone()
	}
	if p.LastContactAt != nil {
		t := *p.LastContactAt
		l.LastContactAt = &t
	}
	if p.UpdatedAt != nil {
		l.UpdatedAt = *p.UpdatedAt
	}
}
