package stage

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// Serialized is the wire and storage form of a stage object. Variant keys
// are omitted when they hold their zero value.
type Serialized struct {
	Type                 string                     `json:"type"`
	ID                   string                     `json:"id"`
	Owners               []string                   `json:"owners"`
	Version              string                     `json:"version"`
	Layer                Layer                      `json:"layer"`
	Name                 string                     `json:"name"`
	Scope                Scope                      `json:"scope"`
	ScopeOwners          []string                   `json:"scopeOwners"`
	TriggersEnabled      bool                       `json:"triggersEnabled"`
	Triggers             map[string][]TriggerAction `json:"triggers"`
	Bounds               Rect                       `json:"bounds"`
	Skew                 Point                      `json:"skew"`
	Angle                float64                    `json:"angle"`
	Locked               bool                       `json:"locked"`
	Visible              bool                       `json:"visible"`
	Filters              []Filter                   `json:"filters"`
	RestrictToVisualArea bool                       `json:"restrictToVisualArea"`
	ZIndex               int                        `json:"zIndex"`
	Alpha                float64                    `json:"alpha"`

	Src       string     `json:"src,omitempty"`
	Loop      bool       `json:"loop,omitempty"`
	Tint      string     `json:"tint,omitempty"`
	Text      string     `json:"text,omitempty"`
	Style     *TextStyle `json:"style,omitempty"`
	Borders   *Borders   `json:"borders,omitempty"`
	Value     float64    `json:"value,omitempty"`
	Max       float64    `json:"max,omitempty"`
	FgColor   string     `json:"fgColor,omitempty"`
	BgColor   string     `json:"bgColor,omitempty"`
	Clockwise bool       `json:"clockwise,omitempty"`
	Object    string     `json:"object,omitempty"`
	Path      string     `json:"path,omitempty"`
	MaxPath   string     `json:"maxPath,omitempty"`
	Speaker   string     `json:"speaker,omitempty"`
	Portrait  string     `json:"portrait,omitempty"`
	Actor     string     `json:"actor,omitempty"`
}

// Patch is a partial Serialized. A nil field is absent and leaves the
// current value untouched when applied.
type Patch struct {
	ID                   string                      `json:"id"`
	Owners               *[]string                   `json:"owners,omitempty"`
	Version              *string                     `json:"version,omitempty"`
	Layer                *Layer                      `json:"layer,omitempty"`
	Name                 *string                     `json:"name,omitempty"`
	Scope                *Scope                      `json:"scope,omitempty"`
	ScopeOwners          *[]string                   `json:"scopeOwners,omitempty"`
	TriggersEnabled      *bool                       `json:"triggersEnabled,omitempty"`
	Triggers             *map[string][]TriggerAction `json:"triggers,omitempty"`
	Bounds               *Rect                       `json:"bounds,omitempty"`
	Skew                 *Point                      `json:"skew,omitempty"`
	Angle                *float64                    `json:"angle,omitempty"`
	Locked               *bool                       `json:"locked,omitempty"`
	Visible              *bool                       `json:"visible,omitempty"`
	Filters              *[]Filter                   `json:"filters,omitempty"`
	RestrictToVisualArea *bool                       `json:"restrictToVisualArea,omitempty"`
	ZIndex               *int                        `json:"zIndex,omitempty"`
	Alpha                *float64                    `json:"alpha,omitempty"`

	Src       *string    `json:"src,omitempty"`
	Loop      *bool      `json:"loop,omitempty"`
	Tint      *string    `json:"tint,omitempty"`
	Text      *string    `json:"text,omitempty"`
	Style     *TextStyle `json:"style,omitempty"`
	Borders   *Borders   `json:"borders,omitempty"`
	Value     *float64   `json:"value,omitempty"`
	Max       *float64   `json:"max,omitempty"`
	FgColor   *string    `json:"fgColor,omitempty"`
	BgColor   *string    `json:"bgColor,omitempty"`
	Clockwise *bool      `json:"clockwise,omitempty"`
	Object    *string    `json:"object,omitempty"`
	Path      *string    `json:"path,omitempty"`
	MaxPath   *string    `json:"maxPath,omitempty"`
	Speaker   *string    `json:"speaker,omitempty"`
	Portrait  *string    `json:"portrait,omitempty"`
	Actor     *string    `json:"actor,omitempty"`
}

// Empty reports whether the patch carries nothing besides the id.
func (p Patch) Empty() bool {
	return p == Patch{ID: p.ID}
}

// PatchFrom turns a full payload into a patch with every key present.
func PatchFrom(s Serialized) Patch {
	p := Patch{
		ID:                   s.ID,
		Owners:               ptr(slices.Clone(s.Owners)),
		Layer:                ptr(s.Layer),
		Name:                 ptr(s.Name),
		Scope:                ptr(s.Scope),
		ScopeOwners:          ptr(slices.Clone(s.ScopeOwners)),
		TriggersEnabled:      ptr(s.TriggersEnabled),
		Triggers:             ptr(cloneTriggers(s.Triggers)),
		Bounds:               ptr(s.Bounds),
		Skew:                 ptr(s.Skew),
		Angle:                ptr(s.Angle),
		Locked:               ptr(s.Locked),
		Visible:              ptr(s.Visible),
		Filters:              ptr(cloneFilters(s.Filters)),
		RestrictToVisualArea: ptr(s.RestrictToVisualArea),
		ZIndex:               ptr(s.ZIndex),
		Alpha:                ptr(s.Alpha),
	}
	if s.Version != "" {
		p.Version = ptr(s.Version)
	}
	// Variant keys are omitempty on the wire, so a zero value means the key
	// was absent and the variant default stands.
	p.Src = nonZero(s.Src)
	p.Loop = nonZero(s.Loop)
	p.Tint = nonZero(s.Tint)
	p.Text = nonZero(s.Text)
	p.Value = nonZero(s.Value)
	p.Max = nonZero(s.Max)
	p.FgColor = nonZero(s.FgColor)
	p.BgColor = nonZero(s.BgColor)
	p.Clockwise = nonZero(s.Clockwise)
	p.Object = nonZero(s.Object)
	p.Path = nonZero(s.Path)
	p.MaxPath = nonZero(s.MaxPath)
	p.Speaker = nonZero(s.Speaker)
	p.Portrait = nonZero(s.Portrait)
	p.Actor = nonZero(s.Actor)
	if s.Style != nil {
		p.Style = ptr(*s.Style)
	}
	if s.Borders != nil {
		p.Borders = ptr(*s.Borders)
	}
	return p
}

// Diff returns the keys of next that differ from prev. The result is Empty
// when nothing but the id matches.
func Diff(prev, next Serialized) Patch {
	p := Patch{ID: next.ID}
	p.Owners = diffJSON(prev.Owners, next.Owners)
	p.Version = diffValue(prev.Version, next.Version)
	p.Layer = diffValue(prev.Layer, next.Layer)
	p.Name = diffValue(prev.Name, next.Name)
	p.Scope = diffValue(prev.Scope, next.Scope)
	p.ScopeOwners = diffJSON(prev.ScopeOwners, next.ScopeOwners)
	p.TriggersEnabled = diffValue(prev.TriggersEnabled, next.TriggersEnabled)
	p.Triggers = diffJSON(prev.Triggers, next.Triggers)
	p.Bounds = diffValue(prev.Bounds, next.Bounds)
	p.Skew = diffValue(prev.Skew, next.Skew)
	p.Angle = diffValue(prev.Angle, next.Angle)
	p.Locked = diffValue(prev.Locked, next.Locked)
	p.Visible = diffValue(prev.Visible, next.Visible)
	p.Filters = diffJSON(prev.Filters, next.Filters)
	p.RestrictToVisualArea = diffValue(prev.RestrictToVisualArea, next.RestrictToVisualArea)
	p.ZIndex = diffValue(prev.ZIndex, next.ZIndex)
	p.Alpha = diffValue(prev.Alpha, next.Alpha)

	p.Src = diffValue(prev.Src, next.Src)
	p.Loop = diffValue(prev.Loop, next.Loop)
	p.Tint = diffValue(prev.Tint, next.Tint)
	p.Text = diffValue(prev.Text, next.Text)
	p.Value = diffValue(prev.Value, next.Value)
	p.Max = diffValue(prev.Max, next.Max)
	p.FgColor = diffValue(prev.FgColor, next.FgColor)
	p.BgColor = diffValue(prev.BgColor, next.BgColor)
	p.Clockwise = diffValue(prev.Clockwise, next.Clockwise)
	p.Object = diffValue(prev.Object, next.Object)
	p.Path = diffValue(prev.Path, next.Path)
	p.MaxPath = diffValue(prev.MaxPath, next.MaxPath)
	p.Speaker = diffValue(prev.Speaker, next.Speaker)
	p.Portrait = diffValue(prev.Portrait, next.Portrait)
	p.Actor = diffValue(prev.Actor, next.Actor)
	if next.Style != nil && (prev.Style == nil || *prev.Style != *next.Style) {
		p.Style = ptr(*next.Style)
	}
	if next.Borders != nil && (prev.Borders == nil || *prev.Borders != *next.Borders) {
		p.Borders = ptr(*next.Borders)
	}
	return p
}

// Equal compares two payloads structurally, through their JSON encoding.
func Equal(a, b Serialized) bool {
	return sameJSON(a, b)
}

// EqualList compares two payload lists element by element.
func EqualList(a, b []Serialized) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s Serialized) Clone() Serialized {
	out := s
	out.Owners = slices.Clone(s.Owners)
	out.ScopeOwners = slices.Clone(s.ScopeOwners)
	out.Triggers = cloneTriggers(s.Triggers)
	out.Filters = cloneFilters(s.Filters)
	if s.Style != nil {
		out.Style = ptr(*s.Style)
	}
	if s.Borders != nil {
		out.Borders = ptr(*s.Borders)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func nonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return ptr(v)
}

func diffValue[T comparable](prev, next T) *T {
	if prev == next {
		return nil
	}
	return ptr(next)
}

func diffJSON[T any](prev, next T) *T {
	if sameJSON(prev, next) {
		return nil
	}
	return ptr(next)
}

func sameJSON(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func cloneTriggers(in map[string][]TriggerAction) map[string][]TriggerAction {
	out := make(map[string][]TriggerAction, len(in))
	for event, actions := range in {
		copied := make([]TriggerAction, len(actions))
		for i, action := range actions {
			action.Args = maps.Clone(action.Args)
			copied[i] = action
		}
		out[event] = copied
	}
	return out
}

func cloneFilters(in []Filter) []Filter {
	out := make([]Filter, len(in))
	for i, filter := range in {
		filter.Options = maps.Clone(filter.Options)
		out[i] = filter
	}
	return out
}

// Merge returns s with every key present in p applied on top. It is the
// payload-level counterpart of Object.Apply and does no validation.
func Merge(s Serialized, p Patch) (Serialized, error) {
	fields, err := jsonFields(s)
	if err != nil {
		return Serialized{}, err
	}
	changes, err := jsonFields(p)
	if err != nil {
		return Serialized{}, err
	}
	delete(changes, "id")
	maps.Copy(fields, changes)
	data, err := json.Marshal(fields)
	if err != nil {
		return Serialized{}, err
	}
	var out Serialized
	if err := json.Unmarshal(data, &out); err != nil {
		return Serialized{}, err
	}
	return out, nil
}

func jsonFields(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
