package stage

// Layer groups objects for z-ordering.
type Layer string

const (
	LayerPrimary    Layer = "primary"
	LayerForeground Layer = "foreground"
	LayerBackground Layer = "background"
	LayerText       Layer = "text"
	LayerUI         Layer = "ui"
)

// Layers lists every layer in render order, back to front.
var Layers = []Layer{LayerBackground, LayerPrimary, LayerForeground, LayerText, LayerUI}

func (l Layer) Valid() bool {
	switch l {
	case LayerPrimary, LayerForeground, LayerBackground, LayerText, LayerUI:
		return true
	default:
		return false
	}
}

// Scope classifies where an object is persisted.
type Scope string

const (
	ScopeScene  Scope = "scene"
	ScopeGlobal Scope = "global"
	ScopeUser   Scope = "user"
	ScopeTemp   Scope = "temp"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeScene, ScopeGlobal, ScopeUser, ScopeTemp:
		return true
	default:
		return false
	}
}

// Persistent reports whether objects in this scope are written to storage.
func (s Scope) Persistent() bool {
	return s.Valid() && s != ScopeTemp
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize returns the rectangle with non-negative width and height.
func (r Rect) Normalize() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Intersects reports whether the two rectangles overlap. Touching edges count.
func (r Rect) Intersects(other Rect) bool {
	a := r.Normalize()
	b := other.Normalize()
	return a.X <= b.X+b.Width && b.X <= a.X+a.Width &&
		a.Y <= b.Y+b.Height && b.Y <= a.Y+a.Height
}

// Viewport describes the client's screen and the designated visual area, both
// in pixels. Object bounds are stored normalized against one of them.
type Viewport struct {
	Screen     Rect `json:"screen"`
	VisualArea Rect `json:"visualArea"`
}

func DefaultViewport() Viewport {
	screen := Rect{Width: 1920, Height: 1080}
	return Viewport{Screen: screen, VisualArea: screen}
}

// TriggerAction is one step wired to a named event. Execution lives outside
// this package; only the data shape is replicated.
type TriggerAction struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Args map[string]string `json:"args,omitempty"`
}

type Filter struct {
	Type    string             `json:"type"`
	Enabled bool               `json:"enabled"`
	Options map[string]float64 `json:"options,omitempty"`
}

type TextStyle struct {
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Fill       string  `json:"fill"`
	Align      string  `json:"align"`
}

func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontFamily: "Signika",
		FontSize:   24,
		Fill:       "#ffffff",
		Align:      "left",
	}
}

// Borders are nine-slice insets in source pixels.
type Borders struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}
