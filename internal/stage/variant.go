package stage

import "fmt"

const (
	TypeImage         = "image"
	TypeText          = "text"
	TypePanel         = "panel"
	TypeProgressBar   = "progress-bar"
	TypeProgressClock = "progress-clock"
	TypeResourceBar   = "resource-bar"
	TypeResourceClock = "resource-clock"
	TypeDialogue      = "dialogue"
	TypeActor         = "actor"
)

// Variant holds the type-specific part of an object. Validate must reject a
// patch without side effects; Apply then applies the keys the variant owns
// and reports whether anything changed.
type Variant interface {
	Type() string
	Bind(obj *Object)
	Encode(s *Serialized)
	Validate(p Patch) error
	Apply(p Patch) bool
}

// VariantBase gives variants access to their owning object so setters can
// mark it dirty.
type VariantBase struct {
	obj *Object
}

func (b *VariantBase) Bind(obj *Object) { b.obj = obj }

func (b *VariantBase) Object() *Object { return b.obj }

// Touch marks the owning object dirty.
func (b *VariantBase) Touch() {
	if b.obj != nil {
		b.obj.markDirty()
	}
}

func (b *VariantBase) set(changed bool) {
	if changed {
		b.Touch()
	}
}

type Image struct {
	VariantBase
	src  string
	loop bool
	tint string
}

func newImage(p Patch) (Variant, error) {
	if p.Src == nil || *p.Src == "" {
		return nil, fmt.Errorf("%w: image src is required", ErrInvalidValue)
	}
	return &Image{src: *p.Src}, nil
}

func (i *Image) Type() string { return TypeImage }
func (i *Image) Src() string { return i.src }
func (i *Image) Loop() bool { return i.loop }
func (i *Image) Tint() string { return i.tint }

func (i *Image) SetSrc(src string) { i.set(assign(&i.src, &src)) }
func (i *Image) SetLoop(loop bool) { i.set(assign(&i.loop, &loop)) }
func (i *Image) SetTint(tint string) { i.set(assign(&i.tint, &tint)) }

func (i *Image) Encode(s *Serialized) {
	s.Src = i.src
	s.Loop = i.loop
	s.Tint = i.tint
}

func (i *Image) Validate(p Patch) error {
	if p.Src != nil && *p.Src == "" {
		return fmt.Errorf("%w: image src is required", ErrInvalidValue)
	}
	return validateColor(p.Tint, true)
}

func (i *Image) Apply(p Patch) bool {
	changed := assign(&i.src, p.Src)
	changed = assign(&i.loop, p.Loop) || changed
	changed = assign(&i.tint, p.Tint) || changed
	return changed
}

type Text struct {
	VariantBase
	text  string
	style TextStyle
}

func newText(Patch) (Variant, error) {
	return &Text{style: DefaultTextStyle()}, nil
}

func (t *Text) Type() string { return TypeText }
func (t *Text) Text() string { return t.text }
func (t *Text) Style() TextStyle { return t.style }
func (t *Text) SetText(v string) { t.set(assign(&t.text, &v)) }
func (t *Text) SetStyle(v TextStyle) { t.set(assign(&t.style, &v)) }

func (t *Text) Encode(s *Serialized) {
	s.Text = t.text
	s.Style = ptr(t.style)
}

func (t *Text) Validate(p Patch) error {
	return validateStyle(p.Style)
}

func (t *Text) Apply(p Patch) bool {
	changed := assign(&t.text, p.Text)
	changed = assign(&t.style, p.Style) || changed
	return changed
}

type Panel struct {
	VariantBase
	src     string
	tint    string
	borders Borders
}

func newPanel(p Patch) (Variant, error) {
	if p.Src == nil || *p.Src == "" {
		return nil, fmt.Errorf("%w: panel src is required", ErrInvalidValue)
	}
	return &Panel{src: *p.Src}, nil
}

func (p *Panel) Type() string { return TypePanel }
func (p *Panel) Src() string { return p.src }
func (p *Panel) Borders() Borders { return p.borders }
func (p *Panel) SetBorders(b Borders) { p.set(assign(&p.borders, &b)) }

func (p *Panel) Encode(s *Serialized) {
	s.Src = p.src
	s.Tint = p.tint
	s.Borders = ptr(p.borders)
}

func (p *Panel) Validate(patch Patch) error {
	if patch.Src != nil && *patch.Src == "" {
		return fmt.Errorf("%w: panel src is required", ErrInvalidValue)
	}
	if err := validateColor(patch.Tint, true); err != nil {
		return err
	}
	if b := patch.Borders; b != nil && (b.Left < 0 || b.Right < 0 || b.Top < 0 || b.Bottom < 0) {
		return fmt.Errorf("%w: panel borders must be non-negative", ErrInvalidValue)
	}
	return nil
}

func (p *Panel) Apply(patch Patch) bool {
	changed := assign(&p.src, patch.Src)
	changed = assign(&p.tint, patch.Tint) || changed
	changed = assign(&p.borders, patch.Borders) || changed
	return changed
}

// progress is shared by the bar and clock variants.
type progress struct {
	VariantBase
	value float64
	max   float64
}

func (p *progress) Value() float64 { return p.value }
func (p *progress) Max() float64 { return p.max }

// Fraction is value/max clamped to [0, 1].
func (p *progress) Fraction() float64 {
	if p.max <= 0 {
		return 0
	}
	return clamp(p.value/p.max, 0, 1)
}

func (p *progress) SetValue(v float64) { p.set(assign(&p.value, &v)) }

func (p *progress) SetMax(v float64) {
	if v <= 0 {
		return
	}
	p.set(assign(&p.max, &v))
}

func (p *progress) encode(s *Serialized) {
	s.Value = p.value
	s.Max = p.max
}

func (p *progress) validate(patch Patch) error {
	if patch.Max != nil && *patch.Max <= 0 {
		return fmt.Errorf("%w: max must be positive", ErrInvalidValue)
	}
	return nil
}

func (p *progress) apply(patch Patch) bool {
	changed := assign(&p.value, patch.Value)
	changed = assign(&p.max, patch.Max) || changed
	return changed
}

func newProgress() progress {
	return progress{max: 100}
}

type ProgressBar struct {
	progress
	fgColor string
	bgColor string
}

func newProgressBar(Patch) (Variant, error) {
	return &ProgressBar{progress: newProgress(), fgColor: "#00ff00", bgColor: "#000000"}, nil
}

func (b *ProgressBar) Type() string { return TypeProgressBar }
func (b *ProgressBar) FgColor() string { return b.fgColor }
func (b *ProgressBar) BgColor() string { return b.bgColor }

func (b *ProgressBar) Encode(s *Serialized) {
	b.encode(s)
	s.FgColor = b.fgColor
	s.BgColor = b.bgColor
}

func (b *ProgressBar) Validate(p Patch) error {
	if err := b.validate(p); err != nil {
		return err
	}
	if err := validateColor(p.FgColor, false); err != nil {
		return err
	}
	return validateColor(p.BgColor, false)
}

func (b *ProgressBar) Apply(p Patch) bool {
	changed := b.apply(p)
	changed = assign(&b.fgColor, p.FgColor) || changed
	changed = assign(&b.bgColor, p.BgColor) || changed
	return changed
}

type ProgressClock struct {
	progress
	clockwise bool
}

func newProgressClock(Patch) (Variant, error) {
	return &ProgressClock{progress: newProgress()}, nil
}

func (c *ProgressClock) Type() string { return TypeProgressClock }
func (c *ProgressClock) Clockwise() bool { return c.clockwise }

func (c *ProgressClock) Encode(s *Serialized) {
	c.encode(s)
	s.Clockwise = c.clockwise
}

func (c *ProgressClock) Validate(p Patch) error { return c.validate(p) }

func (c *ProgressClock) Apply(p Patch) bool {
	changed := c.apply(p)
	changed = assign(&c.clockwise, p.Clockwise) || changed
	return changed
}

// resource binds a progress variant to a value on an external document.
type resource struct {
	object  string
	path    string
	maxPath string
}

func (r *resource) encode(s *Serialized) {
	s.Object = r.object
	s.Path = r.path
	s.MaxPath = r.maxPath
}

func (r *resource) apply(p Patch) bool {
	changed := assign(&r.object, p.Object)
	changed = assign(&r.path, p.Path) || changed
	changed = assign(&r.maxPath, p.MaxPath) || changed
	return changed
}

func validateResource(p Patch) error {
	if p.Path != nil && *p.Path == "" {
		return fmt.Errorf("%w: resource path is required", ErrInvalidValue)
	}
	return nil
}

type ResourceBar struct {
	ProgressBar
	resource
}

func newResourceBar(p Patch) (Variant, error) {
	if p.Path == nil || *p.Path == "" {
		return nil, fmt.Errorf("%w: resource path is required", ErrInvalidValue)
	}
	bar, _ := newProgressBar(p)
	return &ResourceBar{ProgressBar: *bar.(*ProgressBar), resource: resource{path: *p.Path}}, nil
}

func (b *ResourceBar) Type() string { return TypeResourceBar }
func (b *ResourceBar) Object() string { return b.object }
func (b *ResourceBar) Path() string { return b.path }

func (b *ResourceBar) Encode(s *Serialized) {
	b.ProgressBar.Encode(s)
	b.resource.encode(s)
}

func (b *ResourceBar) Validate(p Patch) error {
	if err := b.ProgressBar.Validate(p); err != nil {
		return err
	}
	return validateResource(p)
}

func (b *ResourceBar) Apply(p Patch) bool {
	changed := b.ProgressBar.Apply(p)
	changed = b.resource.apply(p) || changed
	return changed
}

type ResourceClock struct {
	ProgressClock
	resource
}

func newResourceClock(p Patch) (Variant, error) {
	if p.Path == nil || *p.Path == "" {
		return nil, fmt.Errorf("%w: resource path is required", ErrInvalidValue)
	}
	clock, _ := newProgressClock(p)
	return &ResourceClock{ProgressClock: *clock.(*ProgressClock), resource: resource{path: *p.Path}}, nil
}

func (c *ResourceClock) Type() string { return TypeResourceClock }
func (c *ResourceClock) Object() string { return c.object }
func (c *ResourceClock) Path() string { return c.path }

func (c *ResourceClock) Encode(s *Serialized) {
	c.ProgressClock.Encode(s)
	c.resource.encode(s)
}

func (c *ResourceClock) Validate(p Patch) error {
	if err := c.ProgressClock.Validate(p); err != nil {
		return err
	}
	return validateResource(p)
}

func (c *ResourceClock) Apply(p Patch) bool {
	changed := c.ProgressClock.Apply(p)
	changed = c.resource.apply(p) || changed
	return changed
}

type Dialogue struct {
	VariantBase
	speaker  string
	text     string
	portrait string
	style    TextStyle
}

func newDialogue(Patch) (Variant, error) {
	return &Dialogue{style: DefaultTextStyle()}, nil
}

func (d *Dialogue) Type() string { return TypeDialogue }
func (d *Dialogue) Speaker() string { return d.speaker }
func (d *Dialogue) Text() string { return d.text }
func (d *Dialogue) Portrait() string { return d.portrait }

// Say replaces the speaker and line in one change.
func (d *Dialogue) Say(speaker, text string) {
	changed := assign(&d.speaker, &speaker)
	changed = assign(&d.text, &text) || changed
	d.set(changed)
}

func (d *Dialogue) Encode(s *Serialized) {
	s.Speaker = d.speaker
	s.Text = d.text
	s.Portrait = d.portrait
	s.Style = ptr(d.style)
}

func (d *Dialogue) Validate(p Patch) error {
	return validateStyle(p.Style)
}

func (d *Dialogue) Apply(p Patch) bool {
	changed := assign(&d.speaker, p.Speaker)
	changed = assign(&d.text, p.Text) || changed
	changed = assign(&d.portrait, p.Portrait) || changed
	changed = assign(&d.style, p.Style) || changed
	return changed
}

type Actor struct {
	VariantBase
	actor string
	src   string
}

func newActor(p Patch) (Variant, error) {
	if p.Actor == nil || *p.Actor == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrInvalidValue)
	}
	return &Actor{actor: *p.Actor}, nil
}

func (a *Actor) Type() string { return TypeActor }
func (a *Actor) Actor() string { return a.actor }
func (a *Actor) Src() string { return a.src }

func (a *Actor) Encode(s *Serialized) {
	s.Actor = a.actor
	s.Src = a.src
}

func (a *Actor) Validate(p Patch) error {
	if p.Actor != nil && *p.Actor == "" {
		return fmt.Errorf("%w: actor id is required", ErrInvalidValue)
	}
	return nil
}

func (a *Actor) Apply(p Patch) bool {
	changed := assign(&a.actor, p.Actor)
	changed = assign(&a.src, p.Src) || changed
	return changed
}

// validateColor accepts #rrggbb strings; optional colors may also be empty.
func validateColor(color *string, optional bool) error {
	if color == nil || (optional && *color == "") {
		return nil
	}
	c := *color
	if len(c) != 7 || c[0] != '#' {
		return fmt.Errorf("%w: color %q", ErrInvalidValue, c)
	}
	for _, r := range c[1:] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return fmt.Errorf("%w: color %q", ErrInvalidValue, c)
		}
	}
	return nil
}

func validateStyle(style *TextStyle) error {
	if style != nil && style.FontSize <= 0 {
		return fmt.Errorf("%w: font size must be positive", ErrInvalidValue)
	}
	return nil
}
