package stage

import "fmt"

// Collection is the live, insertion-ordered index of objects. Views are
// computed from current state on every call; nothing is cached.
type Collection struct {
	objects map[string]*Object
	order   []string

	onReorder func(*Object)
}

func NewCollection() *Collection {
	return &Collection{objects: make(map[string]*Object)}
}

// Set indexes obj under id. Re-setting an existing id keeps its position.
func (c *Collection) Set(id string, obj *Object) error {
	if obj == nil || obj.ID() != id {
		return fmt.Errorf("%w: collection key %q does not match object", ErrInvalidValue, id)
	}
	if existing, ok := c.objects[id]; ok && existing != obj {
		existing.collection = nil
	} else if !ok {
		c.order = append(c.order, id)
	}
	c.objects[id] = obj
	obj.collection = c
	return nil
}

// Delete removes id and reports whether it was present.
func (c *Collection) Delete(id string) bool {
	obj, ok := c.objects[id]
	if !ok {
		return false
	}
	delete(c.objects, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if obj.collection == c {
		obj.collection = nil
	}
	return true
}

func (c *Collection) Get(id string) (*Object, bool) {
	obj, ok := c.objects[id]
	return obj, ok
}

func (c *Collection) Contains(id string) bool {
	_, ok := c.objects[id]
	return ok
}

func (c *Collection) Len() int {
	return len(c.order)
}

// IDs returns ids in insertion order.
func (c *Collection) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Collection) All() []*Object {
	return c.Filter(func(*Object) bool { return true })
}

// GetName returns the first object, in insertion order, with that name.
func (c *Collection) GetName(name string) (*Object, bool) {
	return c.Find(func(obj *Object) bool { return obj.Name() == name })
}

func (c *Collection) Find(pred func(*Object) bool) (*Object, bool) {
	for _, id := range c.order {
		if obj := c.objects[id]; pred(obj) {
			return obj, true
		}
	}
	return nil, false
}

func (c *Collection) Filter(pred func(*Object) bool) []*Object {
	out := make([]*Object, 0)
	for _, id := range c.order {
		if obj := c.objects[id]; pred(obj) {
			out = append(out, obj)
		}
	}
	return out
}

func (c *Collection) InLayer(layer Layer) []*Object {
	return c.Filter(func(obj *Object) bool { return obj.Layer() == layer })
}

// Within returns objects whose screen-space bounds intersect rect.
func (c *Collection) Within(rect Rect, vp Viewport) []*Object {
	return c.Filter(func(obj *Object) bool { return obj.ScreenBounds(vp).Intersects(rect) })
}

func (c *Collection) Selected() []*Object {
	return c.Filter((*Object).Selected)
}

func (c *Collection) Dragging() []*Object {
	return c.Filter((*Object).Dragging)
}

func (c *Collection) Resizing() []*Object {
	return c.Filter((*Object).Resizing)
}

func (c *Collection) Placing() []*Object {
	return c.Filter((*Object).Placing)
}

func (c *Collection) Highlighted() []*Object {
	return c.Filter((*Object).Highlighted)
}

// Dirty returns objects with unreplicated local changes.
func (c *Collection) Dirty() []*Object {
	return c.Filter((*Object).Dirty)
}
