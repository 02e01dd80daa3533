package stage

import "sort"

// RenderNode is whatever the renderer hands back for an attached object.
type RenderNode any

// Renderer is the boundary to the scene graph that draws objects.
type Renderer interface {
	Attach(layer Layer, obj *Object) RenderNode
	Detach(node RenderNode)
}

// NullRenderer draws nothing. Headless clients and tests use it.
type NullRenderer struct{}

func (NullRenderer) Attach(Layer, *Object) RenderNode { return nil }
func (NullRenderer) Detach(RenderNode) {}

// LayerContainer keeps a layer's children sorted by zIndex, ties broken by
// attach order.
type LayerContainer struct {
	layer    Layer
	children []*Object
	seq      map[*Object]int
	next     int
}

func newLayerContainer(layer Layer) *LayerContainer {
	return &LayerContainer{layer: layer, seq: make(map[*Object]int)}
}

func (c *LayerContainer) Layer() Layer { return c.layer }

func (c *LayerContainer) Len() int { return len(c.children) }

// Children returns a copy in draw order.
func (c *LayerContainer) Children() []*Object {
	out := make([]*Object, len(c.children))
	copy(out, c.children)
	return out
}

func (c *LayerContainer) add(obj *Object) {
	if _, ok := c.seq[obj]; ok {
		return
	}
	c.seq[obj] = c.next
	c.next++
	c.children = append(c.children, obj)
	c.sort()
}

func (c *LayerContainer) remove(obj *Object) {
	if _, ok := c.seq[obj]; !ok {
		return
	}
	delete(c.seq, obj)
	for i, child := range c.children {
		if child == obj {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}

func (c *LayerContainer) sort() {
	sort.SliceStable(c.children, func(i, j int) bool {
		a, b := c.children[i], c.children[j]
		if a.ZIndex() != b.ZIndex() {
			return a.ZIndex() < b.ZIndex()
		}
		return c.seq[a] < c.seq[b]
	})
}
