package socket

import (
	"slices"

	"stage-manager/internal/stage"
)

// Directory tracks who is connected to the session and who is elevated. It
// is the permission source for the local stage manager and is only touched
// from the session loop.
type Directory struct {
	self     string
	elevated bool
	members  map[string]bool
}

func NewDirectory(self string, elevated bool) *Directory {
	return &Directory{
		self:     self,
		elevated: elevated,
		members:  map[string]bool{self: elevated},
	}
}

func (d *Directory) UserID() string { return d.self }

func (d *Directory) IsElevated(userID string) bool {
	return d.members[userID]
}

func (d *Directory) Connected(userID string) bool {
	_, ok := d.members[userID]
	return ok
}

// Users returns connected user ids sorted.
func (d *Directory) Users() []string {
	out := make([]string, 0, len(d.members))
	for id := range d.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Leader is the connected elevated user with the smallest id, or "" when no
// elevated user is connected.
func (d *Directory) Leader() string {
	for _, id := range d.Users() {
		if d.members[id] {
			return id
		}
	}
	return ""
}

// Observe records a sender seen on an inbound envelope.
func (d *Directory) Observe(userID string, elevated bool) {
	if userID == "" || userID == d.self {
		return
	}
	d.members[userID] = elevated
}

// Update replaces the member list with a presence snapshot and returns the
// ids that left. The local user is always kept.
func (d *Directory) Update(p Presence) []string {
	next := map[string]bool{d.self: d.elevated}
	for _, member := range p.Users {
		if member.ID == d.self {
			continue
		}
		next[member.ID] = member.Elevated
	}
	left := make([]string, 0)
	for id := range d.members {
		if _, ok := next[id]; !ok {
			left = append(left, id)
		}
	}
	slices.Sort(left)
	d.members = next
	return left
}

// Writer returns the user responsible for broadcasting obj: the local user
// when it holds a claim, else the last connected writer, else the first
// connected owner, else the leader.
func (d *Directory) Writer(obj *stage.Object) string {
	if obj.Claimed() {
		return d.self
	}
	if writer := obj.Writer(); writer != "" && d.Connected(writer) {
		return writer
	}
	for _, owner := range obj.Owners() {
		if d.Connected(owner) {
			return owner
		}
	}
	return d.Leader()
}

// Responsible reports whether the local user broadcasts obj.
func (d *Directory) Responsible(obj *stage.Object) bool {
	return d.Writer(obj) == d.self
}
