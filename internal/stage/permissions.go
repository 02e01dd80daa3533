package stage

// Permissions answers who the local user is and who holds elevated
// (GM-equivalent) rights.
type Permissions interface {
	UserID() string
	IsElevated(userID string) bool
}

// StaticPermissions is a fixed permission table.
type StaticPermissions struct {
	Self     string
	Elevated map[string]bool
}

func (p StaticPermissions) UserID() string { return p.Self }

func (p StaticPermissions) IsElevated(userID string) bool {
	return p.Elevated[userID]
}
