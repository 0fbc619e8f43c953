package hub

// Target selects which connections a broadcast should reach. Targets exist
// only for the duration of a dispatch and are never stored.
type Target struct {
	selects func(c *Connection) bool
}

// All targets every registered connection.
func All() Target {
	return Target{selects: func(*Connection) bool { return true }}
}

// ByUser targets every session belonging to any of the given user ids.
func ByUser(userIDs ...string) Target {
	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return Target{selects: func(c *Connection) bool {
		_, ok := set[c.UserID()]
		return ok
	}}
}

// ByRole targets connections whose identity carries the given role.
func ByRole(role string) Target {
	return Target{selects: func(c *Connection) bool {
		return c.Role() == role
	}}
}

// ExcludingUsers targets everyone except sessions of the given user ids.
func ExcludingUsers(userIDs ...string) Target {
	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return Target{selects: func(c *Connection) bool {
		_, ok := set[c.UserID()]
		return !ok
	}}
}

// Matching targets connections satisfying an arbitrary predicate.
func Matching(pred func(c *Connection) bool) Target {
	return Target{selects: pred}
}

// Selects reports whether the target includes the connection.
func (t Target) Selects(c *Connection) bool {
	if t.selects == nil {
		return true
	}
	return t.selects(c)
}
