package proposta

// RoleCheck is the result of a profile role lookup. IsAdmin mirrors the raw
// role column; IsApproved gates access independently.
type RoleCheck struct {
	IsAdmin    bool `json:"is_admin"`
	IsApproved bool `json:"is_approved"`
}

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// AccessState resolves the 2x2 role/approval combination into the auth state
// a session with that profile lands in.
func AccessState(check RoleCheck) AuthState {
	if check.IsApproved {
		return StateApproved
	}
	return StatePendingApproval
}
