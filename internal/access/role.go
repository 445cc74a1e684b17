package access

// Role is a project membership level. Roles form a total order:
// reader < contributor < writer < admin.
type Role string

const (
	RoleReader      Role = "reader"
	RoleContributor Role = "contributor"
	RoleWriter      Role = "writer"
	RoleAdmin       Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleReader:
		return 1
	case RoleContributor:
		return 2
	case RoleWriter:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

// Covers reports whether r grants at least the required level. Unknown roles
// cover nothing.
func (r Role) Covers(required Role) bool {
	if required.rank() == 0 {
		return false
	}
	return r.rank() >= required.rank()
}

// Normalize maps unknown role strings to reader.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleReader, RoleContributor, RoleWriter, RoleAdmin:
		return Role(role)
	default:
		return RoleReader
	}
}
