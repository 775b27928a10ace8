package rbac

type Role string
type Action string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionSell     Action = "sell"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

// Can reports whether role may perform action. Moderators review listings;
// only admins manage users.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionRead || action == ActionSell || action == ActionModerate
	case RoleUser:
		return action == ActionRead || action == ActionSell
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}
