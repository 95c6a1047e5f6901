package domain

// Channel names one RPC endpoint or one broadcast stream.
type Channel string

// Group names a set of connections that receive the same broadcasts.
type Group string

const (
	GroupChat       Group = "chat"
	GroupUsers      Group = "users"
	GroupStaff      Group = "staff"
	GroupSuperusers Group = "superusers"
)

// UserGroup returns the per-user group "users.<id>".
func UserGroup(userID string) Group {
	return Group("users." + userID)
}

// Identity is resolved once per connection by the auth collaborator and never mutated.
type Identity struct {
	Authenticated bool
	UserID        string
	IsStaff       bool
	IsSuperuser   bool
}

// Anonymous is the identity of a connection with no session or token.
func Anonymous() Identity {
	return Identity{}
}

// Groups returns the canonical groups a connection with this identity joins on connect.
func (i Identity) Groups() []Group {
	groups := []Group{GroupChat}
	if i.Authenticated {
		groups = append(groups, GroupUsers)
		if i.UserID != "" {
			groups = append(groups, UserGroup(i.UserID))
		}
	}
	if i.IsStaff {
		groups = append(groups, GroupStaff)
	}
	if i.IsSuperuser {
		groups = append(groups, GroupSuperusers)
	}
	return groups
}
