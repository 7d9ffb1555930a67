package session

// UserType is the coarse account kind carried by an Identity.
type UserType string

const (
	UserTypeAgent  UserType = "agent"
	UserTypeClient UserType = "client"
)

// Valid reports whether t is one of the known account kinds.
func (t UserType) Valid() bool {
	return t == UserTypeAgent || t == UserTypeClient
}

// Identity is the authenticated user reference.
type Identity struct {
	ID       string   `json:"id"`
	UserType UserType `json:"user_type"`
}

// Profile holds extended account attributes loaded after the Identity.
type Profile struct {
	UserID   string  `db:"user_id" json:"user_id"`
	FullName *string `db:"full_name" json:"full_name,omitempty"`
	Role     *string `db:"role" json:"role,omitempty"`
}

// Session is the ambient authorization context. Loading is true until the
// source has finished resolving the user; Profile may still be nil after that.
type Session struct {
	User    *Identity `json:"user,omitempty"`
	Profile *Profile  `json:"profile,omitempty"`
	Loading bool      `json:"loading"`
}

// Key identifies the inputs status checks depend on.
type Key struct {
	ID       string
	UserType UserType
}

// Key returns the identity key of s, or false when no user is present.
func (s Session) Key() (Key, bool) {
	if s.User == nil {
		return Key{}, false
	}
	return Key{ID: s.User.ID, UserType: s.User.UserType}, true
}

// Role returns the profile role, or "" when the profile or role is absent.
func (s Session) Role() string {
	if s.Profile == nil || s.Profile.Role == nil {
		return ""
	}
	return *s.Profile.Role
}
