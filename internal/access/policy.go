package access

import "studio-backend/internal/models"

type Capability string

const (
	SessionsWrite  Capability = "sessions:write"
	SessionsDelete Capability = "sessions:delete"
	PackagesWrite  Capability = "packages:write"
	MembersWrite   Capability = "members:write"
)

// Policy maps staff roles to what they may do. Reads are open to any
// authenticated caller and are not listed.
type Policy struct {
	grants map[string]map[Capability]bool
}

func NewPolicy(grants map[string][]Capability) *Policy {
	p := &Policy{grants: make(map[string]map[Capability]bool, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		p.grants[role] = set
	}
	return p
}

// DefaultPolicy lets staff run the front desk and reserves deletion for admins.
func DefaultPolicy() *Policy {
	return NewPolicy(map[string][]Capability{
		models.RoleAdmin: {SessionsWrite, SessionsDelete, PackagesWrite, MembersWrite},
		models.RoleStaff: {SessionsWrite, PackagesWrite, MembersWrite},
	})
}

func (p *Policy) Allows(role string, c Capability) bool {
	return p.grants[role][c]
}
