package models

// MemberRole is the church profile role written by credential propagation.
type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleLeader MemberRole = "leader"
	MemberRolePastor MemberRole = "pastor"
)

// Member is the subset of the external member profile this service reads.
type Member struct {
	ID       string     `db:"id" json:"id"`
	FullName string     `db:"full_name" json:"full_name"`
	Role     MemberRole `db:"role" json:"role"`
}
