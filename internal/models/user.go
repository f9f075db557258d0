package models

// UserRole represents the role a user plays on the platform.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

// User represents an application user stored in the users table.
type User struct {
	ID       string   `db:"id" json:"id"`
	FullName string   `db:"full_name" json:"full_name"`
	Email    string   `db:"email" json:"email"`
	Role     UserRole `db:"role" json:"role"`
}

// IsStudent reports whether the user may occupy a course seat.
func (u *User) IsStudent() bool {
	return u != nil && u.Role == RoleStudent
}
