package model

// Users live in the identity service; only the role carried in the token
// matters here.
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// CanGrade reports whether the role may view and grade other users' attempts.
func (r UserRole) CanGrade() bool {
	return r == Teacher || r == Admin
}
