package models

// Scanner is an identity permitted to perform gate validations. It is
// backed by a record in the users auth collection with a role field.
type Scanner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Privileged reports whether the scanner role is allowed to validate
// tickets.
func (s *Scanner) Privileged() bool {
	return s != nil && (s.Role == RoleStaff || s.Role == RoleAdmin)
}
