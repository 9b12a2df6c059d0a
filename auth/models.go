package auth

import "time"

// Role is the verified role the rest of the system trusts. Companies own
// credit accounts and postings, specialists apply to them, vendors hold
// discount codes, admins manage rates and bypass credit checks.
type Role string

const (
	RoleCompany    Role = "company"
	RoleSpecialist Role = "specialist"
	RoleVendor     Role = "vendor"
	RoleAdmin      Role = "admin"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	CompanyName  *string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
	Role        Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
