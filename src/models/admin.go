package models

// Admin is the identity record the backend returns for the signed-in operator
type Admin struct {
	ID       string `json:"_id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Valid reports whether the record carries enough to identify an operator.
// The backend always returns at least a username or an email.
func (a *Admin) Valid() bool {
	return a != nil && (a.Username != "" || a.Email != "")
}
