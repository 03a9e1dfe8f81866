package http

import (
	"time"

	"jobboard/internal/domain"
)

// LoginRequest is the body of POST /api/admin/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for later admin calls.
type LoginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SavePostingRequest is the admin form for creating or updating a posting.
type SavePostingRequest struct {
	Role        string `json:"role"`
	Company     string `json:"company"`
	CompanyURL  string `json:"company_url"`
	Description string `json:"description"`
	Heading     string `json:"heading"`
	ApplyLink   string `json:"applylink"`
	Desc        string `json:"desc,omitempty"`
}

// ToFields converts the form into the store's editable fields.
func (r *SavePostingRequest) ToFields() domain.PostingFields {
	return domain.PostingFields{
		Role:        r.Role,
		Company:     r.Company,
		CompanyURL:  r.CompanyURL,
		Description: r.Description,
		Heading:     r.Heading,
		ApplyLink:   r.ApplyLink,
		Desc:        r.Desc,
	}
}

// ErrorResponse is returned for every failed request. Fields is set for
// form validation failures.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
