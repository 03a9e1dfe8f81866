package domain

import (
	"strings"
	"time"
)

// Posting is a single job listing as stored in the postings table.
type Posting struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Company     string    `json:"company"`
	CompanyURL  string    `json:"company_url"`
	Description string    `json:"description"`
	Heading     string    `json:"heading"`
	ApplyLink   string    `json:"applylink"`
	CreatedAt   time.Time `json:"created_at"`

	// Desc is a legacy free-text column still present on older rows.
	Desc string `json:"desc,omitempty"`
}

// Tags splits the comma-delimited heading into trimmed, non-empty tags.
func (p *Posting) Tags() []string {
	parts := strings.Split(p.Heading, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// PostingFields is the editable part of a Posting. The store assigns
// ID and CreatedAt.
type PostingFields struct {
	Role        string `json:"role" validate:"nonblank"`
	Company     string `json:"company" validate:"nonblank"`
	CompanyURL  string `json:"company_url" validate:"weburl"`
	Description string `json:"description" validate:"nonblank"`
	Heading     string `json:"heading" validate:"nonblank"`
	ApplyLink   string `json:"applylink" validate:"weburl"`
	Desc        string `json:"desc,omitempty"`
}

// Fields returns the editable part of p.
func (p *Posting) Fields() PostingFields {
	return PostingFields{
		Role:        p.Role,
		Company:     p.Company,
		CompanyURL:  p.CompanyURL,
		Description: p.Description,
		Heading:     p.Heading,
		ApplyLink:   p.ApplyLink,
		Desc:        p.Desc,
	}
}

// Apply overwrites every editable field of p with f.
func (f PostingFields) Apply(p *Posting) {
	p.Role = f.Role
	p.Company = f.Company
	p.CompanyURL = f.CompanyURL
	p.Description = f.Description
	p.Heading = f.Heading
	p.ApplyLink = f.ApplyLink
	p.Desc = f.Desc
}
