package usecase

import (
	"testing"

	"jobboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFields_URLShape(t *testing.T) {
	t.Parallel()

	validate := NewPostingValidator()

	tests := []struct {
		url   string
		valid bool
	}{
		{url: "https://acme.io", valid: true},
		{url: "http://jobs.acme.io/apply?id=1", valid: true},
		{url: "ftp://acme.io", valid: false},
		{url: "https://localhost", valid: false},
		{url: "acme.io", valid: false},
		{url: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			fields := validFields()
			fields.ApplyLink = tt.url
			err := validateFields(validate, fields)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "Valid URL is required", verr.Fields["applylink"])
		})
	}
}

func TestValidateFields_AllBlank(t *testing.T) {
	t.Parallel()

	err := validateFields(NewPostingValidator(), domain.PostingFields{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 6)
	assert.Equal(t, "Heading is required", verr.Fields["heading"])
	assert.Equal(t, "Description is required", verr.Fields["description"])
	assert.Contains(t, verr.Error(), "company: Company is required")
}
