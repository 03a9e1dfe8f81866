package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"jobboard/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "header", in: "## About us\nWe ship.", want: "About us\nWe ship."},
		{name: "bold and italic", in: "**Senior** role, *remote*", want: "Senior role, remote"},
		{name: "link keeps text", in: "See [our site](https://acme.io) now", want: "See our site now"},
		{name: "inline code", in: "Use `go test` daily", want: "Use go test daily"},
		{name: "fenced code", in: "Run:\n```sh\nmake build\n```", want: "Run:\nmake build"},
		{name: "blank line runs", in: "one\n\n\n\ntwo\r\n\r\nthree", want: "one\ntwo\nthree"},
		{name: "hash inside text kept", in: "Write C# services", want: "Write C# services"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 500))

	exact := strings.Repeat("a", 500)
	assert.Equal(t, exact, Truncate(exact, 500), "no ellipsis at exactly the limit")

	long := strings.Repeat("é", 501)
	got := Truncate(long, 500)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 503, utf8.RuneCountInString(got))
}

func TestCompose(t *testing.T) {
	t.Parallel()

	p := domain.Posting{
		ID:          "42",
		Role:        "Backend Engineer",
		Company:     "Acme",
		Heading:     "Remote, Go",
		Description: "# Hi\n\n**Build** things",
		ApplyLink:   "https://acme.io/apply",
	}

	want := "Role: Backend Engineer\n" +
		"Company: Acme\n" +
		"Location: Remote, Go\n\n" +
		"Description:\nHi\nBuild things\n\n" +
		"Apply Here: https://acme.io/apply\n\n" +
		"Job Details: https://jobs.example.com/jobs/42\n\n"

	assert.Equal(t, want, Compose(p, "https://jobs.example.com/"))
}

func TestCompose_Defaults(t *testing.T) {
	t.Parallel()

	msg := Compose(domain.Posting{ID: "7", Role: "Designer", Company: "Initech"}, "https://jobs.example.com")

	assert.Contains(t, msg, "Location: Not specified\n")
	assert.Contains(t, msg, "Description:\nNo description provided\n")
}

func TestCompose_TruncatesLongDescription(t *testing.T) {
	t.Parallel()

	msg := Compose(domain.Posting{ID: "1", Description: strings.Repeat("x", 800)}, "https://jobs.example.com")

	assert.Contains(t, msg, strings.Repeat("x", 500)+"...\n\n")
	assert.NotContains(t, msg, strings.Repeat("x", 501))
}
