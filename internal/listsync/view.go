package listsync

import (
	"strings"

	"jobboard/internal/domain"
)

// DefaultPageSize is both the initial number of visible postings and the
// LoadMore increment.
const DefaultPageSize = 10

// ViewState is the reader-owned part of a listing: the search text and the
// pagination cursor.
type ViewState struct {
	Query   string `json:"query"`
	Visible int    `json:"visible"`
}

// NewViewState returns the state a reader starts with.
func NewViewState(pageSize int) ViewState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return ViewState{Visible: pageSize}
}

// WithQuery replaces the search text. The cursor is left as is.
func (s ViewState) WithQuery(q string) ViewState {
	s.Query = q
	return s
}

// More advances the cursor by step.
func (s ViewState) More(step int) ViewState {
	s.Visible += step
	return s
}

// View is a rendered page of the listing.
type View struct {
	Items   []domain.Posting `json:"items"`
	Matches int              `json:"matches"`
	HasMore bool             `json:"has_more"`
	Query   string           `json:"query"`
	Visible int              `json:"visible"`
}

// Matches reports whether p satisfies the search text. A blank query
// matches everything; otherwise the query must appear, ignoring case, in
// the role, company, description or legacy desc.
func Matches(p *domain.Posting, query string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range [...]string{p.Role, p.Company, p.Description, p.Desc} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Filter returns the postings matching query in their original order.
func Filter(postings []domain.Posting, query string) []domain.Posting {
	out := make([]domain.Posting, 0, len(postings))
	for i := range postings {
		if Matches(&postings[i], query) {
			out = append(out, postings[i])
		}
	}
	return out
}

// Render derives the page described by state from postings.
func Render(postings []domain.Posting, state ViewState) View {
	matched := Filter(postings, state.Query)
	n := state.Visible
	if n < 0 {
		n = 0
	}
	if n > len(matched) {
		n = len(matched)
	}
	return View{
		Items:   matched[:n:n],
		Matches: len(matched),
		HasMore: len(matched) > n,
		Query:   state.Query,
		Visible: state.Visible,
	}
}
