package listsync

import (
	"sort"

	"jobboard/internal/domain"
)

// Reduce applies a single change event to postings and returns the next
// collection. postings is never modified. changed is false when the event
// had no effect, in which case next is postings itself.
//
// Inserts are prepended without re-sorting. An insert for an id that is
// already present replaces the old entry so ids stay unique.
func Reduce(postings []domain.Posting, ev domain.FeedEvent) (next []domain.Posting, changed bool) {
	switch ev.Kind {
	case domain.FeedInsert:
		if ev.New == nil {
			return postings, false
		}
		next = make([]domain.Posting, 0, len(postings)+1)
		next = append(next, *ev.New)
		for _, p := range postings {
			if p.ID != ev.New.ID {
				next = append(next, p)
			}
		}
		return next, true

	case domain.FeedUpdate:
		if ev.New == nil {
			return postings, false
		}
		i := indexOf(postings, ev.New.ID)
		if i < 0 {
			return postings, false
		}
		next = make([]domain.Posting, len(postings))
		copy(next, postings)
		next[i] = *ev.New
		return next, true

	case domain.FeedDelete:
		i := indexOf(postings, ev.PostingID())
		if i < 0 {
			return postings, false
		}
		next = make([]domain.Posting, 0, len(postings)-1)
		next = append(next, postings[:i]...)
		next = append(next, postings[i+1:]...)
		return next, true
	}
	return postings, false
}

func indexOf(postings []domain.Posting, id string) int {
	if id == "" {
		return -1
	}
	for i := range postings {
		if postings[i].ID == id {
			return i
		}
	}
	return -1
}

// sortNewestFirst orders a snapshot by CreatedAt descending. Ties keep the
// store's order.
func sortNewestFirst(postings []domain.Posting) {
	sort.SliceStable(postings, func(i, j int) bool {
		return postings[i].CreatedAt.After(postings[j].CreatedAt)
	})
}
