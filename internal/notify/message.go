// Package notify builds the plain-text announcement sent when a posting is
// created.
package notify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"jobboard/internal/domain"
)

// MaxDescriptionRunes bounds the description excerpt in a message.
const MaxDescriptionRunes = 500

var (
	fencedCode  = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*\\n?(.*?)```")
	headerMarks = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	boldMarks   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicMarks = regexp.MustCompile(`\*(.*?)\*`)
	links       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	inlineCode  = regexp.MustCompile("`{1,3}(.*?)`{1,3}")
	blankRuns   = regexp.MustCompile(`\n{2,}`)
)

// PlainText strips lightweight markdown from s: headers, emphasis, links
// (keeping their text) and code spans. Runs of blank lines collapse to a
// single line break.
func PlainText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = fencedCode.ReplaceAllString(s, "$1")
	s = headerMarks.ReplaceAllString(s, "")
	s = boldMarks.ReplaceAllString(s, "$1")
	s = italicMarks.ReplaceAllString(s, "$1")
	s = links.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = blankRuns.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes and appends "..." when it had to cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// DetailURL is the canonical public page of a posting.
func DetailURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/jobs/" + id
}

// Compose renders the announcement for a newly created posting.
func Compose(p domain.Posting, baseURL string) string {
	location := p.Heading
	if strings.TrimSpace(location) == "" {
		location = "Not specified"
	}

	description := "No description provided"
	if plain := PlainText(p.Description); plain != "" {
		description = Truncate(plain, MaxDescriptionRunes)
	}

	var b strings.Builder
	b.WriteString("Role: " + p.Role + "\n")
	b.WriteString("Company: " + p.Company + "\n")
	b.WriteString("Location: " + location + "\n\n")
	b.WriteString("Description:\n" + description + "\n\n")
	b.WriteString("Apply Here: " + p.ApplyLink + "\n\n")
	b.WriteString("Job Details: " + DetailURL(baseURL, p.ID) + "\n\n")
	return b.String()
}
