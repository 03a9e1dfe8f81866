// Package browser is the interactive terminal reader for the job board.
// It drives a listsync.Engine fed from a remote server.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/listsync"
	"jobboard/internal/notify"

	"github.com/natefinch/atomic"
)

// DetailReader fetches a single posting by id.
type DetailReader interface {
	Get(ctx context.Context, id string) (*domain.Posting, error)
}

// Browser executes reader commands against an engine and writes the
// results to out.
type Browser struct {
	engine  *listsync.Engine
	details DetailReader
	baseURL string
	timeout time.Duration
	out     io.Writer

	// lastPage is the listing text most recently written by list.
	lastPage string
}

func New(engine *listsync.Engine, details DetailReader, baseURL string, out io.Writer) *Browser {
	return &Browser{
		engine:  engine,
		details: details,
		baseURL: baseURL,
		timeout: 10 * time.Second,
		out:     out,
	}
}

// Commands lists the command words, for completion.
var Commands = []string{"list", "search", "clear", "more", "show", "refresh", "export", "status", "help", "quit"}

const help = `Commands:
  list                 Show the current page
  search <text>        Filter by role, company or description
  clear                Clear the search
  more                 Show 10 more postings
  show <n|id>          Show one posting in full
  refresh              Reload the full list from the server
  export <file>        Write the current page to a JSON file
  status               Show load and feed state
  help                 Show this help
  quit                 Exit`

// Execute runs one command line and reports whether the reader asked to
// quit.
func (b *Browser) Execute(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(b.out, help)
	case "list", "ls":
		b.list()
	case "search", "/":
		b.engine.SetSearchQuery(arg)
		b.list()
	case "clear":
		b.engine.SetSearchQuery("")
		b.list()
	case "more", "m":
		b.engine.LoadMore()
		b.list()
	case "show":
		b.show(arg)
	case "refresh":
		b.refresh()
	case "export":
		b.export(arg)
	case "status":
		b.status()
	default:
		fmt.Fprintf(b.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (b *Browser) list() {
	b.lastPage = b.page()
	io.WriteString(b.out, b.lastPage)
}

func (b *Browser) page() string {
	var buf bytes.Buffer
	status, err := b.engine.Status()
	Render(&buf, b.engine.View(), status, err)
	return buf.String()
}

// CatchUp redraws the listing when live changes have altered it since it
// was last shown, and reports whether it did.
func (b *Browser) CatchUp() bool {
	select {
	case <-b.engine.Changes():
	default:
		return false
	}
	current := b.page()
	if current == b.lastPage {
		return false
	}
	fmt.Fprintln(b.out, "Listing updated:")
	b.lastPage = current
	io.WriteString(b.out, current)
	return true
}

// Render writes a listing page. Rows are numbered from 1 for use with show.
func Render(w io.Writer, view listsync.View, status listsync.Status, loadErr error) {
	switch status {
	case listsync.StatusLoading:
		fmt.Fprintln(w, "Loading jobs...")
		return
	case listsync.StatusFailed:
		fmt.Fprintf(w, "Could not load jobs: %v\n", loadErr)
		return
	}

	if len(view.Items) == 0 {
		if strings.TrimSpace(view.Query) != "" {
			fmt.Fprintf(w, "No jobs match %q.\n", view.Query)
		} else {
			fmt.Fprintln(w, "No jobs posted yet.")
		}
		return
	}

	for i, p := range view.Items {
		fmt.Fprintf(w, "%3d. %s @ %s", i+1, p.Role, p.Company)
		if tags := p.Tags(); len(tags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(tags, ", "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Showing %d of %d", len(view.Items), view.Matches)
	if view.Query != "" {
		fmt.Fprintf(w, " matching %q", view.Query)
	}
	fmt.Fprintln(w)
	if view.HasMore {
		fmt.Fprintln(w, "Type 'more' to load more.")
	}
}

// resolve maps a row number of the current page, or an id, to a posting id.
func (b *Browser) resolve(arg string) (string, bool) {
	if arg == "" {
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		items := b.engine.CurrentView()
		if n < 1 || n > len(items) {
			return "", false
		}
		return items[n-1].ID, true
	}
	return arg, true
}

func (b *Browser) show(arg string) {
	id, ok := b.resolve(arg)
	if !ok {
		fmt.Fprintln(b.out, "usage: show <row number|id>")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	p, err := b.details.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrPostingNotFound) {
			fmt.Fprintln(b.out, "Job not found")
			return
		}
		fmt.Fprintf(b.out, "error: %v\n", err)
		return
	}
	RenderDetail(b.out, *p, b.baseURL)
}

// RenderDetail writes one posting in full.
func RenderDetail(w io.Writer, p domain.Posting, baseURL string) {
	fmt.Fprintf(w, "%s\n%s (%s)\n", p.Role, p.Company, p.CompanyURL)
	if tags := p.Tags(); len(tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(tags, ", "))
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Posted: %s\n", p.CreatedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "\n%s\n\n", notify.PlainText(p.Description))
	fmt.Fprintf(w, "Apply: %s\n", p.ApplyLink)
	if baseURL != "" {
		fmt.Fprintf(w, "Link: %s\n", notify.DetailURL(baseURL, p.ID))
	}
}

func (b *Browser) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.engine.Resync(ctx); err != nil {
		fmt.Fprintf(b.out, "refresh failed: %v\n", err)
		return
	}
	b.list()
}

func (b *Browser) export(path string) {
	if path == "" {
		fmt.Fprintln(b.out, "usage: export <file>")
		return
	}
	data, err := json.MarshalIndent(b.engine.View(), "", "  ")
	if err != nil {
		fmt.Fprintf(b.out, "error: %v\n", err)
		return
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		fmt.Fprintf(b.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(b.out, "Wrote %s\n", path)
}

func (b *Browser) status() {
	status, err := b.engine.Status()
	state := b.engine.ViewState()
	fmt.Fprintf(b.out, "status: %s\n", status)
	if err != nil {
		fmt.Fprintf(b.out, "error: %v\n", err)
	}
	fmt.Fprintf(b.out, "postings: %d\nquery: %q\nvisible: %d\n", len(b.engine.Postings()), state.Query, state.Visible)
}
