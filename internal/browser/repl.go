package browser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jobboard_history")
}

// Run reads commands from the terminal until quit, Ctrl-C or EOF.
func (b *Browser) Run() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, c := range Commands {
			if strings.HasPrefix(c, strings.ToLower(prefix)) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if path := historyFile(); path != "" {
			if f, err := os.Create(path); err == nil {
				_, _ = line.WriteHistory(f)
				f.Close()
			}
		}
	}()

	fmt.Fprintln(b.out, "Type 'help' for available commands.")
	b.list()

	for {
		b.CatchUp()
		input, err := line.Prompt("jobs> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(b.out, "\nBye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		if b.Execute(input) {
			fmt.Fprintln(b.out, "Bye!")
			return nil
		}
	}
}
