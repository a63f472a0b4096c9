package console

import (
	"strings"

	"github.com/chzyer/readline"
)

// Completer completes method names and shell builtins in the first word.
type Completer struct {
	words []string
}

var _ readline.AutoCompleter = (*Completer)(nil)

func NewCompleter(kind string) *Completer {
	words := append(Methods(kind), builtins...)
	return &Completer{words: words}
}

// Do implements readline.AutoCompleter.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	head := string(line[:pos])
	if strings.ContainsAny(head, " \t") {
		return nil, 0
	}

	var out [][]rune
	for _, w := range c.words {
		if strings.HasPrefix(w, head) {
			out = append(out, []rune(w[len(head):]+" "))
		}
	}
	return out, len([]rune(head))
}
