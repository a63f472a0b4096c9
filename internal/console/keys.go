package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the watch view's keyboard bindings.
type KeyMap struct {
	Quit    key.Binding
	Clear   key.Binding
	Refresh key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear log"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh health"),
		),
	}
}

func (k KeyMap) footer() string {
	var parts []string
	for _, b := range []key.Binding{k.Refresh, k.Clear, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return "  " + strings.Join(parts, "  ")
}
