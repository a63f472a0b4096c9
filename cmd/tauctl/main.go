package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tausound/server/internal/client"
	"github.com/tausound/server/internal/console"
)

const usage = `usage: tauctl <command> [flags]

commands:
  shell    interactive command prompt for one kind (-kind player|recorder)
  watch    live view of every slot
  status   print live sessions and health as JSON
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "shell":
		err = runShell(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tauctl: %v\n", err)
		os.Exit(1)
	}
}

type common struct {
	url   string
	token string
}

func commonFlags(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.url, "url", "http://127.0.0.1:8080", "Base URL of the tau server")
	fs.StringVar(&c.token, "token", os.Getenv("TAU_AUTH_TOKEN"), "Auth token or JWT (if the server requires it)")
	return c
}

func runShell(args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	c := commonFlags(fs)
	kind := fs.String("kind", "player", "Channel to drive: player or recorder")
	history := fs.String("history", defaultHistory(), "History file (empty to disable)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	ws, err := client.Dial(dialCtx, c.url, *kind, c.token)
	cancel()
	if err != nil {
		return err
	}
	defer ws.Close()

	sh, err := console.NewShell(*kind, ws, *history)
	if err != nil {
		return err
	}
	defer sh.Close()
	return sh.Run(ctx)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	c := commonFlags(fs)
	fs.Parse(args)

	m := console.NewWatch(c.url, c.token, client.NewHTTPClient(c.url, c.token))
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c := commonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hc := client.NewHTTPClient(c.url, c.token)
	sessions, err := hc.Sessions(ctx)
	if err != nil {
		return err
	}
	health, err := hc.Health(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"sessions": sessions, "health": health})
}

func defaultHistory() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tau", "tauctl_history")
}
