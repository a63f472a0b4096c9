package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tausound/server/internal/client"
)

var builtins = []string{"help", "exit", "quit"}

// DefaultCallTimeout bounds one command round trip.
const DefaultCallTimeout = 10 * time.Second

// Caller is the part of a channel connection the shell needs.
type Caller interface {
	Call(ctx context.Context, method string, slot *int, args any) (client.Result, error)
	Frames() <-chan client.Frame
}

// Shell reads command lines for one kind and prints results and events.
type Shell struct {
	kind    string
	caller  Caller
	timeout time.Duration
	rl      *readline.Instance
}

// NewShell opens a readline prompt for kind. historyFile may be empty.
func NewShell(kind string, caller Caller, historyFile string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          kind + "> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    NewCompleter(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}
	return &Shell{kind: kind, caller: caller, timeout: DefaultCallTimeout, rl: rl}, nil
}

func (s *Shell) Close() error { return s.rl.Close() }

// Run reads lines until exit, EOF or ctx ends. Events are printed as they
// arrive, above the prompt.
func (s *Shell) Run(ctx context.Context) error {
	go s.printFrames(ctx, s.rl.Stdout())

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			s.printHelp(s.rl.Stdout())
			continue
		}
		s.Execute(ctx, line, s.rl.Stdout())
	}
}

// Execute sends one line and prints its result.
func (s *Shell) Execute(ctx context.Context, line string, w io.Writer) {
	cmd, err := ParseLine(line)
	if err != nil {
		fmt.Fprintf(w, "parse error: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var args any
	if cmd.Args != nil {
		args = cmd.Args
	}
	res, err := s.caller.Call(ctx, cmd.Method, cmd.Slot, args)
	if err != nil {
		fmt.Fprintf(w, "call failed: %v\n", err)
		return
	}
	fmt.Fprintln(w, FormatResult(res))
}

func (s *Shell) printFrames(ctx context.Context, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.caller.Frames():
			if !ok {
				fmt.Fprintln(w, "connection closed")
				return
			}
			printFrame(w, s.kind, f)
		}
	}
}

func printFrame(w io.Writer, kind string, f client.Frame) {
	switch f.Type {
	case client.MsgEvent:
		ev, err := f.DecodeEvent()
		if err != nil {
			return
		}
		fmt.Fprintln(w, FormatEvent(kind, ev))
	case client.MsgSnapshot:
		snap, err := f.DecodeSnapshot()
		if err != nil {
			return
		}
		if len(snap.Slots) == 0 {
			fmt.Fprintf(w, "%s: no live sessions\n", snap.Kind)
			return
		}
		for _, si := range snap.Slots {
			fmt.Fprintf(w, "%s#%d %s\n", snap.Kind, si.Slot, si.State)
		}
	}
}

func (s *Shell) printHelp(w io.Writer) {
	fmt.Fprintln(w, "usage: method [slot] key=value ...")
	fmt.Fprintln(w, "  e.g. startPlayer 0 fromURI=song.mp3 codec=mp3")
	fmt.Fprintln(w, "methods:")
	for _, m := range Methods(s.kind) {
		fmt.Fprintln(w, "  "+m)
	}
}
