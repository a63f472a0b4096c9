// Package console is the operator front end: a readline shell that sends
// commands to one kind's channel and a live watch view of every slot.
package console

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command is one parsed shell line.
type Command struct {
	Method string
	Slot   *int
	Args   map[string]any
}

// ParseLine parses `method [slot] key=value ...`. Values that are valid
// JSON (numbers, booleans, quoted strings, objects) are sent as such; any
// other value is sent as a plain string.
func ParseLine(line string) (Command, error) {
	fields, err := splitFields(line)
	if err != nil {
		return Command{}, err
	}
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	cmd := Command{Method: fields[0]}
	rest := fields[1:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			if n < 0 {
				return Command{}, fmt.Errorf("slot %d must not be negative", n)
			}
			cmd.Slot = &n
			rest = rest[1:]
		}
	}

	for _, f := range rest {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return Command{}, fmt.Errorf("argument %q: want key=value", f)
		}
		if cmd.Args == nil {
			cmd.Args = make(map[string]any)
		}
		cmd.Args[k] = argValue(v)
	}
	return cmd, nil
}

func argValue(v string) any {
	if v != "" && json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	return v
}

// splitFields splits on whitespace, keeping double-quoted runs (quotes
// included) together.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
	)
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
			cur.WriteRune(r)
		case inQuote && r == '\\':
			escaped = true
			cur.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}
