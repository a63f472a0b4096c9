package console

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tausound/server/internal/client"
)

// FormatResult renders a command result on one line.
func FormatResult(res client.Result) string {
	switch {
	case res.OK() && len(res.Value) == 0:
		return "ok"
	case res.OK():
		return "ok " + compact(res.Value)
	case res.Err != nil:
		return res.Status + " " + res.Err.Error()
	}
	return res.Status
}

// FormatEvent renders an event as `[kind#slot state] method arg`.
func FormatEvent(kind string, ev client.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s#%d %s] %s", kind, ev.Slot, ev.State, ev.Method)
	if !ev.Success {
		b.WriteString(" FAILED")
	}
	if ev.Msg != "" {
		fmt.Fprintf(&b, " %s: %s", strings.Trim(string(ev.Level), `"`), ev.Msg)
	}
	if len(ev.Arg) > 0 {
		b.WriteString(" " + compact(ev.Arg))
	}
	return b.String()
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return string(raw)
}

func clock(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
