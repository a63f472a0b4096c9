package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	apperrors "github.com/tausound/server/internal/errors"
)

// Handler runs one method against a resolved session.
type Handler[S any] func(ctx context.Context, s S, args json.RawMessage) (any, error)

// Validator is implemented by argument structs with constraints beyond
// their JSON shape.
type Validator interface {
	Validate() error
}

// NoArgs is the argument type of methods that take none.
type NoArgs struct{}

// With adapts a handler taking a typed argument struct. Arguments are
// decoded strictly and validated once, before the session is touched.
func With[S, A any](fn func(ctx context.Context, s S, args A) (any, error)) Handler[S] {
	return func(ctx context.Context, s S, raw json.RawMessage) (any, error) {
		args, err := Decode[A](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, s, args)
	}
}

// Decode parses raw into A, rejecting unknown fields, then runs Validate
// when A implements Validator. Failures are InvalidArgument naming the field.
func Decode[A any](raw json.RawMessage) (A, error) {
	var args A
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
			return args, decodeError(err)
		}
	}
	if v, ok := any(&args).(Validator); ok {
		if err := v.Validate(); err != nil {
			return args, err
		}
	}
	return args, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "args"
		}
		return apperrors.InvalidArgument(field, "expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	// encoding/json reports unknown fields only as text.
	if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return apperrors.InvalidArgument(strings.Trim(name, `"`), "unknown field")
	}
	return apperrors.InvalidArgument("args", "%v", err)
}
