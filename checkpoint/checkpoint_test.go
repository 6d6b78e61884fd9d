package checkpoint

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

type codeError struct {
	code int
}

func (e codeError) Error() string {
	return "code"
}

func TestFrom(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
		wantRaw bool
	}{
		{name: "nil", err: nil, wantErr: nil, wantRaw: true},
		{name: "EOF", err: io.EOF, wantErr: io.EOF, wantRaw: true},
		{name: "unexpected EOF", err: io.ErrUnexpectedEOF, wantErr: io.ErrUnexpectedEOF, wantRaw: true},
		{name: "sentinel", err: errSentinel, wantErr: errSentinel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			if tt.wantRaw && got != tt.wantErr {
				t.Errorf("From() = %v, want %v", got, tt.wantErr)
			}
			if !errors.Is(got, tt.wantErr) {
				t.Errorf("errors.Is(From(), %v) = false, want true", tt.wantErr)
			}
		})
	}
}

func TestFrom_location(t *testing.T) {
	err := From(errSentinel)
	if !strings.HasPrefix(err.Error(), "checkpoint_test.go:") {
		t.Errorf("From().Error() = %q, want the caller location as prefix", err.Error())
	}
	if !strings.HasSuffix(err.Error(), ": sentinel") {
		t.Errorf("From().Error() = %q, want the error as suffix", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := codeError{code: 5}
	err := Wrap(cause, os.ErrNotExist)

	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("errors.Is(Wrap(), os.ErrNotExist) = false, want true")
	}
	var got codeError
	if !errors.As(err, &got) || got.code != 5 {
		t.Errorf("errors.As(Wrap()) = %v, want the cause", got)
	}
	if errors.Unwrap(err) != error(cause) {
		t.Errorf("errors.Unwrap(Wrap()) = %v, want %v", errors.Unwrap(err), cause)
	}
	if !strings.HasSuffix(err.Error(), os.ErrNotExist.Error()+": code") {
		t.Errorf("Wrap().Error() = %q", err.Error())
	}

	// Nesting keeps every layer reachable.
	outer := Wrap(err, errSentinel)
	if !errors.Is(outer, errSentinel) || !errors.Is(outer, os.ErrNotExist) {
		t.Errorf("errors.Is() on nested checkpoints = false, want true")
	}

	if got := Wrap(nil, errSentinel); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
	if got := Wrap(io.EOF, errSentinel); got != io.EOF {
		t.Errorf("Wrap(io.EOF) = %v, want io.EOF", got)
	}
}
