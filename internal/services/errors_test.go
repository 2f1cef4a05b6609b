package services_test

import (
	"errors"
	"strings"
	"testing"

	"tunes/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "localfile", "ffprobe", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"localfile", "ffprobe", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestHintMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrNotFound, "m3u", "read", "gone", nil), "forget or delete"},
		{services.Wrap(services.ErrExternalTool, "localfile", "probe", "", errors.New("exit 1")), "PATH"},
		{errors.New("plain"), "refresh"},
	}
	for _, tc := range cases {
		if hint := services.Hint(tc.err); !strings.Contains(hint, tc.want) {
			t.Fatalf("Hint(%v) = %q, want substring %q", tc.err, hint, tc.want)
		}
	}
	if services.Hint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
}
