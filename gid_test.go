package vt

import (
	"fmt"
	"runtime"
	"testing"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestGetGID(t *testing.T) {
	mine := GetGID()
	tassert(t, mine > 0, "gid %d", mine)
	tassert(t, GetGID() == mine, "gid changed")

	other := make(chan uint64)
	go func() {
		other <- GetGID()
	}()
	theirs := <-other
	tassert(t, theirs > 0 && theirs != mine, "gid %d, mine %d", theirs, mine)
}

func TestCaller(t *testing.T) {
	// tests run in the package directory, so the path is trimmed to the base name
	_, file, line, _ := runtime.Caller(0)
	_, got := Caller()(&runtime.Frame{File: file, Line: line})
	want := fmt.Sprintf("/gid_test.go:%d gid %d", line, GetGID())
	tassert(t, got == want, "got %q, want %q", got, want)
}
