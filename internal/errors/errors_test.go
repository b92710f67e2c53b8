package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeFollowsWrappedChain(t *testing.T) {
	base := New(CodeRateLimited, "provider rate limited request")
	wrapped := fmt.Errorf("fetch prices: %w", base)
	if got := ExitCode(wrapped); got != int(CodeRateLimited) {
		t.Fatalf("expected exit %d, got %d", CodeRateLimited, got)
	}
	if !Is(wrapped, CodeRateLimited) {
		t.Fatal("expected Is to match wrapped code")
	}
	if ExitCode(fmt.Errorf("plain")) != int(CodeInternal) {
		t.Fatal("expected untyped errors to map to internal")
	}
	if ExitCode(nil) != 0 {
		t.Fatal("expected nil error to map to success")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeUnavailable, "price feed", fmt.Errorf("timeout"))
	if err.Error() != "price feed: timeout" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if TypeName(CodeNotFound) != "not_found" {
		t.Fatalf("unexpected type name: %s", TypeName(CodeNotFound))
	}
}
