package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCoreErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	ce := Wrap(KindStoreUnavailable, "put failed", cause)

	if !errors.Is(ce, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if KindOf(ce) != KindStoreUnavailable {
		t.Fatalf("expected KindStoreUnavailable, got %s", KindOf(ce))
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	ce := New(KindToolTimeout, "tool took too long")
	wrapped := fmt.Errorf("dispatch failed: %w", ce)

	if KindOf(wrapped) != KindToolTimeout {
		t.Fatalf("expected KindToolTimeout, got %s", KindOf(wrapped))
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("expected unclassified errors to report KindInternal")
	}
}
