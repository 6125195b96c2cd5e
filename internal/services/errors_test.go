package services_test

import (
	"errors"
	"testing"

	"sorapipe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 2")
	err := services.Wrap(services.ErrStageFailed, "blur", "encode", "a.mp4", base)
	if !errors.Is(err, services.ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed tag, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	want := "stage failed: blur: encode: a.mp4: exit status 2"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q want %q", err.Error(), want)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "maintenance", "remove", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestFatalClassification(t *testing.T) {
	if services.Fatal(nil) {
		t.Fatal("nil error must not be fatal")
	}
	if services.Fatal(services.Wrap(services.ErrTransient, "shadow", "copy", "", errors.New("eperm"))) {
		t.Fatal("transient errors must not be fatal")
	}
	if !services.Fatal(services.Wrap(services.ErrConfiguration, "blur", "zones", "preset needs 3 zones", nil)) {
		t.Fatal("configuration errors must be fatal")
	}
}
