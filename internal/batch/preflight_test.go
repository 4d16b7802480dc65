package batch

import (
	"errors"
	"testing"

	"dubber/internal/services"
)

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	if err := checkDiskSpace(dir, 0); err != nil {
		t.Fatalf("zero minimum should disable the check: %v", err)
	}
	if err := checkDiskSpace(dir, 1); err != nil {
		t.Fatalf("expected at least 1 MiB free in temp dir: %v", err)
	}

	err := checkDiskSpace(dir, 1<<30)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for absurd minimum, got %v", err)
	}
}
