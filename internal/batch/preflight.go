package batch

import (
	"fmt"

	"golang.org/x/sys/unix"

	"dubber/internal/services"
)

// checkDiskSpace verifies the audio directory has at least minFreeMiB
// available before a batch starts writing synthesized segments.
func checkDiskSpace(dir string, minFreeMiB int) error {
	if minFreeMiB <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return services.Wrap(services.ErrValidation, "batch", "preflight", fmt.Sprintf("statfs %s", dir), err)
	}
	freeMiB := stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
	if freeMiB < uint64(minFreeMiB) {
		return services.Wrap(
			services.ErrValidation,
			"batch",
			"preflight",
			fmt.Sprintf("only %d MiB free in %s, need %d MiB", freeMiB, dir, minFreeMiB),
			nil,
		)
	}
	return nil
}
