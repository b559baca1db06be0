package deps

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil //nolint:gosec
}

// CheckDisk reports whether path has at least thresholdGB free.
func CheckDisk(path string, thresholdGB int) Status {
	status := Status{
		Name:        "Disk space",
		Command:     path,
		Description: fmt.Sprintf("At least %d GB free", thresholdGB),
		Optional:    true,
	}
	free, err := FreeBytes(path)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Detail = humanize.IBytes(free) + " free"
	status.Available = thresholdGB <= 0 || free >= uint64(thresholdGB)<<30
	return status
}
