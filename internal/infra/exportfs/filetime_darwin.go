//go:build darwin

package exportfs

import (
	"os/exec"
	"time"
)

// setFileCreationTime uses the Xcode SetFile tool when present; without it the
// birth time is left as written.
func setFileCreationTime(path string, created time.Time) error {
	if created.IsZero() {
		return nil
	}
	bin, err := exec.LookPath("SetFile")
	if err != nil {
		return nil
	}
	stamp := created.Local().Format("01/02/2006 15:04:05")
	return exec.Command(bin, "-d", stamp, path).Run()
}
