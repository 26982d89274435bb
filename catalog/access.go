package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrAccessDenied is returned when the process may not read the music directory.
var ErrAccessDenied = errors.New("catalog: storage read access denied")

// AccessCheck verifies that root may be read before a scan starts.
type AccessCheck func(root string) error

// CheckReadable opens root and reads one entry. A missing root passes the
// check; the scan reports it separately.
func CheckReadable(root string) error {
	dir, err := os.Open(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrAccessDenied, root)
		}
		return err
	}
	defer dir.Close()

	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrAccessDenied, root)
		}
		return err
	}
	return nil
}
