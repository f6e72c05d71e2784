package imaging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cjeanneret/scancam/internal/debug"
)

// WriteFile persists img at path. The bytes go to a temporary file in the same
// directory which is renamed over path only after a successful sync, so a
// failure never leaves a truncated image at path and never touches a previous one.
func WriteFile(img *EncodedImage, path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(img.Data); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}

	debug.Verbose("Wrote %d byte image to %s", img.Len(), path)
	return nil
}
