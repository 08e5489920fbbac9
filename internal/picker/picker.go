package picker

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
)

// ErrCancelled is returned when the user dismisses the dialog without
// choosing a folder.
var ErrCancelled = errors.New("no folder selected")

// SelectFolder opens a native directory-selection dialog. It only makes
// sense when the server runs on the same machine as the browser.
func SelectFolder() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Directory(),
		zenity.Title("Select folder for PNG renaming"),
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("folder dialog is not available: %w", err)
	}

	if selected == "" {
		return "", ErrCancelled
	}

	return selected, nil
}
