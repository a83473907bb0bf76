//go:build !cgo

package audio

import (
	"errors"
	"fmt"
)

var errCGORequired = errors.New(`stemdeck requires CGO support for audio device output.

This error occurs when stemdeck was built without CGO enabled. Offline
commands and the "null" backend still work.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then run: go install stemdeck.click/cmd/stemdeck

For more information, see: https://pkg.go.dev/cmd/cgo`)

func createDeviceBackend(backendType string) (AudioBackend, error) {
	return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, backendType, errCGORequired)
}
