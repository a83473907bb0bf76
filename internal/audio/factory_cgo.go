//go:build cgo

package audio

import "fmt"

func createDeviceBackend(backendType string) (AudioBackend, error) {
	switch backendType {
	case "malgo":
		return NewMalgoBackend(), nil
	case "oto":
		return NewOtoBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}
