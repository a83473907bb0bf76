package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// BackendFactory creates AudioBackend instances based on configuration
type BackendFactory interface {
	CreateBackend(backendType string) (AudioBackend, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

// Factory errors
var (
	ErrInvalidBackendType    = errors.New("invalid backend type")
	ErrBackendCreationFailed = errors.New("backend creation failed")
)

// DefaultBackendFactory maps configured names to backends
type DefaultBackendFactory struct {
	// createDevice builds device-backed backends; swapped in tests
	createDevice func(backendType string) (AudioBackend, error)
	realtimeNull bool
}

// NewBackendFactory creates a factory for real devices. The null backend it
// creates runs on its own clock.
func NewBackendFactory() *DefaultBackendFactory {
	return &DefaultBackendFactory{
		createDevice: createDeviceBackend,
		realtimeNull: true,
	}
}

// NewBackendFactoryWithDependencies creates a factory with injected device
// construction for testing
func NewBackendFactoryWithDependencies(createDevice func(string) (AudioBackend, error), realtimeNull bool) *DefaultBackendFactory {
	return &DefaultBackendFactory{
		createDevice: createDevice,
		realtimeNull: realtimeNull,
	}
}

// CreateBackend creates an AudioBackend instance based on the specified type
func (f *DefaultBackendFactory) CreateBackend(backendType string) (AudioBackend, error) {
	if backendType == "" {
		backendType = "auto"
	}

	slog.Debug("creating audio backend", "type", backendType)

	switch backendType {
	case "auto":
		backend, err := f.createDevice("malgo")
		if err != nil {
			slog.Warn("no audio device backend, falling back to null output", "error", err)
			return NewNullBackend(f.realtimeNull), nil
		}
		return backend, nil
	case "malgo", "oto":
		backend, err := f.createDevice(backendType)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackendCreationFailed, err)
		}
		return backend, nil
	case "null":
		return NewNullBackend(f.realtimeNull), nil
	default:
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}

// GetSupportedBackends returns a list of all supported backend types
func (f *DefaultBackendFactory) GetSupportedBackends() []string {
	return []string{"auto", "malgo", "oto", "null"}
}

// IsValidBackendType checks if a backend type is supported
func (f *DefaultBackendFactory) IsValidBackendType(backendType string) bool {
	// empty defaults to auto
	if backendType == "" {
		return true
	}
	return slices.Contains(f.GetSupportedBackends(), backendType)
}
