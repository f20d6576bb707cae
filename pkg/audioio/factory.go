package audioio

import "fmt"

// NewSource opens a capture source for the configured backend.
func NewSource(cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch resolve(cfg.Backend) {
	case BackendMock:
		return NewMockSource(cfg), nil
	case BackendDevice:
		return newDeviceSource(cfg), nil
	default:
		return nil, fmt.Errorf("audioio: unknown backend %q", cfg.Backend)
	}
}

// NewSink opens a playback sink for the configured backend.
func NewSink(cfg Config) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch resolve(cfg.Backend) {
	case BackendMock:
		return NewMockSink(cfg), nil
	case BackendDevice:
		return newDeviceSink(cfg), nil
	default:
		return nil, fmt.Errorf("audioio: unknown backend %q", cfg.Backend)
	}
}

func resolve(b Backend) Backend {
	if b == BackendAuto {
		return BackendDevice
	}
	return b
}
