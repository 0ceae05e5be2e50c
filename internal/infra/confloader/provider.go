package confloader

import "errors"

// ErrReadBytesNotSupported is returned when koanf asks a map-backed
// provider for raw bytes; defaults loaded from a map have no byte
// form, only Read applies.
var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form, use Read")

// mapProvider feeds in-memory defaults to koanf before the file and
// environment layers are applied on top.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
