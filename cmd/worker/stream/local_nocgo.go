//go:build !((linux && cgo) || windows || darwin)

package stream

// AudioAvailable indicates whether local audio playback is supported in this
// build. Audio output needs cgo for the native sound libraries.
const AudioAvailable = false

// NewLocalDriver falls back to the silent driver when audio is unavailable.
func NewLocalDriver() Driver {
	return NewNullDriver()
}
