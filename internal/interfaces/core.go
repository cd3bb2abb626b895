// Package interfaces provides the collaborator contracts the charoster core
// depends on. The core never implements window management, persistence or
// image decoding itself; it talks to them through these interfaces so they can
// be swapped and mocked.
package interfaces

import (
	"image"

	"github.com/conneroisu/charoster/internal/types"
)

// Notifier is the fire-and-forget notification transport. The core calls it
// after every entity mutation, pack-ready and load-progress event.
type Notifier interface {
	Notify(event types.EventType, payload interface{})
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(event types.EventType, payload interface{})

// Notify implements Notifier
func (f NotifierFunc) Notify(event types.EventType, payload interface{}) {
	f(event, payload)
}

// NopNotifier discards every notification
type NopNotifier struct{}

// Notify implements Notifier
func (NopNotifier) Notify(types.EventType, interface{}) {}

// Settings is the persistence/config service.
type Settings interface {
	// WorkFolder returns the root holding packs/<packId>/...; empty when unset
	WorkFolder() string
	// TempPath returns the directory for derived image files
	TempPath() string
	// Get returns a raw configuration value
	Get(key string) interface{}
	// SizeRatio returns the width/height ratio of a named size in a theme
	SizeRatio(theme, size string) float64
	// MaxRenderWidth returns the maximum output width for an entity type, 0 for none
	MaxRenderWidth(entityType string) int
}

// TempFiles persists derived artifacts outside memory.
type TempFiles interface {
	Write(name string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Remove(path string) error
	Clear() error
}

// Padding is the transparent border added around a raster, in pixels.
type Padding struct {
	Top, Right, Bottom, Left int
}

// IsZero reports whether no edge is padded
func (p Padding) IsZero() bool {
	return p.Top == 0 && p.Right == 0 && p.Bottom == 0 && p.Left == 0
}

// Codec is the black-box image codec. Encode must be lossless.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Extend(img image.Image, pad Padding) image.Image
	Crop(img image.Image, rect image.Rectangle) (image.Image, error)
	Resize(img image.Image, width int) image.Image
	Encode(img image.Image) ([]byte, error)
}
