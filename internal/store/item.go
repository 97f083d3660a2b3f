package store

import "github.com/phuquocloc/xcbd/internal/xatom"

// Item is one captured clipboard snapshot. Payload
// bytes are never embedded here; they live on disk at
// <db-root>/<Filename> and are loaded lazily via Store.ReadBinary.
type Item struct {
	Filename  string
	Timestamp int64 // capture time, seconds
	Kind      xatom.Kind
}
