package util

import "github.com/rs/xid"

// NewID returns a globally unique, creation-time-ordered identifier.
// Time ordering is what makes id-based cursors equivalent to created-at
// ordering everywhere in the store.
func NewID(prefix string) string {
	id := xid.New().String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
