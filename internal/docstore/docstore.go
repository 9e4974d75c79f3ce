// Package docstore exposes the document store the mail engine persists into:
// a tree of JSON values addressed by slash-separated paths, in the style of a
// hosted realtime database. The rest of the application only depends on the
// Store interface so the backend can be swapped without touching mail logic.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("docstore: document not found")

type Store interface {
	// Get returns the raw JSON value stored at path, or ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set stores value at path, replacing any existing document.
	Set(ctx context.Context, path string, value any) error
	// Update merges the given fields into the JSON object at path. A missing
	// document is treated as an empty object.
	Update(ctx context.Context, path string, partial map[string]any) error
	// Delete removes the document at path and all of its descendants.
	// Deleting a path that holds nothing is not an error.
	Delete(ctx context.Context, path string) error
	// Push stores value under path with a generated collision-resistant id
	// and returns that id.
	Push(ctx context.Context, path string, value any) (string, error)
	// Children returns the direct children of path keyed by their last path
	// segment. A path with no children yields an empty map.
	Children(ctx context.Context, path string) (map[string]json.RawMessage, error)
	Close() error
}

// AddressKey converts an email address into a path-safe key. Dots are not
// allowed in path segments, so they are stored as commas.
func AddressKey(address string) string {
	return strings.ReplaceAll(address, ".", ",")
}

func UserPath(address string) string {
	return "users/" + AddressKey(address)
}

func InboxPath(address string) string {
	return "inbox/" + AddressKey(address)
}

func SentPath(address string) string {
	return "sent/" + AddressKey(address)
}

func DraftsPath(address string) string {
	return "drafts/" + AddressKey(address)
}

func NotificationsPath(address string) string {
	return "notifications/" + AddressKey(address)
}
