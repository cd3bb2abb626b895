// Package types provides common type definitions used throughout charoster.
// This package contains shared types to avoid circular dependencies between packages.
package types

import (
	"fmt"
	"strings"
	"time"
)

// IDSeparator joins the segments of a fully qualified id: pack>entity>alt>index.
const IDSeparator = ">"

// JoinID joins id segments with the separator, skipping empty segments.
func JoinID(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, IDSeparator)
}

// SplitID splits a fully qualified id into its segments.
func SplitID(id string) []string {
	if id == "" {
		return nil
	}
	return strings.Split(id, IDSeparator)
}

// IsQualified reports whether id already carries a pack prefix.
func IsQualified(id string) bool {
	return strings.Contains(id, IDSeparator)
}

// EntityType names one entity cache bucket. The value doubles as the pack
// folder holding that type's JSON files.
type EntityType string

const (
	EntityTypeCharacters EntityType = "characters"
	EntityTypeStages     EntityType = "stages"
	EntityTypeItems      EntityType = "items"
)

// EntityTypes returns every supported entity type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{EntityTypeCharacters, EntityTypeStages, EntityTypeItems}
}

// ParseEntityType validates an entity type name.
func ParseEntityType(name string) (EntityType, error) {
	for _, t := range EntityTypes() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", name)
}

// Asset is a post-processed file-backed field value.
type Asset struct {
	// Type is "image" or "svg"
	Type string `json:"type"`
	// File is the absolute path to the asset under the work folder
	File string `json:"file"`
	// FullID is the qualified pack>entity>file reference
	FullID string `json:"fullId"`
	// Content holds the markup for svg assets
	Content string `json:"content,omitempty"`
}

// EventType names a notification emitted by the core.
type EventType string

const (
	EventTypeEntityUpdated     EventType = "entity-updated"
	EventTypeDefinitionUpdated EventType = "definition-updated"
	EventTypePackReady         EventType = "pack-ready"
	EventTypeLoadProgress      EventType = "load-progress"
	EventTypeError             EventType = "error"
	EventTypeReset             EventType = "reset"
)

// Event is one notification, used for real-time updates to watchers like the
// development server and the event stream.
type Event struct {
	// Type indicates the kind of change
	Type EventType `json:"type"`
	// Payload carries the event body (ids, progress counts, error details)
	Payload interface{} `json:"payload,omitempty"`
	// Timestamp records when the event occurred
	Timestamp time.Time `json:"timestamp"`
}
