package models

// File event operations.
const (
	OpAdd    = "add"
	OpChange = "change"
	OpRemove = "remove"
)

// FileEvent reports a change to one path of the content tree. Path is
// relative to the content root and uses OS separators.
type FileEvent struct {
	Op   string `json:"event"`
	Path string `json:"path"`
}
