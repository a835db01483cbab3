// Package platform provides cross-platform filesystem helpers: permission
// changes that are no-ops on Windows, and durable atomic file writes used
// whenever a managed file or a snapshot is written.
package platform
