// Package repository defines the interfaces infrastructure adapters
// implement and the domain/usecase layers depend on.
package repository

import "errors"

var (
	// ErrNotFound is returned when a keyed lookup (state store, video,
	// scrape request, object) finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrObjectNotFound is returned when an object does not exist in
	// object storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrStorageNotConfigured is returned by admin actions that require an
	// object-store client when none was configured.
	ErrStorageNotConfigured = errors.New("object storage is not configured")

	// ErrScanInProgress is returned by ScanStorage when a scan is already
	// running (§5 "exactly one scan in flight at a time").
	ErrScanInProgress = errors.New("a storage scan is already in progress")
)
