package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound is returned when no cached store has the given ID
	ErrStoreNotFound = errors.New("store not found")
	// ErrProductNotFound is returned when the store has no product with the given ID
	ErrProductNotFound = errors.New("product not found")
)

// NameConflictError is returned when the slug derived from a store name is
// already held by another store
type NameConflictError struct {
	Name string
	Slug string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("a store named %q already exists (url %q is taken)", e.Name, e.Slug)
}

// CloudSyncError records a failed cloud phase. The local entry is kept and the
// phase is retried on the next update.
type CloudSyncError struct {
	StoreID string
	Op      string
	Err     error
}

func (e *CloudSyncError) Error() string {
	return fmt.Sprintf("cloud sync of store %s failed during %s: %v", e.StoreID, e.Op, e.Err)
}

func (e *CloudSyncError) Unwrap() error {
	return e.Err
}

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func asCloudSyncError(storeID, op string, err error) *CloudSyncError {
	var syncErr *CloudSyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return &CloudSyncError{StoreID: storeID, Op: op, Err: err}
}
