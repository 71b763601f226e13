package inventory

import "errors"

// ErrNotFound is returned when no record exists for a medication.
var ErrNotFound = errors.New("inventory: not found")
