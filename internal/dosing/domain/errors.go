package dosing

import "errors"

// ErrUnboundTag is returned when a scanned tag has no (person, medication) binding.
var ErrUnboundTag = errors.New("dosing: unbound tag")

// ErrDuplicateScan is returned when the same physical scan is delivered again.
var ErrDuplicateScan = errors.New("dosing: duplicate scan delivery")
