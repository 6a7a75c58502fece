package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog operations, checkable with errors.Is.
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobNotDeletable    = errors.New("job cannot be deleted while processing")
	ErrUnknownOverrideKey = errors.New("unknown config override key")
)

func jobNotFoundError(id int64) error {
	return fmt.Errorf("%w: %d", ErrJobNotFound, id)
}
