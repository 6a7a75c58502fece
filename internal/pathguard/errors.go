package pathguard

import "errors"

// ErrInvalidPath is the sentinel wrapped by every rejection Validate,
// ValidateExisting, and ValidateWebhookTitle return.
var ErrInvalidPath = errors.New("invalid path")
