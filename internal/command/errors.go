package command

import "errors"

// ErrUnsafeArgument is returned when an externally influenced string
// fails its allow-list validator before reaching argv (spec §4.5, §7).
var ErrUnsafeArgument = errors.New("unsafe command argument")
