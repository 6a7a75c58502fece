package stabilizer

import "errors"

// ErrTimeout is returned when the source directory keeps growing past the
// configured hard timeout (spec §4.7, §7 StabilizerTimeout).
var ErrTimeout = errors.New("stabilizer: source did not stabilize before hard timeout")
