package facecache

import (
	"fmt"
	"math"
)

// Distance returns the Euclidean distance between two encodings on the
// external encoder's scale. Distances above roughly 0.6 indicate different
// people for the 128-dimensional encoder Vigil is calibrated to.
func Distance(a, b Encoding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("facecache: encoding dimensions differ: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
