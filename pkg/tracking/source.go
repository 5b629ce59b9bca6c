package tracking

// Face is a detected face in working-resolution pixel coordinates.
type Face struct {
	X, Y, W, H int
}

// Center returns the centroid of the face box.
func (f Face) Center() (cx, cy float64) {
	return float64(f.X) + float64(f.W)/2, float64(f.Y) + float64(f.H)/2
}

// Source supplies one detected face per captured frame. Implementations own
// the capture device and the detector; the tracker only sees geometry.
type Source interface {
	// Open prepares the capture device. Called once per tracking session.
	Open() error

	// NextFace captures a frame and returns the dominant face in it.
	// found is false when the frame held no usable face; err reports a
	// capture failure the caller should back off from.
	NextFace() (face Face, found bool, err error)

	// Close releases the capture device.
	Close() error
}
