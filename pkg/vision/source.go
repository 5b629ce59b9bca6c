package vision

import (
	"github.com/carebotlabs/go-carebot/pkg/tracking"
)

// FaceSource couples a camera and a Haar detector into the face feed the
// tracker consumes. The detector is loaded once and survives across
// tracking sessions; the camera is claimed per session via Open/Close.
type FaceSource struct {
	cam *Camera
	det *HaarDetector
}

var _ tracking.Source = (*FaceSource)(nil)

// NewFaceSource loads the cascade model and prepares a source for the
// given camera index. An empty cascadePath searches the stock OpenCV
// install locations.
func NewFaceSource(cameraIndex int, cascadePath string) (*FaceSource, error) {
	path, err := FindCascade(cascadePath)
	if err != nil {
		return nil, err
	}
	det, err := NewHaar(path)
	if err != nil {
		return nil, err
	}
	return &FaceSource{cam: NewCamera(cameraIndex), det: det}, nil
}

// Open claims the camera for a tracking session.
func (s *FaceSource) Open() error {
	return s.cam.Open()
}

// NextFace captures one frame and returns the dominant face in it.
func (s *FaceSource) NextFace() (tracking.Face, bool, error) {
	gray, err := s.cam.Grab()
	if err != nil {
		return tracking.Face{}, false, err
	}
	face, found := s.det.DetectLargest(gray)
	return face, found, nil
}

// Close releases the camera at the end of a tracking session. The detector
// stays loaded for the next session.
func (s *FaceSource) Close() error {
	return s.cam.Close()
}

// Release frees the detector. Called once at shutdown, after the last
// session is closed.
func (s *FaceSource) Release() error {
	return s.det.Close()
}
