package vision

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/carebotlabs/go-carebot/pkg/tracking"
)

// MinFaceSize is the smallest detection, in pixels per side, that counts as
// a face. Smaller hits are cascade noise.
const MinFaceSize = 10

// Detection parameters for the frontal-face cascade.
const (
	cascadeScaleFactor  = 1.3
	cascadeMinNeighbors = 5
)

// cascadeFile is the stock OpenCV frontal face model.
const cascadeFile = "haarcascade_frontalface_default.xml"

// Well-known locations for the OpenCV haarcascade data files, searched when
// no explicit path is configured.
var cascadeSearchPaths = []string{
	cascadeFile,
	filepath.Join("models", cascadeFile),
	filepath.Join("/usr/share/opencv4/haarcascades", cascadeFile),
	filepath.Join("/usr/local/share/opencv4/haarcascades", cascadeFile),
	filepath.Join("/opt/homebrew/share/opencv4/haarcascades", cascadeFile),
}

// FindCascade resolves the cascade model path. An explicit path wins; an
// empty one falls back to the well-known install locations.
func FindCascade(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("cascade file: %w", err)
		}
		return explicit, nil
	}
	for _, p := range cascadeSearchPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("cascade file %s not found in default locations", cascadeFile)
}

// HaarDetector finds faces with an OpenCV cascade classifier.
type HaarDetector struct {
	classifier gocv.CascadeClassifier
	mu         sync.Mutex // protects inference
}

// NewHaar loads the cascade model at path.
func NewHaar(path string) (*HaarDetector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cascade file: %w", err)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s failed", path)
	}
	return &HaarDetector{classifier: classifier}, nil
}

// DetectLargest runs the cascade on a grayscale frame and returns the
// largest face at or above MinFaceSize.
func (d *HaarDetector) DetectLargest(gray *gocv.Mat) (tracking.Face, bool) {
	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(
		*gray,
		cascadeScaleFactor,
		cascadeMinNeighbors,
		0,
		image.Pt(0, 0),
		image.Pt(0, 0),
	)
	d.mu.Unlock()
	return largest(rects)
}

// Close releases the classifier resources.
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// largest picks the biggest rectangle by area. Boxes under MinFaceSize
// per side are cascade noise and never qualify.
func largest(rects []image.Rectangle) (tracking.Face, bool) {
	best := -1
	bestArea := 0
	for i, r := range rects {
		if r.Dx() < MinFaceSize || r.Dy() < MinFaceSize {
			continue
		}
		if area := r.Dx() * r.Dy(); area > bestArea {
			best = i
			bestArea = area
		}
	}
	if best < 0 {
		return tracking.Face{}, false
	}
	r := rects[best]
	return tracking.Face{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}, true
}
