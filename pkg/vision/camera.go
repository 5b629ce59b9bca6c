// Package vision provides frame capture and Haar-cascade face detection
// feeding the tracking loop.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/carebotlabs/go-carebot/pkg/tracking"
)

// ErrFrameRead reports a capture that produced no usable frame.
var ErrFrameRead = errors.New("vision: frame read failed")

// Camera wraps a V4L capture device. Frames are scaled to the tracking
// working resolution and converted to grayscale in place, reusing the same
// buffers across reads.
type Camera struct {
	index int

	cap   *gocv.VideoCapture
	frame gocv.Mat
	small gocv.Mat
	gray  gocv.Mat
}

// NewCamera creates a camera for the given device index. The device is not
// touched until Open.
func NewCamera(index int) *Camera {
	return &Camera{index: index}
}

// Open claims the capture device and allocates the frame buffers.
func (c *Camera) Open() error {
	cap, err := gocv.OpenVideoCapture(c.index)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("open camera %d: device not opened", c.index)
	}
	c.cap = cap
	c.frame = gocv.NewMat()
	c.small = gocv.NewMat()
	c.gray = gocv.NewMat()
	return nil
}

// Grab captures one frame and returns it as a grayscale mat at the working
// resolution. The returned mat is owned by the camera and valid until the
// next Grab or Close.
func (c *Camera) Grab() (*gocv.Mat, error) {
	if c.cap == nil {
		return nil, ErrFrameRead
	}
	if ok := c.cap.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, ErrFrameRead
	}
	gocv.Resize(c.frame, &c.small, image.Pt(tracking.FrameWidth, tracking.FrameHeight), 0, 0, gocv.InterpolationLinear)
	gocv.CvtColor(c.small, &c.gray, gocv.ColorBGRToGray)
	return &c.gray, nil
}

// Close releases the capture device and the frame buffers. The camera may
// be opened again afterwards.
func (c *Camera) Close() error {
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.frame.Close()
	c.small.Close()
	c.gray.Close()
	c.cap = nil
	return err
}
