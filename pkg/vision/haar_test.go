package vision

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/carebotlabs/go-carebot/pkg/tracking"
)

func TestNewHaarMissingFile(t *testing.T) {
	_, err := NewHaar("/nonexistent/haarcascade.xml")
	if err == nil {
		t.Error("expected error for missing cascade file")
	}
}

func TestFindCascadeExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.xml")
	if err := os.WriteFile(path, []byte("<x/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindCascade(path)
	if err != nil {
		t.Fatalf("FindCascade: %v", err)
	}
	if got != path {
		t.Errorf("FindCascade = %q, want %q", got, path)
	}

	if _, err := FindCascade(filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Error("expected error for an explicit path that does not exist")
	}
}

func TestLargestSelection(t *testing.T) {
	big := image.Rect(100, 80, 180, 160)  // 80x80
	small := image.Rect(300, 300, 330, 330)

	face, ok := largest([]image.Rectangle{small, big})
	if !ok {
		t.Fatal("expected a face")
	}
	want := tracking.Face{X: 100, Y: 80, W: 80, H: 80}
	if face != want {
		t.Errorf("largest = %+v, want %+v", face, want)
	}

	// Under the minimum size, even the biggest hit is rejected.
	tiny := image.Rect(0, 0, 8, 8)
	if _, ok := largest([]image.Rectangle{tiny}); ok {
		t.Error("sub-minimum face should be rejected")
	}

	if _, ok := largest(nil); ok {
		t.Error("no rectangles should yield no face")
	}
}

func TestHaarDetectorLoads(t *testing.T) {
	path, err := FindCascade("")
	if err != nil {
		t.Skip("haarcascade data not installed, skipping")
	}

	det, err := NewHaar(path)
	if err != nil {
		t.Fatalf("NewHaar: %v", err)
	}
	defer det.Close()
}
