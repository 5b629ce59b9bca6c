package gesture

import (
	"testing"
	"time"
)

func TestMirrorIsInvolution(t *testing.T) {
	poses := []Pose{
		{0, 48, 45, -20, 0, 180},
		{90, 120, 20, 20, 70, 20},
		{90, 150, 20, 20, 90, 30},
		{13, 0, 180, 7, 42, 99},
	}
	for _, p := range poses {
		if got := Mirror(Mirror(p)); got != p {
			t.Errorf("Mirror(Mirror(%v)) = %v", p, got)
		}
	}
}

func TestMirrorFlipsPanAndWristOnly(t *testing.T) {
	p := Pose{10, 20, 30, 40, 50, 60}
	m := Mirror(p)
	want := Pose{170, 20, 30, 40, 130, 60}
	if m != want {
		t.Errorf("Mirror(%v) = %v, want %v", p, m, want)
	}
}

func TestNeutralPoseIsMirrorInvariant(t *testing.T) {
	if got := Mirror(NeutralPose); got != NeutralPose {
		t.Errorf("Mirror(neutral) = %v", got)
	}
}

func TestLibrarySpecs(t *testing.T) {
	heart := Heart()
	if heart.Name != "heart" || !heart.Mirrorable {
		t.Errorf("heart spec: %+v", heart)
	}
	if len(heart.Steps) != 1 || heart.Steps[0].Move != 2*time.Second {
		t.Errorf("heart steps: %+v", heart.Steps)
	}

	hug := Hug()
	if len(hug.Steps) != 2 {
		t.Fatalf("hug steps: %+v", hug.Steps)
	}
	if hug.Steps[0].Pose != (Pose{90, 120, 20, 20, 70, 20}) {
		t.Errorf("hug open pose: %v", hug.Steps[0].Pose)
	}
	if hug.Steps[1].Pose != (Pose{90, 160, 35, 35, 100, 40}) {
		t.Errorf("hug embrace pose: %v", hug.Steps[1].Pose)
	}
	if hug.SettleHold != 800*time.Millisecond {
		t.Errorf("hug settle: %v", hug.SettleHold)
	}

	ini := Init()
	if ini.Mirrorable {
		t.Error("init must not mirror")
	}
	if ini.Steps[0].Pose != (Pose{90, 90, 90, 90, 90, 90}) {
		t.Errorf("init pose: %v", ini.Steps[0].Pose)
	}
}
