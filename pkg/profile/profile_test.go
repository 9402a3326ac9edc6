package profile

import "testing"

func TestCloneIsDeep(t *testing.T) {
	orig := MockUser()
	orig.InteractionHistory = append(orig.InteractionHistory, InteractionLog{SystemMessage: "hi"})

	c := orig.Clone()
	c.PreferredGestures[0] = "changed"
	c.InteractionHistory[0].SystemMessage = "changed"

	if orig.PreferredGestures[0] == "changed" {
		t.Error("Clone shares PreferredGestures")
	}
	if orig.InteractionHistory[0].SystemMessage == "changed" {
		t.Error("Clone shares InteractionHistory")
	}

	var nilProfile *UserProfile
	if nilProfile.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestClampSensitivity(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 5},
		{-3, MinSensitivity},
		{1, 1},
		{7, 7},
		{10, 10},
		{42, MaxSensitivity},
	}
	for _, tt := range tests {
		if got := ClampSensitivity(tt.in); got != tt.want {
			t.Errorf("ClampSensitivity(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	if ClampConfidence(-1) != 0 || ClampConfidence(101) != 100 || ClampConfidence(55) != 55 {
		t.Error("ClampConfidence out of bounds")
	}
}

func TestCatalog(t *testing.T) {
	modes := Modes()
	if len(modes) == 0 {
		t.Fatal("catalog is empty")
	}

	modes[0].Label = "mutated"
	if Modes()[0].Label == "mutated" {
		t.Error("Modes() must return a copy")
	}

	if _, ok := LookupMode(ModeWave); !ok {
		t.Error("wave should be in the catalog")
	}
	if _, ok := LookupMode("telepathy"); ok {
		t.Error("unknown mode should not be found")
	}
	if Rank("telepathy") != len(modes) {
		t.Error("unknown modes should rank last")
	}
	if Rank(ModeGesture) != 0 {
		t.Error("gesture should rank first")
	}
}
