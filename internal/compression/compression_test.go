package compression

import (
	"strings"
	"testing"

	"github.com/uuxo/zlib-accel/internal/cpufeatures"
)

func TestAutoSelect(t *testing.T) {
	p := AutoSelect()
	if p == nil {
		t.Fatal("AutoSelect() returned nil")
	}
	t.Logf("Profile: %s", p)
	if p.Level < 1 || p.Level > 9 {
		t.Errorf("unexpected level: %d", p.Level)
	}
}

func TestSelectForFeatures(t *testing.T) {
	tests := []struct {
		name      string
		features  cpufeatures.Features
		wantLevel int
		wantTier  string
	}{
		{
			name:      "optimal hardware",
			features:  cpufeatures.Features{HasBMI2: true, HasAVX2: true, HasSSE42: true, HasSSE2: true},
			wantLevel: 9,
			wantTier:  "optimal",
		},
		{
			name:      "good hardware",
			features:  cpufeatures.Features{HasBMI2: true, HasSSE42: true, HasSSE2: true},
			wantLevel: 6,
			wantTier:  "good",
		},
		{
			name:      "baseline hardware",
			features:  cpufeatures.Features{HasSSE2: true},
			wantLevel: 6,
			wantTier:  "baseline",
		},
		{
			name:      "minimal hardware",
			features:  cpufeatures.Features{},
			wantLevel: 4,
			wantTier:  "minimal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SelectForFeatures(&tt.features)
			if p.Level != tt.wantLevel {
				t.Errorf("Level = %d, want %d", p.Level, tt.wantLevel)
			}
			if p.Tier != tt.wantTier {
				t.Errorf("Tier = %s, want %s", p.Tier, tt.wantTier)
			}
			if p.Reason == "" {
				t.Error("Reason should not be empty")
			}
		})
	}
}

func TestProfileString(t *testing.T) {
	p := &Profile{
		Level:  3,
		Tier:   "optimal",
		Reason: "test reason",
	}
	s := p.String()
	if !strings.Contains(s, "3") || !strings.Contains(s, "optimal") {
		t.Errorf("String() should contain level and tier: %s", s)
	}
}
