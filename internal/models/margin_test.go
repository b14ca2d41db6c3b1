package models

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseGrowthMode(t *testing.T) {
	tests := []struct {
		input   string
		want    GrowthMode
		wantErr bool
	}{
		{"Dilation", Dilation, false},
		{"dilation", Dilation, false},
		{" SCALING ", Scaling, false},
		{"erosion", Dilation, true},
		{"", Dilation, true},
	}

	for _, tc := range tests {
		got, err := ParseGrowthMode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseGrowthMode(%q): expected error, got nil", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGrowthMode(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseGrowthMode(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestGrowthModeYAML(t *testing.T) {
	var doc struct {
		Mode GrowthMode `yaml:"mode"`
	}
	if err := yaml.Unmarshal([]byte("mode: scaling\n"), &doc); err != nil {
		t.Fatalf("Failed to unmarshal growth mode: %v", err)
	}
	if doc.Mode != Scaling {
		t.Errorf("Expected Scaling, got %v", doc.Mode)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal growth mode: %v", err)
	}
	if string(out) != "mode: Scaling\n" {
		t.Errorf("Unexpected YAML output %q", string(out))
	}

	if err := yaml.Unmarshal([]byte("mode: shrink\n"), &doc); err == nil {
		t.Error("Expected error for unknown growth mode")
	}
}

func TestScaledIndices(t *testing.T) {
	tests := []struct {
		name      string
		max, step float64
		want      []int
	}{
		{"default systematic", 0.5, 0.5, []int{0}},
		{"two steps", 1.0, 0.5, []int{0, 5}},
		{"partial step", 1.2, 0.5, []int{0, 5, 10}},
		{"below one step", 0.05, 0.5, []int{0}},
		{"growth", 1.0, 0.2, []int{0, 2, 4, 6, 8}},
		{"float drift bound", 0.6, 0.2, []int{0, 2, 4}},
		{"zero step", 1.0, 0.01, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScaledIndices(tc.max, tc.step)
			if len(got) != len(tc.want) {
				t.Fatalf("ScaledIndices(%v, %v) = %v, want %v", tc.max, tc.step, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("index %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestGrowthAt(t *testing.T) {
	cfg := DefaultSweepConfiguration()

	for k := 0; k < 50; k += 2 {
		want := float64(k) / 10
		got := cfg.GrowthAt(k)
		for axis, g := range got {
			if g != want {
				t.Errorf("dilation k=%d axis %d: got %v, want %v", k, axis, g, want)
			}
		}
	}

	cfg.GrowthMode = Scaling
	cfg.ROIRadius = ROIRadius{X: 10, Y: 5, Z: 20}
	for k := 0; k < 50; k += 2 {
		got := cfg.GrowthAt(k)
		mm := float64(k) / 10
		want := [3]float64{(mm + 10) / 10, (mm + 5) / 5, (mm + 20) / 20}
		if got != want {
			t.Errorf("scaling k=%d: got %v, want %v", k, got, want)
		}
	}
}

func TestClampErrorSD(t *testing.T) {
	if got := ClampErrorSD(0); got != MinErrorSD {
		t.Errorf("ClampErrorSD(0) = %v, want %v", got, MinErrorSD)
	}
	if got := ClampErrorSD(0.00005); got != MinErrorSD {
		t.Errorf("ClampErrorSD(0.00005) = %v, want %v", got, MinErrorSD)
	}
	if got := ClampErrorSD(0.5); got != 0.5 {
		t.Errorf("ClampErrorSD(0.5) = %v, want 0.5", got)
	}
}

func TestPercentileString(t *testing.T) {
	if NotFound.String() != "N/A" {
		t.Errorf("NotFound should render as N/A, got %q", NotFound.String())
	}
	if got := At(1.2).String(); got != "1.2" {
		t.Errorf("At(1.2) rendered as %q", got)
	}
}
