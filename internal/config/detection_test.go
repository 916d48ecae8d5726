package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDetectionConfigDefaults(t *testing.T) {
	cfg := NewDetectionConfig(0.01, CorrectionFDR)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if cfg.GetSignificanceLevel() != 0.01 {
		t.Errorf("GetSignificanceLevel() = %f, want 0.01", cfg.GetSignificanceLevel())
	}
	if cfg.GetCorrection() != CorrectionFDR {
		t.Errorf("GetCorrection() = %q, want %q", cfg.GetCorrection(), CorrectionFDR)
	}
	if cfg.GetMethod() != MethodOmnibus {
		t.Errorf("GetMethod() = %q, want %q", cfg.GetMethod(), MethodOmnibus)
	}
	if cfg.GetMinSplitLength() != 2 {
		t.Errorf("GetMinSplitLength() = %d, want 2", cfg.GetMinSplitLength())
	}
	if cfg.GetLooksOverride() != 0 {
		t.Errorf("GetLooksOverride() = %f, want 0", cfg.GetLooksOverride())
	}
	if cfg.GetRatioThreshold() != 1.5 {
		t.Errorf("GetRatioThreshold() = %f, want 1.5", cfg.GetRatioThreshold())
	}
	if cfg.GetDifferenceThresholdDB() != 3.0 {
		t.Errorf("GetDifferenceThresholdDB() = %f, want 3.0", cfg.GetDifferenceThresholdDB())
	}
	if cfg.GetDateMode() != DateModeFirst {
		t.Errorf("GetDateMode() = %q, want %q", cfg.GetDateMode(), DateModeFirst)
	}
	if cfg.GetWorkers() != runtime.NumCPU() {
		t.Errorf("GetWorkers() = %d, want %d", cfg.GetWorkers(), runtime.NumCPU())
	}
	if cfg.GetTileRows() != 64 {
		t.Errorf("GetTileRows() = %d, want 64", cfg.GetTileRows())
	}
}

func TestLoadDetectionConfigJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "detect.json")

	testJSON := `{
  "significance_level": 0.05,
  "correction": "bonferroni",
  "min_split_length": 3,
  "looks_override": 4.4,
  "date_mode": "most_significant",
  "workers": 2,
  "tile_rows": 16
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadDetectionConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetSignificanceLevel() != 0.05 {
		t.Errorf("Expected significance 0.05, got %v", cfg.GetSignificanceLevel())
	}
	if cfg.GetCorrection() != CorrectionBonferroni {
		t.Errorf("Expected correction bonferroni, got %q", cfg.GetCorrection())
	}
	if cfg.GetMinSplitLength() != 3 {
		t.Errorf("Expected min split 3, got %d", cfg.GetMinSplitLength())
	}
	if cfg.GetLooksOverride() != 4.4 {
		t.Errorf("Expected looks override 4.4, got %v", cfg.GetLooksOverride())
	}
	if cfg.GetDateMode() != DateModeMostSignificant {
		t.Errorf("Expected most_significant, got %q", cfg.GetDateMode())
	}
	if cfg.GetWorkers() != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.GetWorkers())
	}
	if cfg.GetTileRows() != 16 {
		t.Errorf("Expected 16 tile rows, got %d", cfg.GetTileRows())
	}
}

func TestLoadDetectionConfigYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "detect.yml")

	testYAML := "significance_level: 0.02\ncorrection: fdr\nmethod: difference\ndifference_threshold_db: 2.5\n"
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadDetectionConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetMethod() != MethodDifference {
		t.Errorf("Expected method difference, got %q", cfg.GetMethod())
	}
	if cfg.GetDifferenceThresholdDB() != 2.5 {
		t.Errorf("Expected threshold 2.5, got %v", cfg.GetDifferenceThresholdDB())
	}
}

func TestLoadDetectionConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.txt", `{}`, "extension"},
		{"invalid JSON", "bad.json", `{not json}`, "parse"},
		{"missing significance", "a.json", `{"correction": "fdr"}`, "SignificanceLevel"},
		{"missing correction", "b.json", `{"significance_level": 0.05}`, "Correction"},
		{"significance out of range", "c.json", `{"significance_level": 1.5, "correction": "fdr"}`, "SignificanceLevel"},
		{"unknown correction", "d.json", `{"significance_level": 0.05, "correction": "holm"}`, "Correction"},
		{"unknown method", "e.json", `{"significance_level": 0.05, "correction": "fdr", "method": "cusum"}`, "Method"},
		{"min split below 2", "f.json", `{"significance_level": 0.05, "correction": "fdr", "min_split_length": 1}`, "MinSplitLength"},
		{"ratio threshold without ratio", "g.json", `{"significance_level": 0.05, "correction": "fdr", "ratio_threshold": 2}`, "ratio_threshold"},
		{"ratio threshold at one", "h.json", `{"significance_level": 0.05, "correction": "fdr", "method": "ratio", "ratio_threshold": 1}`, "RatioThreshold"},
		{"min split with pairwise", "i.yaml", "significance_level: 0.05\ncorrection: fdr\nmethod: ratio\nmin_split_length: 3\n", "min_split_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			_, err := LoadDetectionConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDetectionConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, maxFileSize+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadDetectionConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetSignificanceLevel() != 0.01 {
		t.Errorf("example significance_level = %v, want 0.01", cfg.GetSignificanceLevel())
	}
	if cfg.GetCorrection() != CorrectionFDR {
		t.Errorf("example correction = %q, want fdr", cfg.GetCorrection())
	}
}

func TestExampleYAMLConfigLoads(t *testing.T) {
	cfg, err := LoadDetectionConfig("../../config/detection.example.yaml")
	if err != nil {
		t.Fatalf("Failed to load example YAML: %v", err)
	}
	if cfg.GetMethod() != MethodRatio || cfg.GetRatioThreshold() != 1.8 {
		t.Errorf("unexpected example YAML values: method=%q ratio=%v", cfg.GetMethod(), cfg.GetRatioThreshold())
	}
}
