package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesOnlyNamedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pimbridge.json")
	body := `{"loadBalancer": {"kind": "Average", "idleThreshold": 7}, "sketchBucketNum": 128}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LoadBalancer.Kind != LbAverage {
		t.Fatalf("expected Average, got %s", cfg.LoadBalancer.Kind)
	}
	if cfg.LoadBalancer.IdleThreshold != 7 {
		t.Fatalf("expected idleThreshold 7, got %d", cfg.LoadBalancer.IdleThreshold)
	}
	if cfg.SketchBucketNum != 128 {
		t.Fatalf("expected sketchBucketNum 128, got %d", cfg.SketchBucketNum)
	}
	// untouched default survives
	if cfg.CleanStealInterval != Default().CleanStealInterval {
		t.Fatalf("expected untouched cleanStealInterval default, got %d", cfg.CleanStealInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pimbridge.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
