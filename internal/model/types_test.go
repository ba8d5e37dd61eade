package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMetadata_MissingFileUsesDefaults(t *testing.T) {
	meta, err := LoadMetadata(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadMetadata returned error: %v", err)
	}
	if len(meta.Classes) != 5 {
		t.Errorf("Expected 5 default classes, got %d", len(meta.Classes))
	}
	if meta.GradientName("conv5_block3_out") != "conv5_block3_out_grad" {
		t.Errorf("Unexpected gradient name %q", meta.GradientName("conv5_block3_out"))
	}
}

func TestLoadMetadata_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	body := `{"output_name": "softmax", "gradient_suffix": "/grad"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write metadata: %v", err)
	}

	meta, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata returned error: %v", err)
	}
	if meta.OutputName != "softmax" {
		t.Errorf("Expected output name softmax, got %q", meta.OutputName)
	}
	if meta.InputName != "input" {
		t.Errorf("Expected default input name to survive, got %q", meta.InputName)
	}
	if meta.GradientName("block") != "block/grad" {
		t.Errorf("Expected block/grad, got %q", meta.GradientName("block"))
	}
}

func TestLoadMetadata_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := LoadMetadata(bad); err == nil {
		t.Error("Expected parse error")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"classes": []}`), 0o644)
	if _, err := LoadMetadata(empty); err == nil {
		t.Error("Expected error for empty class list")
	}
}
