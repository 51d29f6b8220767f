package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackupUserConfig(t *testing.T) {
	// Create temp directory for test
	tmpDir := t.TempDir()

	// Override config path for testing
	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", tmpDir)
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	configDir := filepath.Join(tmpDir, "clawmongo")
	configPath := filepath.Join(configDir, "config.yaml")

	t.Run("no config exists", func(t *testing.T) {
		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath != "" {
			t.Errorf("expected empty backup path for non-existent config, got %s", backupPath)
		}
	})

	t.Run("backup existing config", func(t *testing.T) {
		// Create config directory and file
		if err := os.MkdirAll(configDir, 0755); err != nil {
			t.Fatalf("failed to create config dir: %v", err)
		}
		testContent := "version: 1\nembeddings:\n  provider: ollama\n"
		if err := os.WriteFile(configPath, []byte(testContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath == "" {
			t.Fatal("expected non-empty backup path")
		}

		// Verify backup exists and has correct content
		backupContent, err := os.ReadFile(backupPath)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if string(backupContent) != testContent {
			t.Errorf("backup content mismatch:\ngot: %s\nwant: %s", backupContent, testContent)
		}

		// Verify backup filename format
		if !filepath.IsAbs(backupPath) {
			t.Errorf("backup path should be absolute: %s", backupPath)
		}
	})
}

func TestListUserConfigBackups(t *testing.T) {
	tmpDir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", tmpDir)
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	configDir := filepath.Join(tmpDir, "clawmongo")
	configPath := filepath.Join(configDir, "config.yaml")

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	t.Run("no backups exist", func(t *testing.T) {
		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 0 {
			t.Errorf("expected 0 backups, got %d", len(backups))
		}
	})

	t.Run("list multiple backups", func(t *testing.T) {
		// Create some backup files with different timestamps
		timestamps := []string{"20260101-100000", "20260101-110000", "20260101-120000"}
		for _, ts := range timestamps {
			backupName := filepath.Join(configDir, "config.yaml.bak."+ts)
			if err := os.WriteFile(backupName, []byte("test"), 0644); err != nil {
				t.Fatalf("failed to create backup: %v", err)
			}
			// Small delay to ensure different mod times
			time.Sleep(10 * time.Millisecond)
		}

		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 3 {
			t.Errorf("expected 3 backups, got %d", len(backups))
		}

		// Verify sorted by mod time (newest first)
		for i := 1; i < len(backups); i++ {
			info1, _ := os.Stat(backups[i-1])
			info2, _ := os.Stat(backups[i])
			if info1.ModTime().Before(info2.ModTime()) {
				t.Errorf("backups not sorted correctly: %s before %s", backups[i-1], backups[i])
			}
		}
	})

	t.Run("cleanup old backups", func(t *testing.T) {
		// Create config file
		if err := os.WriteFile(configPath, []byte("test config"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		// Create 4 more backups (should trigger cleanup)
		for i := 0; i < 4; i++ {
			_, err := BackupUserConfig()
			if err != nil {
				t.Fatalf("failed to create backup: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}

		// Should have at most MaxBackups
		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) > MaxBackups {
			t.Errorf("expected at most %d backups, got %d", MaxBackups, len(backups))
		}
	})
}

func TestMergeNewDefaults(t *testing.T) {
	t.Run("adds missing search config fields", func(t *testing.T) {
		// Simulates upgrading a config written before the search fields existed
		defaults := NewConfig()
		cfg := &Config{
			Version: 1,
			Search:  SearchConfig{
				// FusionMethod, NumCandidates, Citations are zero (not set)
			},
		}

		added := cfg.MergeNewDefaults()

		// Should add search config fields with defaults
		if cfg.Search.FusionMethod != defaults.Search.FusionMethod {
			t.Errorf("FusionMethod should be %q, got %q", defaults.Search.FusionMethod, cfg.Search.FusionMethod)
		}
		if cfg.Search.NumCandidates != defaults.Search.NumCandidates {
			t.Errorf("NumCandidates should be %d, got %d", defaults.Search.NumCandidates, cfg.Search.NumCandidates)
		}
		if cfg.Search.Citations != defaults.Search.Citations {
			t.Errorf("Citations should be %q, got %q", defaults.Search.Citations, cfg.Search.Citations)
		}

		// Should report the fields
		hasFusion := false
		hasCandidates := false
		hasCitations := false
		for _, field := range added {
			if field == "search.fusion_method" {
				hasFusion = true
			}
			if field == "search.num_candidates" {
				hasCandidates = true
			}
			if field == "search.citations" {
				hasCitations = true
			}
		}
		if !hasFusion {
			t.Error("should report fusion_method as added")
		}
		if !hasCandidates {
			t.Error("should report num_candidates as added")
		}
		if !hasCitations {
			t.Error("should report citations as added")
		}
	})

	t.Run("adds missing embeddings fields", func(t *testing.T) {
		cfg := &Config{
			Version: 1,
			Embeddings: EmbeddingsConfig{
				Provider: "managed",
				Model:    "test-model",
				// Dimensions and BatchSize are 0
			},
		}

		added := cfg.MergeNewDefaults()

		// Should add embeddings fields
		if cfg.Embeddings.Dimensions == 0 {
			t.Error("Dimensions should be set to default")
		}
		if cfg.Embeddings.BatchSize == 0 {
			t.Error("BatchSize should be set to default")
		}

		// Should report the fields
		hasDimensions := false
		hasBatch := false
		for _, field := range added {
			if field == "embeddings.dimensions" {
				hasDimensions = true
			}
			if field == "embeddings.batch_size" {
				hasBatch = true
			}
		}
		if !hasDimensions {
			t.Error("should report dimensions as added")
		}
		if !hasBatch {
			t.Error("should report batch_size as added")
		}
	})

	t.Run("preserves existing values", func(t *testing.T) {
		cfg := &Config{
			Version: 1,
			Search: SearchConfig{
				FusionMethod:  "rankFusion", // Custom value
				NumCandidates: 500,          // Custom value
				Citations:     "off",        // Custom value
			},
			Embeddings: EmbeddingsConfig{
				Provider:   "managed",
				Model:      "custom-model",
				Dimensions: 768, // Custom value
				BatchSize:  16,  // Custom value
			},
			Memory: MemoryConfig{
				MaxSessionChunks: 80, // Custom value
			},
		}

		added := cfg.MergeNewDefaults()

		// Should NOT change existing search values
		if cfg.Search.FusionMethod != "rankFusion" {
			t.Errorf("FusionMethod changed from rankFusion to %q", cfg.Search.FusionMethod)
		}
		if cfg.Search.NumCandidates != 500 {
			t.Errorf("NumCandidates changed from 500 to %d", cfg.Search.NumCandidates)
		}
		if cfg.Search.Citations != "off" {
			t.Errorf("Citations changed from off to %q", cfg.Search.Citations)
		}
		// Should NOT change existing embeddings values
		if cfg.Embeddings.Dimensions != 768 {
			t.Errorf("Dimensions changed from 768 to %d", cfg.Embeddings.Dimensions)
		}
		if cfg.Embeddings.BatchSize != 16 {
			t.Errorf("BatchSize changed from 16 to %d", cfg.Embeddings.BatchSize)
		}
		if cfg.Memory.MaxSessionChunks != 80 {
			t.Errorf("MaxSessionChunks changed from 80 to %d", cfg.Memory.MaxSessionChunks)
		}

		// Should NOT report them as added
		for _, field := range added {
			if field == "search.fusion_method" ||
				field == "search.num_candidates" ||
				field == "search.citations" ||
				field == "embeddings.dimensions" ||
				field == "embeddings.batch_size" ||
				field == "memory.max_session_chunks" {
				t.Errorf("should not report %s as added (was already set)", field)
			}
		}
	})

	t.Run("returns empty for complete config", func(t *testing.T) {
		// Create a complete config
		cfg := NewConfig()

		added := cfg.MergeNewDefaults()

		if len(added) != 0 {
			t.Errorf("expected 0 added fields for complete config, got %v", added)
		}
	})
}

func TestWriteYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider: "ollama",
			Model:    "test-model",
		},
	}

	if err := cfg.WriteYAML(configPath); err != nil {
		t.Fatalf("failed to write YAML: %v", err)
	}

	// Verify file exists and is readable
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if len(data) == 0 {
		t.Error("written file is empty")
	}

	// Verify it contains expected content
	content := string(data)
	if !contains(content, "provider: ollama") {
		t.Error("written file should contain provider: ollama")
	}
	if !contains(content, "model: test-model") {
		t.Error("written file should contain model: test-model")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
