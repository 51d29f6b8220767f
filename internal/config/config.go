package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/manager"
	"github.com/romiluz13/clawmongo/internal/search"
)

// Config is clawmongo's on-disk configuration (spec §6's config surface).
// It mirrors manager.Config but uses YAML-friendly field names and durations,
// and is converted with ToManagerConfig before being handed to manager.Create.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Mongo      MongoConfig      `yaml:"mongo" json:"mongo"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	KB         KBConfig         `yaml:"kb" json:"kb"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// MongoConfig configures the backend connection (spec §4.1-§4.2).
type MongoConfig struct {
	// Backend selects the storage backend. Only "mongodb" is implemented;
	// "builtin" disables persistent memory entirely (spec §4.10 Create()).
	Backend string `yaml:"backend" json:"backend"`
	URI     string `yaml:"uri" json:"uri"`
	// Database and CollectionPrefix default to "openclaw"/"openclaw_".
	Database         string `yaml:"database" json:"database"`
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix"`
	// DeploymentProfile is one of atlas-default, atlas-m0,
	// community-mongot, community-bare (spec §4.1 capability probe).
	DeploymentProfile string `yaml:"deployment_profile" json:"deployment_profile"`

	EnableChangeStreams    bool `yaml:"enable_change_streams" json:"enable_change_streams"`
	ChangeStreamDebounceMs int  `yaml:"change_stream_debounce_ms" json:"change_stream_debounce_ms"`
	WatchDebounceMs        int  `yaml:"watch_debounce_ms" json:"watch_debounce_ms"`
}

// EmbeddingsConfig configures the embedding provider (spec §4.4).
type EmbeddingsConfig struct {
	// Mode is "managed" (external HTTP provider) or "automated" (server-side
	// Atlas auto-embedding), spec §6 embeddingMode.
	Mode       string `yaml:"mode" json:"mode"`
	Provider   string `yaml:"provider" json:"provider"` // managed | static
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheTTLDays int  `yaml:"cache_ttl_days" json:"cache_ttl_days"`
}

// SearchConfig configures hybrid search (spec §4.7).
type SearchConfig struct {
	// FusionMethod is one of scoreFusion, rankFusion, js-merge (spec §6).
	FusionMethod  string `yaml:"fusion_method" json:"fusion_method"`
	NumCandidates int    `yaml:"num_candidates" json:"num_candidates"`
	// Citations is one of auto, on, off (spec §6).
	Citations string `yaml:"citations" json:"citations"`
}

// MemoryConfig configures workspace/session memory retention (spec §4.1-§4.3).
type MemoryConfig struct {
	TTLDays          int      `yaml:"ttl_days" json:"ttl_days"`
	MaxSessionChunks int      `yaml:"max_session_chunks" json:"max_session_chunks"`
	WorkspaceRoot    string   `yaml:"workspace_root" json:"workspace_root"`
	SessionDir       string   `yaml:"session_dir" json:"session_dir"`
	ExtraPaths       []string `yaml:"extra_paths" json:"extra_paths"`
}

// KBConfig configures the knowledge-base pipeline (spec §4.8).
type KBConfig struct {
	ChunkTokens      int      `yaml:"chunk_tokens" json:"chunk_tokens"`
	ChunkOverlap     int      `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxDocumentSize  int      `yaml:"max_document_size" json:"max_document_size"`
	AutoImportPaths  []string `yaml:"auto_import_paths" json:"auto_import_paths"`
	AutoRefreshHours int      `yaml:"auto_refresh_hours" json:"auto_refresh_hours"`
}

// ServerConfig configures the MCP server (spec §4.10, §6).
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with clawmongo's sensible defaults, mirroring
// manager.Config.withDefaults().
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Mongo: MongoConfig{
			Backend:                "mongodb",
			Database:               "openclaw",
			CollectionPrefix:       "openclaw_",
			WatchDebounceMs:        500,
			ChangeStreamDebounceMs: 1000,
			EnableChangeStreams:    true,
		},
		Embeddings: EmbeddingsConfig{
			Mode:         "managed",
			Provider:     "", // empty triggers embed.ParseProvider's fallback to static
			Dimensions:   embed.DefaultDimensions,
			BatchSize:    embed.DefaultBatchSize,
			CacheTTLDays: 30,
		},
		Search: SearchConfig{
			FusionMethod:  string(search.FusionScoreFusion),
			NumCandidates: search.DefaultNumCandidates,
			Citations:     string(manager.CitationsAuto),
		},
		Memory: MemoryConfig{
			MaxSessionChunks: 50,
		},
		KB: KBConfig{
			AutoRefreshHours: 24,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// ToManagerConfig converts c to the shape manager.Create expects.
func (c *Config) ToManagerConfig() manager.Config {
	return manager.Config{
		Backend:                c.Mongo.Backend,
		URI:                    c.Mongo.URI,
		Database:               c.Mongo.Database,
		CollectionPrefix:       c.Mongo.CollectionPrefix,
		DeploymentProfile:      c.Mongo.DeploymentProfile,
		EmbeddingMode:          c.Embeddings.Mode,
		FusionMethod:           search.FusionMethod(c.Search.FusionMethod),
		NumDimensions:          c.Embeddings.Dimensions,
		WatchDebounceMs:        c.Mongo.WatchDebounceMs,
		ChangeStreamDebounceMs: c.Mongo.ChangeStreamDebounceMs,
		EnableChangeStreams:    c.Mongo.EnableChangeStreams,
		NumCandidates:          c.Search.NumCandidates,
		MemoryTTLDays:          c.Memory.TTLDays,
		EmbeddingCacheTTLDays:  c.Embeddings.CacheTTLDays,
		MaxSessionChunks:       c.Memory.MaxSessionChunks,
		KBChunkTokens:          c.KB.ChunkTokens,
		KBChunkOverlap:         c.KB.ChunkOverlap,
		KBMaxDocumentSize:      c.KB.MaxDocumentSize,
		KBAutoImportPaths:      c.KB.AutoImportPaths,
		KBAutoRefreshHours:     c.KB.AutoRefreshHours,
		Citations:              manager.Citations(c.Search.Citations),
		WorkspaceRoot:          c.Memory.WorkspaceRoot,
		SessionDir:             c.Memory.SessionDir,
		ExtraMemoryPaths:       c.Memory.ExtraPaths,
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory spec:
//   - $XDG_CONFIG_HOME/clawmongo/config.yaml (if set)
//   - ~/.config/clawmongo/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clawmongo", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "clawmongo", "config.yaml")
	}
	return filepath.Join(home, ".config", "clawmongo", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file, or (nil, nil) if absent.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration from dir, applying overrides in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/clawmongo/config.yaml)
//  3. Project config (.clawmongo.yaml in dir)
//  4. Environment variables (CLAWMONGO_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".clawmongo.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".clawmongo.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Mongo.Backend != "" {
		c.Mongo.Backend = other.Mongo.Backend
	}
	if other.Mongo.URI != "" {
		c.Mongo.URI = other.Mongo.URI
	}
	if other.Mongo.Database != "" {
		c.Mongo.Database = other.Mongo.Database
	}
	if other.Mongo.CollectionPrefix != "" {
		c.Mongo.CollectionPrefix = other.Mongo.CollectionPrefix
	}
	if other.Mongo.DeploymentProfile != "" {
		c.Mongo.DeploymentProfile = other.Mongo.DeploymentProfile
	}
	if other.Mongo.WatchDebounceMs != 0 {
		c.Mongo.WatchDebounceMs = other.Mongo.WatchDebounceMs
	}
	if other.Mongo.ChangeStreamDebounceMs != 0 {
		c.Mongo.ChangeStreamDebounceMs = other.Mongo.ChangeStreamDebounceMs
	}

	if other.Embeddings.Mode != "" {
		c.Embeddings.Mode = other.Embeddings.Mode
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheTTLDays != 0 {
		c.Embeddings.CacheTTLDays = other.Embeddings.CacheTTLDays
	}

	if other.Search.FusionMethod != "" {
		c.Search.FusionMethod = other.Search.FusionMethod
	}
	if other.Search.NumCandidates != 0 {
		c.Search.NumCandidates = other.Search.NumCandidates
	}
	if other.Search.Citations != "" {
		c.Search.Citations = other.Search.Citations
	}

	if other.Memory.TTLDays != 0 {
		c.Memory.TTLDays = other.Memory.TTLDays
	}
	if other.Memory.MaxSessionChunks != 0 {
		c.Memory.MaxSessionChunks = other.Memory.MaxSessionChunks
	}
	if other.Memory.WorkspaceRoot != "" {
		c.Memory.WorkspaceRoot = other.Memory.WorkspaceRoot
	}
	if other.Memory.SessionDir != "" {
		c.Memory.SessionDir = other.Memory.SessionDir
	}
	if len(other.Memory.ExtraPaths) > 0 {
		c.Memory.ExtraPaths = other.Memory.ExtraPaths
	}

	if other.KB.ChunkTokens != 0 {
		c.KB.ChunkTokens = other.KB.ChunkTokens
	}
	if other.KB.ChunkOverlap != 0 {
		c.KB.ChunkOverlap = other.KB.ChunkOverlap
	}
	if other.KB.MaxDocumentSize != 0 {
		c.KB.MaxDocumentSize = other.KB.MaxDocumentSize
	}
	if len(other.KB.AutoImportPaths) > 0 {
		c.KB.AutoImportPaths = other.KB.AutoImportPaths
	}
	if other.KB.AutoRefreshHours != 0 {
		c.KB.AutoRefreshHours = other.KB.AutoRefreshHours
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CLAWMONGO_* environment variable overrides,
// highest precedence (spec §6's config surface).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLAWMONGO_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("CLAWMONGO_BACKEND"); v != "" {
		c.Mongo.Backend = v
	}
	if v := os.Getenv("CLAWMONGO_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("CLAWMONGO_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CLAWMONGO_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CLAWMONGO_EMBED_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("CLAWMONGO_FUSION_METHOD"); v != "" {
		c.Search.FusionMethod = v
	}
	if v := os.Getenv("CLAWMONGO_NUM_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.NumCandidates = n
		}
	}
	if v := os.Getenv("CLAWMONGO_CITATIONS"); v != "" {
		c.Search.Citations = v
	}
	if v := os.Getenv("CLAWMONGO_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CLAWMONGO_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Mongo.Backend != "" && c.Mongo.Backend != "mongodb" && c.Mongo.Backend != "builtin" {
		return fmt.Errorf("mongo.backend must be 'mongodb' or 'builtin', got %s", c.Mongo.Backend)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{
			string(embed.ProviderManaged): true,
			string(embed.ProviderStatic):  true,
		}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'managed', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validFusion := map[string]bool{
		string(search.FusionScoreFusion): true,
		string(search.FusionRankFusion):  true,
		string(search.FusionJSMerge):     true,
	}
	if c.Search.FusionMethod != "" && !validFusion[c.Search.FusionMethod] {
		return fmt.Errorf("search.fusion_method must be 'scoreFusion', 'rankFusion', or 'js-merge', got %s", c.Search.FusionMethod)
	}

	if c.Search.NumCandidates < 0 || c.Search.NumCandidates > 10000 {
		return fmt.Errorf("search.num_candidates must be between 0 and 10000, got %d", c.Search.NumCandidates)
	}

	validCitations := map[string]bool{"auto": true, "on": true, "off": true, "": true}
	if !validCitations[strings.ToLower(c.Search.Citations)] {
		return fmt.Errorf("search.citations must be 'auto', 'on', or 'off', got %s", c.Search.Citations)
	}

	validTransports := map[string]bool{"stdio": true}
	if c.Server.Transport != "" && !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// MergeNewDefaults fills any zero-valued field in c with the current
// hardcoded default, returning the dotted names of fields that were filled.
// Used by `clawmongo config init --force` to upgrade an existing user config
// with options added since it was written, without disturbing fields the
// user already set.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Mongo.Backend == "" {
		c.Mongo.Backend = defaults.Mongo.Backend
		added = append(added, "mongo.backend")
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = defaults.Mongo.Database
		added = append(added, "mongo.database")
	}
	if c.Mongo.CollectionPrefix == "" {
		c.Mongo.CollectionPrefix = defaults.Mongo.CollectionPrefix
		added = append(added, "mongo.collection_prefix")
	}
	if c.Mongo.WatchDebounceMs == 0 {
		c.Mongo.WatchDebounceMs = defaults.Mongo.WatchDebounceMs
		added = append(added, "mongo.watch_debounce_ms")
	}
	if c.Mongo.ChangeStreamDebounceMs == 0 {
		c.Mongo.ChangeStreamDebounceMs = defaults.Mongo.ChangeStreamDebounceMs
		added = append(added, "mongo.change_stream_debounce_ms")
	}

	if c.Embeddings.Mode == "" {
		c.Embeddings.Mode = defaults.Embeddings.Mode
		added = append(added, "embeddings.mode")
	}
	if c.Embeddings.Dimensions == 0 {
		c.Embeddings.Dimensions = defaults.Embeddings.Dimensions
		added = append(added, "embeddings.dimensions")
	}
	if c.Embeddings.BatchSize == 0 {
		c.Embeddings.BatchSize = defaults.Embeddings.BatchSize
		added = append(added, "embeddings.batch_size")
	}
	if c.Embeddings.CacheTTLDays == 0 {
		c.Embeddings.CacheTTLDays = defaults.Embeddings.CacheTTLDays
		added = append(added, "embeddings.cache_ttl_days")
	}

	if c.Search.FusionMethod == "" {
		c.Search.FusionMethod = defaults.Search.FusionMethod
		added = append(added, "search.fusion_method")
	}
	if c.Search.NumCandidates == 0 {
		c.Search.NumCandidates = defaults.Search.NumCandidates
		added = append(added, "search.num_candidates")
	}
	if c.Search.Citations == "" {
		c.Search.Citations = defaults.Search.Citations
		added = append(added, "search.citations")
	}

	if c.Memory.MaxSessionChunks == 0 {
		c.Memory.MaxSessionChunks = defaults.Memory.MaxSessionChunks
		added = append(added, "memory.max_session_chunks")
	}

	if c.KB.AutoRefreshHours == 0 {
		c.KB.AutoRefreshHours = defaults.KB.AutoRefreshHours
		added = append(added, "kb.auto_refresh_hours")
	}

	if c.Server.Transport == "" {
		c.Server.Transport = defaults.Server.Transport
		added = append(added, "server.transport")
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
		added = append(added, "server.log_level")
	}

	return added
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot finds the project root by walking up from startDir looking
// for a .git directory or a .clawmongo.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".clawmongo.yaml")) ||
			fileExists(filepath.Join(currentDir, ".clawmongo.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
