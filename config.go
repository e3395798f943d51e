package coreengine

import (
	"os"
	"path/filepath"

	"github.com/oarkflow/convert"

	"github.com/oarkflow/coreengine/vector"
)

// Config enumerates every knob the Engine accepts; zero-valued fields are
// filled in by applyDefaults, the same way for every preset.
type Config struct {
	RootDir string
	DataDir string
	WALDir  string

	BufferPoolSize      int
	BlockCacheSizeBytes int64
	WALSyncMode         SyncMode
	WALRotateBytes      int64
	DirectIO            bool

	MemTableFlushBytes  int64
	L0CompactionTrigger int
	BaseLevelBytes      int64

	EnableVectorIndex bool
	VectorDimension   int
	VectorMetric      vector.Metric
	HNSWParams        vector.Params
}

const defaultMemTableFlushBytes = 4 << 20

func applyDefaults(cfg Config) Config {
	if cfg.RootDir == "" {
		cfg.RootDir = "./data/coreengine"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfg.RootDir
	}
	if cfg.WALDir == "" {
		cfg.WALDir = cfg.RootDir
	}
	if cfg.BufferPoolSize <= 0 {
		cfg.BufferPoolSize = 256
	}
	if cfg.MemTableFlushBytes <= 0 {
		cfg.MemTableFlushBytes = defaultMemTableFlushBytes
	}
	if cfg.L0CompactionTrigger <= 0 {
		cfg.L0CompactionTrigger = DefaultL0CompactionTrigger
	}
	if cfg.BaseLevelBytes <= 0 {
		cfg.BaseLevelBytes = DefaultBaseLevelBytes
	}
	if cfg.EnableVectorIndex && cfg.HNSWParams.Dimension == 0 {
		cfg.HNSWParams = vector.DefaultParams(cfg.VectorDimension, cfg.VectorMetric)
	}
	return cfg
}

// EmbeddedConfig is the single-process, single-directory preset: everything
// lives under dir and every write syncs before returning.
func EmbeddedConfig(dir string) Config {
	return Config{
		RootDir:     dir,
		WALSyncMode: SyncEveryWrite,
	}
}

// ProductionConfig splits data and WAL across independently configured
// volumes, syncing every write.
func ProductionConfig(dataDir, walDir string) Config {
	return Config{
		RootDir:     dataDir,
		DataDir:     dataDir,
		WALDir:      walDir,
		WALSyncMode: SyncEveryWrite,
		DirectIO:    true,
	}
}

// DevelopmentConfig favors throughput over durability: a single directory,
// no forced sync on every write.
func DevelopmentConfig(dir string) Config {
	return Config{
		RootDir:     dir,
		WALSyncMode: SyncNone,
	}
}

func ensureDirs(cfg Config) error {
	for _, d := range []string{cfg.RootDir, cfg.DataDir, cfg.WALDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnvOverrides lets deployment environments override a handful of
// numeric/boolean Config fields without a config file, coercing whatever
// string os.Getenv hands back the lenient way the rest of the stack does.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("CORE_ENGINE_BUFFER_POOL_SIZE"); v != "" {
		if n, ok := convert.ToFloat64(v); ok {
			cfg.BufferPoolSize = int(n)
		}
	}
	if v := os.Getenv("CORE_ENGINE_MEMTABLE_FLUSH_BYTES"); v != "" {
		if n, ok := convert.ToFloat64(v); ok {
			cfg.MemTableFlushBytes = int64(n)
		}
	}
	if v := os.Getenv("CORE_ENGINE_ENABLE_VECTOR_INDEX"); v != "" {
		if n, ok := convert.ToFloat64(v); ok {
			cfg.EnableVectorIndex = n != 0
		}
	}
	if v := os.Getenv("CORE_ENGINE_WAL_ROTATE_BYTES"); v != "" {
		if n, ok := convert.ToFloat64(v); ok {
			cfg.WALRotateBytes = int64(n)
		}
	}
	if v := os.Getenv("CORE_ENGINE_DIRECT_IO"); v != "" {
		if n, ok := convert.ToFloat64(v); ok {
			cfg.DirectIO = n != 0
		}
	}
	return cfg
}

func manifestPath(cfg Config) string  { return filepath.Join(cfg.DataDir, "MANIFEST") }
func walPath(cfg Config) string       { return filepath.Join(cfg.WALDir, "wal.log") }
func walArchiveDir(cfg Config) string { return filepath.Join(cfg.WALDir, "wal_archive") }
