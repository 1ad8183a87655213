// Package config carries the tunable limits of a run. Defaults match the
// agent's shipped behavior; a repopilot.yaml next to the working directory
// and a few environment variables can override them.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Limits bounds a single agent run.
type Limits struct {
	// MaxModelAttempts caps model invocations per run (validation retry loop).
	MaxModelAttempts int `yaml:"max_model_attempts"`
	// FileReadRetries caps attempts per file before it is marked unreadable.
	FileReadRetries int `yaml:"file_read_retries"`
	// GlobalFailureBudget caps read failures across the whole run.
	GlobalFailureBudget int `yaml:"global_failure_budget"`
	// MaxFilesPerRun caps how many files the executor reads.
	MaxFilesPerRun int `yaml:"max_files_per_run"`
	// FullReadMaxLines bounds a full read before truncation.
	FullReadMaxLines int `yaml:"full_read_max_lines"`
	// EvidenceCharBudget caps the evidence blob embedded in the prompt.
	EvidenceCharBudget int `yaml:"evidence_char_budget"`
	// ChunkLineThreshold: a task-requested line above this switches that
	// file to centered chunk reads. Tuning heuristic, not an invariant.
	ChunkLineThreshold int `yaml:"chunk_line_threshold"`
	// ChunkPadding is added around a task-requested range in chunk mode.
	ChunkPadding int `yaml:"chunk_padding"`
	// ReadCacheSize bounds the LRU toolset cache.
	ReadCacheSize int `yaml:"read_cache_size"`
	// Model is the completion model id.
	Model string `yaml:"model"`
}

// Default returns the shipped limits.
func Default() Limits {
	return Limits{
		MaxModelAttempts:    2,
		FileReadRetries:     3,
		GlobalFailureBudget: 6,
		MaxFilesPerRun:      10,
		FullReadMaxLines:    5000,
		EvidenceCharBudget:  12_000,
		ChunkLineThreshold:  200,
		ChunkPadding:        5,
		ReadCacheSize:       128,
		Model:               "gemini-2.5-flash",
	}
}

// Load reads limits from path when it exists, then applies environment
// overrides. A missing file is not an error; defaults fill any zero field.
func Load(path string) (Limits, error) {
	lim := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &lim); err != nil {
				return lim, err
			}
		case !os.IsNotExist(err):
			return lim, err
		}
	}
	lim.applyEnv()
	lim.fillDefaults()
	return lim, nil
}

func (l *Limits) applyEnv() {
	if v := os.Getenv("REPOPILOT_MODEL"); v != "" {
		l.Model = v
	}
	envInt("REPOPILOT_MAX_ATTEMPTS", &l.MaxModelAttempts)
	envInt("REPOPILOT_FILE_RETRIES", &l.FileReadRetries)
	envInt("REPOPILOT_FAILURE_BUDGET", &l.GlobalFailureBudget)
	envInt("REPOPILOT_MAX_FILES", &l.MaxFilesPerRun)
}

func (l *Limits) fillDefaults() {
	def := Default()
	if l.MaxModelAttempts <= 0 {
		l.MaxModelAttempts = def.MaxModelAttempts
	}
	if l.FileReadRetries <= 0 {
		l.FileReadRetries = def.FileReadRetries
	}
	if l.GlobalFailureBudget <= 0 {
		l.GlobalFailureBudget = def.GlobalFailureBudget
	}
	if l.MaxFilesPerRun <= 0 {
		l.MaxFilesPerRun = def.MaxFilesPerRun
	}
	if l.FullReadMaxLines <= 0 {
		l.FullReadMaxLines = def.FullReadMaxLines
	}
	if l.EvidenceCharBudget <= 0 {
		l.EvidenceCharBudget = def.EvidenceCharBudget
	}
	if l.ChunkLineThreshold <= 0 {
		l.ChunkLineThreshold = def.ChunkLineThreshold
	}
	if l.ChunkPadding <= 0 {
		l.ChunkPadding = def.ChunkPadding
	}
	if l.ReadCacheSize <= 0 {
		l.ReadCacheSize = def.ReadCacheSize
	}
	if l.Model == "" {
		l.Model = def.Model
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}
