// Package config holds the round configuration: pool sizes, pacing, economy,
// and the difficulty presets that bundle them. A YAML file may pick a preset
// and override individual fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults of the classic panel.
const (
	DefaultWorkers          = 3
	DefaultBenches          = 2
	DefaultSpawnIntervalMs  = 1200
	DefaultRoundDurationSec = 180
	DefaultModuleTimeoutSec = 30
	DefaultCurrencyReward   = 10
	DefaultAutoSuccess      = 0.6
	DefaultCommandQueue     = 64
	DefaultLogCapacity      = 256
	DefaultTickMs           = 1000
)

// Difficulty preset names.
const (
	DifficultyStandard = "standard"
	DifficultyEasy     = "easy"
	DifficultyMedium   = "medium"
	DifficultyHard     = "hard"
	DifficultyInsane   = "insane"
)

// Round is the plain configuration consumed by engine.InitRound.
type Round struct {
	Difficulty            string  `yaml:"difficulty"`
	WorkerCount           int     `yaml:"worker_count"`
	BenchCount            int     `yaml:"bench_count"`
	ModuleSpawnIntervalMs int     `yaml:"module_spawn_interval_ms"`
	RoundDurationSec      int     `yaml:"round_duration_sec"`
	ModuleTimeoutSec      int     `yaml:"module_timeout_sec"`
	StartingCurrency      int     `yaml:"starting_currency"`
	CurrencyPerModule     int     `yaml:"currency_per_module"`
	AutoSuccessChance     float64 `yaml:"auto_success_chance"`
	CommandQueueSize      int     `yaml:"command_queue_size"`
	LogCapacity           int     `yaml:"log_capacity"`

	// TickMs is the length of one simulated second for the countdowns and the
	// watcher. Only tests shorten it.
	TickMs int `yaml:"tick_ms"`
}

// Default returns the classic panel settings.
func Default() Round {
	return Round{
		Difficulty:            DifficultyStandard,
		WorkerCount:           DefaultWorkers,
		BenchCount:            DefaultBenches,
		ModuleSpawnIntervalMs: DefaultSpawnIntervalMs,
		RoundDurationSec:      DefaultRoundDurationSec,
		ModuleTimeoutSec:      DefaultModuleTimeoutSec,
		StartingCurrency:      0,
		CurrencyPerModule:     DefaultCurrencyReward,
		AutoSuccessChance:     DefaultAutoSuccess,
		CommandQueueSize:      DefaultCommandQueue,
		LogCapacity:           DefaultLogCapacity,
		TickMs:                DefaultTickMs,
	}
}

// EasyConfig gives one worker a single bench but slows the bombs down.
func EasyConfig() Round {
	c := Default()
	c.Difficulty = DifficultyEasy
	c.WorkerCount = 1
	c.BenchCount = 1
	c.ModuleTimeoutSec = DefaultModuleTimeoutSec * 3 / 2
	c.ModuleSpawnIntervalMs = DefaultSpawnIntervalMs * 2
	return c
}

// MediumConfig balances two workers against two benches.
func MediumConfig() Round {
	c := Default()
	c.Difficulty = DifficultyMedium
	c.WorkerCount = 2
	c.BenchCount = 2
	return c
}

// HardConfig adds a third worker and bench and tightens timing by 20%.
func HardConfig() Round {
	c := Default()
	c.Difficulty = DifficultyHard
	c.WorkerCount = 3
	c.BenchCount = 3
	c.ModuleTimeoutSec = DefaultModuleTimeoutSec * 8 / 10
	c.ModuleSpawnIntervalMs = DefaultSpawnIntervalMs * 8 / 10
	return c
}

// InsaneConfig starves three workers of benches and shortens the round.
func InsaneConfig() Round {
	c := Default()
	c.Difficulty = DifficultyInsane
	c.WorkerCount = 3
	c.BenchCount = 2
	c.ModuleTimeoutSec = DefaultModuleTimeoutSec * 6 / 10
	c.ModuleSpawnIntervalMs = DefaultSpawnIntervalMs * 6 / 10
	c.RoundDurationSec = DefaultRoundDurationSec * 3 / 4
	return c
}

var presets = map[string]func() Round{
	DifficultyStandard: Default,
	DifficultyEasy:     EasyConfig,
	DifficultyMedium:   MediumConfig,
	DifficultyHard:     HardConfig,
	DifficultyInsane:   InsaneConfig,
}

// Preset returns the named difficulty preset.
func Preset(name string) (Round, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Default(), nil
	}
	fn, ok := presets[key]
	if !ok {
		return Round{}, fmt.Errorf("config: unknown difficulty %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a YAML round file. The optional difficulty key selects the base
// preset and every other key present in the file overrides it.
func Load(path string) (Round, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Round{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (Round, error) {
	var head struct {
		Difficulty string `yaml:"difficulty"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Round{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg, err := Preset(head.Difficulty)
	if err != nil {
		return Round{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Round{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if head.Difficulty != "" {
		cfg.Difficulty = strings.ToLower(strings.TrimSpace(head.Difficulty))
	}
	if err := cfg.Validate(); err != nil {
		return Round{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the allocation core cannot run.
func (c Round) Validate() error {
	var errs []error
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount))
	}
	if c.BenchCount <= 0 {
		errs = append(errs, fmt.Errorf("bench_count must be positive, got %d", c.BenchCount))
	}
	if c.ModuleSpawnIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("module_spawn_interval_ms must be positive, got %d", c.ModuleSpawnIntervalMs))
	}
	if c.RoundDurationSec <= 0 {
		errs = append(errs, fmt.Errorf("round_duration_sec must be positive, got %d", c.RoundDurationSec))
	}
	if c.ModuleTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("module_timeout_sec must be positive, got %d", c.ModuleTimeoutSec))
	}
	if c.CurrencyPerModule < 0 {
		errs = append(errs, fmt.Errorf("currency_per_module must not be negative, got %d", c.CurrencyPerModule))
	}
	if c.AutoSuccessChance < 0 || c.AutoSuccessChance > 1 {
		errs = append(errs, fmt.Errorf("auto_success_chance must be within [0,1], got %v", c.AutoSuccessChance))
	}
	if c.CommandQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("command_queue_size must be positive, got %d", c.CommandQueueSize))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("log_capacity must be positive, got %d", c.LogCapacity))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid round: %w", errors.Join(errs...))
	}
	return nil
}

// Tick is the length of one simulated second.
func (c Round) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// SpawnInterval is the generator period.
func (c Round) SpawnInterval() time.Duration {
	return time.Duration(c.ModuleSpawnIntervalMs) * time.Millisecond
}

// RoundDuration is the round length in simulated seconds.
func (c Round) RoundDuration() time.Duration {
	return time.Duration(c.RoundDurationSec) * time.Second
}
