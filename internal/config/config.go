/*
 * plcsim - JSON configuration and device profile loading.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package config loads and validates the simulator configuration and device
// profile documents. Both are plain JSON: the retrieval pack carries no
// runtime TOML/YAML dependency, so this module follows it rather than the
// teacher's line-oriented configuration DSL.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rcornwell/plcsim/internal/memmodel"
)

// DeviceDoc is one device entry in a profile document.
type DeviceDoc struct {
	DeviceSuffix        string                     `json:"device_suffix"`
	SupportedSpaces     []string                   `json:"supported_spaces"`
	Ranges              map[string][2]uint32       `json:"ranges"`
	ScanConsistencyRule string                     `json:"scan_consistency_rule"`
	DefaultValue        *uint32                    `json:"default_value,omitempty"`
	Writable            *bool                      `json:"writable,omitempty"`
}

// ProfileDoc is the top-level device profile document.
type ProfileDoc struct {
	Profile struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description,omitempty"`
	} `json:"profile"`
	Devices []DeviceDoc `json:"devices"`
}

// LoadProfile reads and validates a device profile document from path,
// building a *memmodel.Profile.
func LoadProfile(path string) (*memmodel.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var doc ProfileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if doc.Profile.Name == "" {
		return nil, fmt.Errorf("profile %s: profile.name is required", path)
	}
	if len(doc.Devices) == 0 {
		return nil, fmt.Errorf("profile %s: at least one device is required", path)
	}

	models := make([]*memmodel.Model, 0, len(doc.Devices))
	for _, d := range doc.Devices {
		model, err := buildModel(d)
		if err != nil {
			return nil, fmt.Errorf("profile %s: device %q: %w", path, d.DeviceSuffix, err)
		}
		models = append(models, model)
	}

	return memmodel.NewProfile(doc.Profile.Name, doc.Profile.Version, doc.Profile.Description, models), nil
}

func buildModel(d DeviceDoc) (*memmodel.Model, error) {
	if d.DeviceSuffix == "" {
		return nil, fmt.Errorf("device_suffix is required")
	}
	if len(d.SupportedSpaces) == 0 {
		return nil, fmt.Errorf("supported_spaces must be non-empty")
	}

	rule, err := parseRule(d.ScanConsistencyRule)
	if err != nil {
		return nil, err
	}

	spaces := map[memmodel.Space]memmodel.Range{}
	for _, s := range d.SupportedSpaces {
		space, ok := parseSpace(s)
		if !ok {
			return nil, fmt.Errorf("unsupported space %q", s)
		}
		rng, ok := d.Ranges[s]
		if !ok {
			return nil, fmt.Errorf("missing range for space %q", s)
		}
		if rng[1] < rng[0] {
			return nil, fmt.Errorf("invalid range for space %q: max < min", s)
		}
		spaces[space] = memmodel.Range{Min: rng[0], Max: rng[1]}
	}

	var defaultValue uint32
	if d.DefaultValue != nil {
		defaultValue = *d.DefaultValue
	}
	writable := true
	if d.Writable != nil {
		writable = *d.Writable
	}

	return &memmodel.Model{
		Suffix:       d.DeviceSuffix,
		Spaces:       spaces,
		Rule:         rule,
		DefaultValue: defaultValue,
		Writable:     writable,
	}, nil
}

func parseSpace(s string) (memmodel.Space, bool) {
	switch memmodel.Space(s) {
	case memmodel.Bit, memmodel.Word, memmodel.Dword:
		return memmodel.Space(s), true
	default:
		return "", false
	}
}

func parseRule(s string) (memmodel.Rule, error) {
	switch memmodel.Rule(s) {
	case memmodel.Immediate, memmodel.NextScan, memmodel.IOImage:
		return memmodel.Rule(s), nil
	default:
		return "", fmt.Errorf("unsupported scan_consistency_rule %q", s)
	}
}

// AdapterDoc configures one adapter listener.
type AdapterDoc struct {
	Name                string `json:"name"`
	Addr                string `json:"addr"`
	ReadOnly            bool   `json:"readonly,omitempty"`
	MaxFrameBytes       int    `json:"max_frame_bytes,omitempty"`
	MaxPointsPerRequest int    `json:"max_points_per_request,omitempty"`
}

// ModuleDoc configures one ladder module to load, by registered kind.
type ModuleDoc struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// SimConfig is the top-level simulator configuration document.
type SimConfig struct {
	ProfilePath string `json:"profile_path"`

	WALMaxEntries int `json:"wal_max_entries,omitempty"`
	LockTimeoutMs int `json:"lock_timeout_ms,omitempty"`

	ScanMode       string `json:"scan_mode"`
	ScanPeriodMs   int64  `json:"scan_period_ms,omitempty"`
	OnModuleError  string `json:"on_module_error,omitempty"`
	OnScanErrorWAL string `json:"on_scan_error_wal,omitempty"`

	Modules  []ModuleDoc  `json:"modules,omitempty"`
	Adapters []AdapterDoc `json:"adapters,omitempty"`

	DebugLog bool   `json:"debug_log,omitempty"`
	LogFile  string `json:"log_file,omitempty"`
}

// LoadSimConfig reads and validates the simulator configuration document
// from path.
func LoadSimConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg SimConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.ProfilePath == "" {
		return nil, fmt.Errorf("config %s: profile_path is required", path)
	}

	switch cfg.ScanMode {
	case "":
		cfg.ScanMode = "real"
	case "real", "step":
	default:
		return nil, fmt.Errorf("config %s: unsupported scan_mode %q", path, cfg.ScanMode)
	}

	if cfg.ScanPeriodMs <= 0 {
		cfg.ScanPeriodMs = 100
	}

	switch cfg.OnModuleError {
	case "":
		cfg.OnModuleError = "CONTINUE"
	case "CONTINUE", "STOP":
	default:
		return nil, fmt.Errorf("config %s: unsupported on_module_error %q", path, cfg.OnModuleError)
	}

	switch cfg.OnScanErrorWAL {
	case "":
		cfg.OnScanErrorWAL = "DISCARD_WAL_FOR_SCAN"
	case "DISCARD_WAL_FOR_SCAN", "KEEP":
	default:
		return nil, fmt.Errorf("config %s: unsupported on_scan_error_wal %q", path, cfg.OnScanErrorWAL)
	}

	for _, a := range cfg.Adapters {
		if a.Name == "" || a.Addr == "" {
			return nil, fmt.Errorf("config %s: adapters require name and addr", path)
		}
	}

	return &cfg, nil
}
