/*
 * plcsim - Main process.
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

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/plcsim/internal/adapter"
	"github.com/rcornwell/plcsim/internal/config"
	"github.com/rcornwell/plcsim/internal/devmem"
	"github.com/rcornwell/plcsim/internal/ladder"
	"github.com/rcornwell/plcsim/internal/ladder/samples"
	"github.com/rcornwell/plcsim/internal/logging"
	"github.com/rcornwell/plcsim/internal/scanengine"
	"github.com/rcornwell/plcsim/internal/wal"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "plcsim.json", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optStep := getopt.BoolLong("step", 's', "Run exactly one scan and exit")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	Logger = slog.New(logging.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, false))
	slog.SetDefault(Logger)

	Logger.Info("plcsim started")

	_, err := os.Stat(*optConfig)
	if os.IsNotExist(err) {
		Logger.Error("configuration file not found", "path", *optConfig)
		os.Exit(1)
	}

	simCfg, err := config.LoadSimConfig(*optConfig)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	if simCfg.DebugLog {
		programLevel.Set(slog.LevelDebug)
	}

	profile, err := config.LoadProfile(simCfg.ProfilePath)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	walStore := wal.New(simCfg.WALMaxEntries)
	mem := devmem.New(profile, walStore, devmem.Options{
		LockTimeout: time.Duration(simCfg.LockTimeoutMs) * time.Millisecond,
	})

	registry := ladder.NewRegistry()
	for _, m := range simCfg.Modules {
		mod, err := buildModule(m)
		if err != nil {
			Logger.Error("failed to build module", "kind", m.Kind, "err", err)
			os.Exit(1)
		}
		if err := registry.Register(mod); err != nil {
			Logger.Error("failed to load module", "kind", m.Kind, "err", err)
			os.Exit(1)
		}
	}

	engineMode := scanengine.ModeReal
	if simCfg.ScanMode == "step" {
		engineMode = scanengine.ModeStep
	}

	engine := scanengine.New(scanengine.Config{
		Mode:           engineMode,
		PeriodMs:       simCfg.ScanPeriodMs,
		OnModuleError:  scanengine.ModuleErrorPolicy(simCfg.OnModuleError),
		OnScanErrorWAL: scanengine.WALErrorPolicy(simCfg.OnScanErrorWAL),
	}, mem, registry)

	if *optStep {
		if err := engine.Step(); err != nil {
			Logger.Error("scan failed", "err", err)
			os.Exit(1)
		}
		registry.Unload()
		Logger.Info("plcsim ran one scan, exiting")
		os.Exit(0)
	}

	var adapterCfgs []adapter.Config
	for _, a := range simCfg.Adapters {
		adapterCfgs = append(adapterCfgs, adapter.Config{
			Name:                a.Name,
			Addr:                a.Addr,
			ReadOnly:            a.ReadOnly,
			MaxFrameBytes:       a.MaxFrameBytes,
			MaxPointsPerRequest: a.MaxPointsPerRequest,
		})
	}
	mgr, err := adapter.NewManager(adapterCfgs, mem)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	go func() {
		if err := mgr.Run(); err != nil {
			Logger.Error("adapter manager exited", "err", err)
		}
	}()

	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.RunForever() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		Logger.Info("got quit signal")
	case err := <-engineDone:
		if err != nil {
			Logger.Error("scan engine stopped with error", "err", err)
		}
	}

	Logger.Info("shutting down scan engine")
	engine.Stop()
	registry.Unload()
	Logger.Info("shutting down adapters")
	mgr.Stop()
	Logger.Info("plcsim stopped")
}

func buildModule(m config.ModuleDoc) (ladder.Module, error) {
	switch m.Kind {
	case "blink":
		var params struct {
			Dev         string `json:"dev"`
			Addr        uint32 `json:"addr"`
			PeriodScans int64  `json:"period_scans"`
		}
		if len(m.Params) > 0 {
			if err := json.Unmarshal(m.Params, &params); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
		}
		return &samples.Blink{Dev: params.Dev, Addr: params.Addr, PeriodScans: params.PeriodScans}, nil
	default:
		return nil, fmt.Errorf("unknown module kind %q", m.Kind)
	}
}
