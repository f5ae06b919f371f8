// Package lifecycle wires config loading, logging, CPU feature detection,
// and back-end construction into the single startup/shutdown sequence
// every entry point (library initialization, the CLI, the dashboard)
// shares: load config, set up logging, log system info, construct the
// back-ends and dispatch core, write the PID file, and only then start
// accepting work.
package lifecycle

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/backend/accela"
	"github.com/uuxo/zlib-accel/internal/backend/accelb"
	"github.com/uuxo/zlib-accel/internal/compression"
	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/cpufeatures"
	"github.com/uuxo/zlib-accel/internal/dispatch"
	"github.com/uuxo/zlib-accel/internal/gzfile"
	"github.com/uuxo/zlib-accel/internal/logging"
)

// Runtime bundles everything Startup assembled: the configuration store,
// the dispatch core, and the two accelerator adapters (kept around so
// Shutdown can close their session tables and so callers that need
// lower-level access, e.g. gzfile.Open's accelA parameter, have it).
type Runtime struct {
	Cfg    *config.Store
	Log    *logrus.Logger
	Core   *dispatch.Core
	AccelA *accela.Adapter
	AccelB *accelb.Adapter

	// SoftwareLevel is the recommended flate level for the fallback path,
	// chosen from the host's CPU features at startup.
	SoftwareLevel int

	pidPath string
}

// Options controls Startup. ConfigPath and PIDPath are both optional; an
// empty ConfigPath falls back to config.DefaultConfigPath, and an empty
// PIDPath skips PID-file bookkeeping entirely.
type Options struct {
	ConfigPath string
	PIDPath    string
	Version    string
}

// Startup loads configuration, sets up logging, detects CPU features for
// the startup log line, builds both accelerator adapters over the
// in-process simulator drivers, and assembles the dispatch core. It
// returns a Runtime ready to hand to gzfile.Open or a one-shot call.
func Startup(opts Options) (*Runtime, error) {
	cfg := config.NewStore()
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}
	if !cfg.Load(configPath) {
		logrus.Warnf("lifecycle: using default configuration, could not load %s", configPath)
	}

	log := logrus.New()
	logging.Setup(cfg, log)
	logging.LogSystemInfo(log, opts.Version)

	features := cpufeatures.Detect()
	log.Infof("cpu features: %s", features.Summary())

	softwareProfile := compression.SelectForFeatures(features)
	log.Infof("software fallback profile: %s", softwareProfile)

	accelA := accela.New(
		accela.NewSimDriver(),
		func() bool { return cfg.GetBool(config.QATCompressionAllowChunking) },
		func() int { return int(cfg.Get(config.QATCompressionLevel)) },
		func() bool { return cfg.GetBool(config.QATPeriodicalPolling) },
	)
	accelB := accelb.New(
		accelb.NewSimDriver(),
		func() bool { return cfg.GetBool(config.IAAPrependEmptyBlock) },
	)

	core := dispatch.New(cfg, accelA, accelB)

	if opts.PIDPath != "" {
		if err := logging.WritePIDFile(opts.PIDPath, log); err != nil {
			return nil, fmt.Errorf("lifecycle: startup: %w", err)
		}
	}

	log.Infof("lifecycle: startup complete, back-ends: %s, %s", accelA.Path(), accelB.Path())
	return &Runtime{
		Cfg:           cfg,
		Log:           log,
		Core:          core,
		AccelA:        accelA,
		AccelB:        accelB,
		SoftwareLevel: softwareProfile.Level,
		pidPath:       opts.PIDPath,
	}, nil
}

// AccelABackend exposes rt.AccelA through the generic backend.Backend
// interface, for callers (e.g. gzfile.Open) that only need the interface.
func (rt *Runtime) AccelABackend() backend.Backend { return rt.AccelA }

// OpenGzipFile opens a compressed-file handle wired to this runtime's
// dispatch core, ACCEL-A adapter, and configuration store, compressing at
// the software level SelectForFeatures recommended for the host CPU when
// this handle falls through to the software fallback.
func (rt *Runtime) OpenGzipFile(path, modeStr string) (*gzfile.File, error) {
	return gzfile.Open(rt.Core, rt.AccelABackend(), rt.Cfg, path, modeStr, rt.SoftwareLevel)
}

// Shutdown closes both accelerator session tables and removes the PID
// file, in that order.
func (rt *Runtime) Shutdown() {
	rt.AccelA.Close()
	rt.AccelB.Close()
	logging.RemovePIDFile(rt.pidPath, rt.Log)
	rt.Log.Info("lifecycle: shutdown complete")
}
