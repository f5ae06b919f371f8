// Package logging wires the configuration array's log_level/log_file
// knobs into a logrus logger, rotating through lumberjack the same way
// every other package in this module expects its logger configured.
package logging

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/uuxo/zlib-accel/internal/config"
)

// Setup configures log based on cfg's log_level and log_file options and
// returns it for convenience.
func Setup(cfg *config.Store, log *logrus.Logger) *logrus.Logger {
	switch cfg.Get(config.LogLevel) {
	case 0:
		log.SetLevel(logrus.ErrorLevel)
	case 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}

	if path := cfg.LogFile(); path != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	} else {
		log.SetOutput(os.Stdout)
	}

	log.Infof("logging initialized at level %d, sink=%q", cfg.Get(config.LogLevel), cfg.LogFile())
	return log
}

// LogSystemInfo logs host and runtime information once at startup, the
// same fields the original process logged before touching any hardware.
func LogSystemInfo(log *logrus.Logger, version string) {
	hostname, _ := os.Hostname()
	log.Infof("=== system information ===")
	log.Infof("hostname: %s", hostname)
	log.Infof("os/arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	log.Infof("go version: %s", runtime.Version())
	log.Infof("cpus: %d, gomaxprocs: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	log.Infof("version: %s, pid: %d", version, os.Getpid())
	log.Infof("==========================")
}

// WritePIDFile writes the current process ID to pidPath.
func WritePIDFile(pidPath string, log *logrus.Logger) error {
	if pidPath == "" {
		return nil
	}
	pid := fmt.Sprintf("%d", os.Getpid())
	if err := os.WriteFile(pidPath, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("logging: write pid file: %w", err)
	}
	log.Infof("pid %s written to %s", pid, pidPath)
	return nil
}

// RemovePIDFile removes pidPath, logging (not failing) on error.
func RemovePIDFile(pidPath string, log *logrus.Logger) {
	if pidPath == "" {
		return
	}
	if err := os.Remove(pidPath); err != nil {
		log.Warnf("logging: remove pid file %s: %v", pidPath, err)
	}
}
