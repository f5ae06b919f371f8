package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/uuxo/zlib-accel/internal/config"
)

func TestSetupMapsLogLevel(t *testing.T) {
	cfg := config.NewStore()
	log := logrus.New()

	cfg.Set(config.LogLevel, 0)
	Setup(cfg, log)
	if log.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("level = %v, want error", log.GetLevel())
	}

	cfg.Set(config.LogLevel, 1)
	Setup(cfg, log)
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", log.GetLevel())
	}

	cfg.Set(config.LogLevel, 2)
	Setup(cfg, log)
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", log.GetLevel())
	}
}

func TestPIDFileWriteAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pid")
	log := logrus.New()

	if err := WritePIDFile(path, log); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected pid file to exist: %v", err)
	}

	RemovePIDFile(path, log)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected pid file to be removed")
	}
}

func TestPIDFileEmptyPathIsNoop(t *testing.T) {
	log := logrus.New()
	if err := WritePIDFile("", log); err != nil {
		t.Fatal(err)
	}
	RemovePIDFile("", log)
}
