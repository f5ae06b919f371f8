package lifecycle

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestStartupShutdownWithoutConfigOrPID(t *testing.T) {
	rt, err := Startup(Options{Version: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if rt.Core == nil || rt.AccelA == nil || rt.AccelB == nil {
		t.Fatal("expected a fully assembled runtime")
	}
	rt.Shutdown()
}

func TestStartupWritesAndShutdownRemovesPIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "zlib-accel.pid")

	rt, err := Startup(Options{PIDPath: pidPath})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("expected pid file to exist after startup: %v", err)
	}

	rt.Shutdown()
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("expected pid file to be removed after shutdown")
	}
}

func TestOpenGzipFileUsesRecommendedSoftwareLevel(t *testing.T) {
	rt, err := Startup(Options{Version: "test"})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Shutdown()

	if rt.SoftwareLevel < 1 || rt.SoftwareLevel > 9 {
		t.Fatalf("expected a recommended level in [1,9], got %d", rt.SoftwareLevel)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.gz")
	wf, err := rt.OpenGzipFile(path, "w")
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("lifecycle wired software level payload\n"), 1000)
	if _, err := wf.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := wf.Close(); err != nil {
		t.Fatal(err)
	}

	rf, err := rt.OpenGzipFile(path, "r")
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	got, err := io.ReadAll(rf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip through the runtime-wired software level mismatched")
	}
}

func TestStartupFallsBackWhenConfigPathMissing(t *testing.T) {
	rt, err := Startup(Options{ConfigPath: "/nonexistent/path/to/config"})
	if err != nil {
		t.Fatal(err)
	}
	rt.Shutdown()
}
