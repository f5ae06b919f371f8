package main

import (
	"testing"
	"time"

	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/dispatch"
)

func TestDriveSyntheticLoadMovesCounters(t *testing.T) {
	core := dispatch.New(config.NewStore(), nil, nil)
	stop := make(chan struct{})
	go driveSyntheticLoad(core, stop)

	deadline := time.After(2 * time.Second)
	for {
		stats := core.Stats()
		if stats.CompressSoftware > 0 && stats.DecompressSoftware > 0 {
			close(stop)
			return
		}
		select {
		case <-deadline:
			close(stop)
			t.Fatal("synthetic load never moved the software counters")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
