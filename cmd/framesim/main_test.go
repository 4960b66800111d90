// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func setFlags(t *testing.T, n, every int, vs bool) {
	t.Helper()
	old := [...]any{*drvName, *frames, *images, *inflight, *vsync, *resizeEvery, *latency}
	*drvName = "fake"
	*frames = n
	*images = 3
	*inflight = 2
	*vsync = vs
	*resizeEvery = every
	*latency = 100 * time.Microsecond
	t.Cleanup(func() {
		*drvName = old[0].(string)
		*frames = old[1].(int)
		*images = old[2].(int)
		*inflight = old[3].(int)
		*vsync = old[4].(bool)
		*resizeEvery = old[5].(int)
		*latency = old[6].(time.Duration)
	})
}

func TestRun(t *testing.T) {
	setFlags(t, 24, 0, true)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := run(log, make(chan struct{}))
	if err != nil {
		t.Fatalf("run:\nhave %v\nwant nil", err)
	}
	if st.frames != 24 {
		t.Fatalf("stats.frames:\nhave %d\nwant 24", st.frames)
	}
	if st.presents != 24 {
		t.Fatalf("stats.presents:\nhave %d\nwant 24", st.presents)
	}
	if st.resizes != 0 || st.outOfDate != 0 {
		t.Fatalf("stats.resizes/outOfDate:\nhave %d/%d\nwant 0/0", st.resizes, st.outOfDate)
	}
	if len(st.violations) != 0 {
		t.Fatalf("stats.violations:\nhave %v\nwant none", st.violations)
	}
}

func TestRunResize(t *testing.T) {
	setFlags(t, 30, 10, false)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := run(log, make(chan struct{}))
	if err != nil {
		t.Fatalf("run:\nhave %v\nwant nil", err)
	}
	if st.frames != 30 {
		t.Fatalf("stats.frames:\nhave %d\nwant 30", st.frames)
	}
	if st.resizes == 0 {
		t.Fatal("stats.resizes:\nhave 0\nwant > 0")
	}
	if st.resizes != st.outOfDate {
		t.Fatalf("stats.resizes:\nhave %d\nwant %d", st.resizes, st.outOfDate)
	}
}

func TestRunStop(t *testing.T) {
	setFlags(t, 1000, 0, true)
	stop := make(chan struct{})
	close(stop)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := run(log, stop)
	if err != nil {
		t.Fatalf("run:\nhave %v\nwant nil", err)
	}
	if st.frames != 0 {
		t.Fatalf("stats.frames:\nhave %d\nwant 0", st.frames)
	}
}

func TestOpenDeviceUnknown(t *testing.T) {
	setFlags(t, 1, 0, true)
	*drvName = "no such driver"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, _, err := openDevice(log); err == nil {
		t.Fatal("openDevice:\nhave nil\nwant error")
	}
}
