// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Framesim drives the per-frame acquire, record, submit
// and present protocol against a registered driver and
// reports statistics.
//
// Usage:
//
//	framesim [flags]
//
// The flags are:
//
//	-driver name
//		driver to use ("fake" simulates a GPU in memory)
//	-frames n
//		number of frames to present
//	-images n
//		swapchain image count
//	-inflight n
//		frames in flight
//	-vsync
//		use the FIFO presentation mode
//	-resize-every n
//		resize the surface every n frames (0 disables)
//	-latency d
//		simulated execution time of each submission
//	-list
//		list the registered drivers and exit
//	-v
//		log per-frame events
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xlab/closer"

	"github.com/gviegas/gfxsync/driver"
	"github.com/gviegas/gfxsync/driver/drivertest"
	_ "github.com/gviegas/gfxsync/driver/vk"
	"github.com/gviegas/gfxsync/gfx"
)

var (
	drvName     = flag.String("driver", "fake", "driver to use")
	frames      = flag.Int("frames", 300, "number of frames to present")
	images      = flag.Int("images", 3, "swapchain image count")
	inflight    = flag.Int("inflight", 2, "frames in flight")
	vsync       = flag.Bool("vsync", true, "use the FIFO presentation mode")
	resizeEvery = flag.Int("resize-every", 0, "resize the surface every n frames")
	latency     = flag.Duration("latency", time.Millisecond, "simulated submission latency")
	list        = flag.Bool("list", false, "list the registered drivers and exit")
	verbose     = flag.Bool("v", false, "log per-frame events")
)

// Surface sizes that resizing alternates between.
var sizes = [...]driver.Dim2D{
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
	{Width: 800, Height: 600},
}

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	gfx.SetLogger(log)

	if *list {
		for _, d := range driver.Drivers() {
			fmt.Println(d.Name())
		}
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once
	closer.Bind(func() {
		once.Do(func() { close(stop) })
		<-done
	})
	defer closer.Close()

	st, err := func() (*stats, error) {
		defer close(done)
		return run(log, stop)
	}()
	if st != nil {
		st.print(os.Stdout)
	}
	if err != nil {
		log.Error("framesim failed", "err", err)
		closer.Exit(1)
	}
}

// stats are the results of a simulation.
type stats struct {
	driver     string
	frames     uint64
	elapsed    time.Duration
	resizes    int
	outOfDate  int
	submits    int
	presents   int
	violations []string
}

func (s *stats) print(w *os.File) {
	fps := 0.0
	if s.elapsed > 0 {
		fps = float64(s.frames) / s.elapsed.Seconds()
	}
	fmt.Fprintf(w, "driver:      %s\n", s.driver)
	fmt.Fprintf(w, "frames:      %d\n", s.frames)
	fmt.Fprintf(w, "elapsed:     %v\n", s.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "fps:         %.1f\n", fps)
	fmt.Fprintf(w, "resizes:     %d\n", s.resizes)
	fmt.Fprintf(w, "out of date: %d\n", s.outOfDate)
	if s.submits > 0 || s.presents > 0 {
		fmt.Fprintf(w, "submits:     %d\n", s.submits)
		fmt.Fprintf(w, "presents:    %d\n", s.presents)
	}
	fmt.Fprintf(w, "violations:  %d\n", len(s.violations))
	for _, v := range s.violations {
		fmt.Fprintf(w, "\t%s\n", v)
	}
}

// openDevice creates the device that the simulation runs
// on. Only the fake GPU provides headless surfaces.
func openDevice(log *slog.Logger) (*gfx.Device, *drivertest.GPU, error) {
	if strings.EqualFold(*drvName, "fake") {
		g := drivertest.New(
			drivertest.WithLatency(*latency),
			drivertest.WithImageCount(*images),
			drivertest.WithLogger(log))
		dev, err := gfx.NewDevice(g)
		if err != nil {
			g.Close()
			return nil, nil, err
		}
		return dev, g, nil
	}
	dev, err := gfx.OpenDevice(*drvName)
	if err != nil {
		return nil, nil, err
	}
	g, ok := dev.GPU().(*drivertest.GPU)
	if !ok {
		name := dev.GPU().Driver().Name()
		dev.Destroy()
		return nil, nil, errors.Errorf("driver %s: no headless surface available", name)
	}
	return dev, g, nil
}

func run(log *slog.Logger, stop <-chan struct{}) (*stats, error) {
	dev, g, err := openDevice(log)
	if err != nil {
		return nil, err
	}
	defer g.Close()
	defer dev.Destroy()
	st := &stats{driver: g.Name()}

	size := sizes[0]
	sf := g.NewSurface(size)
	pass := &drivertest.RenderPass{Name: "framesim"}
	setup, err := gfx.NewContext(dev)
	if err != nil {
		return nil, err
	}
	defer setup.Destroy()
	setupFence, err := gfx.NewFence(dev)
	if err != nil {
		return nil, err
	}
	defer setupFence.Destroy()
	sc, err := gfx.NewSwapchain(dev, sf, size, setup, setupFence,
		gfx.WithImageCount(*images),
		gfx.WithVSync(*vsync),
		gfx.WithRenderPass(pass))
	if err != nil {
		return nil, err
	}
	defer sc.Destroy()
	f, err := gfx.NewFrames(dev, sc, *inflight)
	if err != nil {
		return nil, err
	}
	defer f.Destroy()

	vb, err := gfx.NewBuffer(dev, 3*4*4, true, driver.UVertexData)
	if err != nil {
		return nil, err
	}
	defer vb.Destroy()
	for i, v := range [...]float32{0, -0.5, 0, 1, 0.5, 0.5, 0, 1, -0.5, 0.5, 0, 1} {
		binary.LittleEndian.PutUint32(vb.Bytes()[i*4:], math.Float32bits(v))
	}
	pl := &drivertest.Pipeline{Name: "triangle"}
	var push [8]byte

	log.Info("framesim started",
		"frames", *frames,
		"images", sc.Len(),
		"inflight", f.InFlight(),
		"mode", sc.Mode())
	start := time.Now()
	var resizedAt uint64
loop:
	for f.Count() < uint64(*frames) {
		select {
		case <-stop:
			log.Warn("framesim interrupted", "frame", f.Count())
			break loop
		default:
		}
		if n := f.Count(); *resizeEvery > 0 && n > 0 && n%uint64(*resizeEvery) == 0 && n != resizedAt {
			resizedAt = n
			size = sizes[(st.resizes+1)%len(sizes)]
			sf.SetSize(size)
		}
		err := f.Draw(func(ctx *gfx.Context, index int) error {
			sc := f.Swapchain()
			binary.LittleEndian.PutUint64(push[:], f.Count())
			ctx.BeginPass(pass, sc.Framebufs()[index], sc.Scissor(),
				driver.ClearColor{0, 0, 0, 1}, driver.ClearDepth{Depth: 1})
			ctx.SetPipeline(pl)
			ctx.SetViewportAndScissor(sc.Viewport(), sc.Scissor())
			ctx.SetVertexBuf(0, []*gfx.Buffer{vb}, []int64{0})
			ctx.PushConstants(pl, driver.SVertex, 0, push[:])
			ctx.Draw(3, 1, 0, 0)
			ctx.EndPass()
			return nil
		})
		switch {
		case err == nil:
			log.Debug("frame presented", "frame", f.Count())
		case gfx.IsOutOfDate(err):
			st.outOfDate++
			if err := f.Resize(size); err != nil {
				return st, err
			}
			st.resizes++
		default:
			return st, err
		}
	}
	if err := dev.WaitIdle(); err != nil {
		return st, err
	}
	st.elapsed = time.Since(start)
	st.frames = f.Count()
	st.submits = g.Count(drivertest.OpSubmit)
	st.presents = g.Count(drivertest.OpPresent)
	st.violations = g.Violations()
	if len(st.violations) > 0 {
		return st, errors.Errorf("%d contract violations", len(st.violations))
	}
	return st, nil
}
