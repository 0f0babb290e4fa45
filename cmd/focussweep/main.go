// Command focussweep renders a sample across a range of focus settings and
// reports how sharp each frame is. It answers where best focus lies for a
// given column and how quickly the image degrades around it.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"sem-simulator/internal/app"
	"sem-simulator/internal/beam"
	"sem-simulator/internal/imaging"
	"sem-simulator/internal/scan"
	"sem-simulator/internal/version"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

func main() {
	root := flag.String("images", ".", "folder containing the Images directory")
	sample := flag.String("sample", "", "sample name")
	detector := flag.String("detector", "", "detector (default: last listed)")
	mag := flag.Int("mag", 0, "magnification (default: lowest available)")
	resName := flag.String("res", scan.DefaultResolution.String(), "frame resolution")
	from := flag.Float64("from", 0, "first focus in mm (default: working distance - span)")
	to := flag.Float64("to", 0, "last focus in mm (default: working distance + span)")
	span := flag.Float64("span", 2, "half range around the working distance in mm")
	steps := flag.Int("steps", 21, "number of focus settings")
	speed := flag.Int("speed", scan.MaxSpeed, "scan speed, sets the noise level")
	seed := flag.Int64("seed", 1, "random seed for column defects and noise")
	outDir := flag.String("out", ".", "output directory")
	verbose := flag.Bool("v", false, "verbose logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *sample == "" || *steps < 2 {
		fmt.Println("Usage: focussweep -sample <name> [-images <dir>] [-detector SE] [-mag 100] [-steps 21] [-out <dir>]")
		os.Exit(1)
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	res, err := scan.ParseResolution(*resName)
	if err != nil {
		log.Fatal(err)
	}

	lib, err := imaging.LoadSample(*root, *sample)
	if err != nil {
		log.Fatalf("Failed to load sample: %v", err)
	}
	if lib.Len() == 0 {
		log.Fatalf("Sample %q has no images", *sample)
	}
	if *detector == "" {
		dets := lib.Detectors()
		*detector = dets[len(dets)-1]
	}
	if *mag == 0 {
		*mag = lib.Magnifications()[0]
	}
	ref, err := lib.Reference(*detector, *mag)
	if err != nil {
		log.Fatal(err)
	}

	cfg := app.DefaultConfig().WithSeed(*seed)
	b := beam.NewSeeded(cfg.Seed)
	b.SetKernelSize(res.KernelSize())
	b.SetPixelsPerMm(cfg.PixelsPerMm(res.Width, *mag))
	base := b.Params()

	lo, hi := *from, *to
	if lo == 0 && hi == 0 {
		lo = base.ZPosition - *span
		hi = base.ZPosition + *span
	}
	lo = max(lo, app.MinFocus)
	focus := floats.Span(make([]float64, *steps), lo, hi)

	log.WithFields(log.Fields{
		"sample":   *sample,
		"detector": *detector,
		"mag":      *mag,
		"res":      res,
		"wd":       fmt.Sprintf("%.3f", base.ZPosition),
	}).Info("Sweeping focus")

	synth := scan.NewSynthesizer(cfg.Seed + 1)
	points := make([]point, 0, len(focus))
	var bestFrame *scan.Frame
	bestScore := -1.0
	for _, f := range focus {
		p := base
		p.Focus = f
		prof, err := p.Profile(cfg.Viewport)
		if err != nil {
			log.WithError(err).Warnf("Skipping focus %.3f", f)
			continue
		}
		frame := synth.Render(ref, res, scan.Inputs{
			Profile:     prof,
			Speed:       *speed,
			BeamCurrent: p.BeamCurrent,
			Contrast:    app.DefaultContrast,
			Brightness:  app.DefaultBrightness,
			BeamOn:      true,
			HVRatio:     1,
		})
		score, err := sharpness(frame.Image())
		if err != nil {
			log.Fatal(err)
		}
		points = append(points, point{
			Focus:     f,
			Sharpness: score,
			WidthX:    prof.WidthX,
			WidthY:    prof.WidthY,
		})
		if score > bestScore {
			bestScore, bestFrame = score, frame
		}
		log.Debugf("focus %.3f mm: sharpness %.1f, widths %.0f x %.0f nm", f, score, prof.WidthX, prof.WidthY)
	}

	i := best(points)
	if i < 0 {
		log.Fatal("No frame could be rendered")
	}
	fmt.Printf("Working distance: %.3f mm\n", base.ZPosition)
	fmt.Printf("Best focus:       %.3f mm (sharpness %.1f)\n", points[i].Focus, points[i].Sharpness)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}
	framePath := filepath.Join(*outDir, *sample+"_best.png")
	if err := writeFrame(framePath, bestFrame.Image()); err != nil {
		log.Fatal(err)
	}

	reportPath := filepath.Join(*outDir, *sample+"_focus.html")
	out, err := os.Create(reportPath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()
	if err := writeReport(out, *sample, points); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote %s and %s\n", framePath, reportPath)
}
