// Package main provides the entry point for the SEM Simulator application.
package main

import (
	"flag"
	"time"

	"sem-simulator/internal/app"
	"sem-simulator/internal/version"
	"sem-simulator/ui/mainwindow"
	"sem-simulator/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
	log "github.com/sirupsen/logrus"
)

const (
	appID    = "io.github.sem-simulator"
	appTitle = "SEM Simulator"
)

func main() {
	appPrefs := prefs.Load()

	root := flag.String("images", appPrefs.String(prefs.KeyImagesRoot), "folder containing the Images directory")
	seed := flag.Int64("seed", 0, "random seed for column defects and noise (0 = time based)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.Printf("Starting %s %s", appTitle, version.String())

	cfg := app.DefaultConfig()
	if *root != "" {
		cfg = cfg.WithImagesRoot(*root)
		appPrefs.SetString(prefs.KeyImagesRoot, *root)
	}
	if *seed != 0 {
		cfg = cfg.WithSeed(*seed)
	}
	scope := app.New(cfg)

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(&app.ConsoleTheme{})

	win := mainwindow.New(fyneApp, scope, appPrefs)
	win.SetTitle(appTitle)

	// Persist settings periodically so a crash loses little
	saver := app.NewTimer("prefs", 2*time.Second, win.SavePreferences)
	saver.Start()

	win.SetOnClosed(func() {
		saver.Stop()
		scope.Close()
		win.SavePreferences()
	})
	win.ShowAndRun()
}
