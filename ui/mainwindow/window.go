// Package mainwindow provides the main application window.
package mainwindow

import (
	"fmt"
	"path/filepath"
	"strings"

	"sem-simulator/internal/app"
	"sem-simulator/internal/version"
	"sem-simulator/ui/canvas"
	"sem-simulator/ui/panels"
	"sem-simulator/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	scope *app.Microscope
	prefs *prefs.Prefs

	screen   *canvas.Screen
	controls *panels.ControlPanel
	datazone *widget.Label
	scaleBar *widget.Label
}

// New creates a new main window.
func New(fyneApp fyne.App, scope *app.Microscope, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow("SEM Simulator")

	mw := &MainWindow{
		Window: win,
		app:    fyneApp,
		scope:  scope,
		prefs:  p,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	vp := mw.scope.Config().Viewport
	mw.screen = canvas.NewScreen(fyne.NewSize(float32(vp.Width), float32(vp.Height)))
	mw.screen.SetFrame(mw.scope.Frame())

	mw.datazone = widget.NewLabel(mw.scope.Datazone())
	mw.scaleBar = widget.NewLabel(mw.scope.ScaleBar())

	// Controls first so the saved settings are applied before the first frame
	mw.controls = panels.NewControlPanel(mw.scope, mw.prefs, mw.Window)

	bottom := container.NewBorder(nil, nil, nil, mw.scaleBar, mw.datazone)
	screenArea := container.NewBorder(
		nil,       // top
		bottom,    // bottom
		nil,       // left
		nil,       // right
		mw.screen, // center
	)

	split := container.NewHSplit(
		container.NewVScroll(mw.controls.Container()),
		screenArea,
	)
	split.SetOffset(0.25)

	mw.SetContent(split)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Save Image...", mw.onSaveImage),
		fyne.NewMenuItem("Beam Parameters...", mw.onShowParams),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, helpMenu))
}

// setupEventHandlers registers for microscope events.
func (mw *MainWindow) setupEventHandlers() {
	mw.scope.On(app.EventFrameUpdated, func(data interface{}) {
		mw.screen.SetFrame(mw.scope.Frame())
	})

	mw.scope.On(app.EventDatazoneChanged, func(data interface{}) {
		if text, ok := data.(string); ok {
			mw.datazone.SetText(text)
		}
		mw.scaleBar.SetText(mw.scope.ScaleBar())
	})

	mw.scope.On(app.EventSampleLoaded, func(data interface{}) {
		if name, ok := data.(string); ok {
			mw.SetTitle("SEM Simulator - " + name)
		}
	})
}

// SavePreferences writes the preferences file if a setting changed.
func (mw *MainWindow) SavePreferences() {
	if err := mw.prefs.SaveIfChanged(); err != nil {
		log.Printf("Failed to save preferences: %v", err)
	}
}

// lastSaveDir returns the last used save directory as a ListableURI, or nil.
func (mw *MainWindow) lastSaveDir() fyne.ListableURI {
	path := mw.prefs.String(prefs.KeySaveDir)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

func (mw *MainWindow) onSaveImage() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.EqualFold(filepath.Ext(path), ".png") {
			path += ".png"
		}
		mw.prefs.SetString(prefs.KeySaveDir, filepath.Dir(path))
		if err := mw.scope.SaveImage(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png"}))
	fd.SetFileName("image.png")
	if loc := mw.lastSaveDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onShowParams() {
	text := widget.NewLabel(mw.scope.Dump())
	text.TextStyle = fyne.TextStyle{Monospace: true}
	dialog.ShowCustom("Beam Parameters", "Close", text, mw.Window)
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About SEM Simulator",
		fmt.Sprintf("SEM Simulator %s\n\n"+
			"A scanning electron microscope training simulator.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}
