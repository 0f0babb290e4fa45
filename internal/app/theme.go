package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// ConsoleTheme gives the window the look of a microscope console: dark
// background, phosphor-green accents.
type ConsoleTheme struct{}

var _ fyne.Theme = (*ConsoleTheme)(nil)

func (t *ConsoleTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.NRGBA{R: 0x1A, G: 0x1D, B: 0x21, A: 0xFF}
	case theme.ColorNamePrimary:
		return color.NRGBA{R: 0x39, G: 0xC1, B: 0x6C, A: 0xFF} // Phosphor green
	case theme.ColorNameSelection:
		return color.NRGBA{R: 0x39, G: 0xC1, B: 0x6C, A: 0x60}
	case theme.ColorNameScrollBar:
		return color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	default:
		return theme.DefaultTheme().Color(name, theme.VariantDark)
	}
}

func (t *ConsoleTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *ConsoleTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *ConsoleTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 3 // Dense control panel
	case theme.SizeNameText:
		return 12
	default:
		return theme.DefaultTheme().Size(name)
	}
}
