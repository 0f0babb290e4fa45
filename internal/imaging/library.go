package imaging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingImage is returned when a detector/magnification pair has no
// reference image.
var ErrMissingImage = errors.New("missing reference image")

// imagesDir is the folder under the images root that holds one directory per
// sample.
const imagesDir = "Images"

// Key identifies one reference image of a sample.
type Key struct {
	Detector string
	Mag      int
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%dx", k.Detector, k.Mag)
}

// Library holds every reference image of one sample. It is filled once when
// the sample is selected and only read afterwards.
type Library struct {
	Sample    string
	detectors []string
	mags      []int
	images    map[Key]*Gray
}

// NewLibrary creates an empty library for sample.
func NewLibrary(sample string) *Library {
	return &Library{
		Sample: sample,
		images: make(map[Key]*Gray),
	}
}

// Add stores img under (detector, mag), registering the detector and
// magnification if they are new.
func (l *Library) Add(detector string, mag int, img *Gray) {
	if !containsString(l.detectors, detector) {
		l.detectors = append(l.detectors, detector)
	}
	if !containsInt(l.mags, mag) {
		l.mags = append(l.mags, mag)
		sort.Ints(l.mags)
	}
	l.images[Key{Detector: detector, Mag: mag}] = img
}

// Reference returns the image for (detector, mag).
func (l *Library) Reference(detector string, mag int) (*Gray, error) {
	img, ok := l.images[Key{Detector: detector, Mag: mag}]
	if !ok {
		return nil, fmt.Errorf("%w: sample %q detector %q at %dx", ErrMissingImage, l.Sample, detector, mag)
	}
	return img, nil
}

// Detectors returns the detector names in load order.
func (l *Library) Detectors() []string {
	return append([]string(nil), l.detectors...)
}

// Magnifications returns the available magnifications in ascending order.
func (l *Library) Magnifications() []int {
	return append([]int(nil), l.mags...)
}

// Len returns the number of images held.
func (l *Library) Len() int {
	return len(l.images)
}

// Samples lists the sample folders under root/Images.
func Samples(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, imagesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	var samples []string
	for _, e := range entries {
		if e.IsDir() {
			samples = append(samples, e.Name())
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return naturalLess(samples[i], samples[j])
	})
	return samples, nil
}

// LoadSample reads root/Images/<sample>/<detector>/<mag>.<ext> for every
// detector folder. The magnifications are taken from the first detector; a
// detector that lacks one of them simply has no image for it.
func LoadSample(root, sample string) (*Library, error) {
	dir := filepath.Join(root, imagesDir, sample)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample %q: %w", sample, err)
	}

	var detectors []string
	for _, e := range entries {
		if e.IsDir() {
			detectors = append(detectors, e.Name())
		}
	}
	sort.Strings(detectors)

	lib := NewLibrary(sample)
	if len(detectors) == 0 {
		return lib, nil
	}

	first, err := listMagnifications(filepath.Join(dir, detectors[0]))
	if err != nil {
		return nil, err
	}
	mags := first.sorted()

	for _, det := range detectors {
		files, err := listMagnifications(filepath.Join(dir, det))
		if err != nil {
			return nil, err
		}
		for _, m := range mags {
			path, ok := files[m]
			if !ok {
				continue
			}
			img, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("sample %q detector %q: %w", sample, det, err)
			}
			lib.Add(det, m, img)
		}
	}
	return lib, nil
}

// magIndex maps a magnification to its image file.
type magIndex map[int]string

func (idx magIndex) sorted() []int {
	mags := make([]int, 0, len(idx))
	for m := range idx {
		mags = append(mags, m)
	}
	sort.Ints(mags)
	return mags
}

// listMagnifications returns the image files of a detector folder keyed by
// the integer stem of their names.
func listMagnifications(dir string) (magIndex, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list detector folder: %w", err)
	}
	idx := magIndex{}
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFormat(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		mag, err := strconv.Atoi(stem)
		if err != nil || mag <= 0 {
			continue
		}
		idx[mag] = filepath.Join(dir, e.Name())
	}
	return idx, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
