package detect

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sync"

	"sorapipe/internal/services"
)

// Assets holds the watermark template, its optional mask, and a cache of
// scaled views. A detector instance owns exactly one Assets value.
type Assets struct {
	template *Plane
	mask     *Plane

	mu    sync.Mutex
	views map[string]*View
}

// View is the template prepared at one overall scale.
type View struct {
	Scale    float64
	Template *Plane
	Mask     *Plane
	Edges    *Plane
}

// LoadAssets reads the template image and, when maskPath is non-empty, the
// mask. The mask must match the template dimensions.
func LoadAssets(templatePath, maskPath string) (*Assets, error) {
	template, err := loadPlane(templatePath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detect", "load template", templatePath, err)
	}
	assets := &Assets{template: template, views: map[string]*View{}}

	if maskPath != "" {
		mask, err := loadPlane(maskPath)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "detect", "load mask", maskPath, err)
		}
		if mask.W != template.W || mask.H != template.H {
			return nil, services.Wrap(services.ErrConfiguration, "detect", "load mask",
				fmt.Sprintf("mask %dx%d does not match template %dx%d", mask.W, mask.H, template.W, template.H), nil)
		}
		assets.mask = mask
	}
	return assets, nil
}

// HasMask reports whether a mask was loaded.
func (a *Assets) HasMask() bool { return a.mask != nil }

// Size returns the unscaled template dimensions.
func (a *Assets) Size() (int, int) { return a.template.W, a.template.H }

// ViewAt returns the cached template view for the overall scale, building it
// on first use. Scales that collapse the template below 2px are rejected.
func (a *Assets) ViewAt(scale float64, cannyLow, cannyHigh float64) (*View, error) {
	if scale <= 0 || math.IsNaN(scale) {
		return nil, fmt.Errorf("invalid template scale %f", scale)
	}
	w := int(math.Round(float64(a.template.W) * scale))
	h := int(math.Round(float64(a.template.H) * scale))
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("template collapses at scale %f", scale)
	}

	key := fmt.Sprintf("%.4f|%.1f|%.1f", scale, cannyLow, cannyHigh)
	a.mu.Lock()
	defer a.mu.Unlock()
	if view, ok := a.views[key]; ok {
		return view, nil
	}

	view := &View{
		Scale:    scale,
		Template: a.template.Resize(w, h),
	}
	if a.mask != nil {
		view.Mask = a.mask.Resize(w, h)
	}
	view.Edges = view.Template.EdgeMap(cannyLow, cannyHigh)
	a.views[key] = view
	return view, nil
}

func loadPlane(path string) (*Plane, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return PlaneFromImage(img), nil
}
