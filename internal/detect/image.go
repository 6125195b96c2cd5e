package detect

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Plane is a grayscale float image. Values are 0..255.
type Plane struct {
	W, H int
	Pix  []float64
}

// NewPlane allocates a zeroed plane.
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float64, w*h)}
}

// At returns the value at (x, y) without bounds checking.
func (p *Plane) At(x, y int) float64 { return p.Pix[y*p.W+x] }

// Set writes the value at (x, y) without bounds checking.
func (p *Plane) Set(x, y int, v float64) { p.Pix[y*p.W+x] = v }

// PlaneFromImage converts any image to a grayscale plane using the standard
// luminance weights.
func PlaneFromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(bounds)
		xdraw.Draw(gray, bounds, img, bounds.Min, xdraw.Src)
	}
	plane := NewPlane(bounds.Dx(), bounds.Dy())
	for y := 0; y < plane.H; y++ {
		row := gray.Pix[(y+bounds.Min.Y-gray.Rect.Min.Y)*gray.Stride:]
		for x := 0; x < plane.W; x++ {
			plane.Pix[y*plane.W+x] = float64(row[x+bounds.Min.X-gray.Rect.Min.X])
		}
	}
	return plane
}

// Resize scales the plane to w×h with bilinear resampling.
func (p *Plane) Resize(w, h int) *Plane {
	if w <= 0 || h <= 0 || (w == p.W && h == p.H) {
		if w == p.W && h == p.H {
			return p
		}
		return NewPlane(1, 1)
	}
	src := image.NewGray(image.Rect(0, 0, p.W, p.H))
	for i, v := range p.Pix {
		src.Pix[i] = uint8(clampFloat(v, 0, 255))
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, src, src.Rect, xdraw.Src, nil)
	out := NewPlane(w, h)
	for i, v := range dst.Pix {
		out.Pix[i] = float64(v)
	}
	return out
}

// GaussianBlur returns the plane convolved with a separable Gaussian of the
// given odd kernel size. Even or sub-3 kernels return the plane unchanged.
func (p *Plane) GaussianBlur(kernel int) *Plane {
	if kernel < 3 || kernel%2 == 0 || p.W < kernel || p.H < kernel {
		return p
	}
	weights := gaussianKernel(kernel)
	radius := kernel / 2

	horizontal := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sx := reflect(x+k, p.W)
				sum += p.At(sx, y) * weights[k+radius]
			}
			horizontal.Set(x, y, sum)
		}
	}
	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sy := reflect(y+k, p.H)
				sum += horizontal.At(x, sy) * weights[k+radius]
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

// EdgeMap computes a binary edge plane via Sobel gradients with double
// thresholding: strong edges pass, weak edges pass only next to a strong one.
func (p *Plane) EdgeMap(low, high float64) *Plane {
	if low <= 0 {
		low = 1
	}
	if high < low {
		high = low
	}
	blurred := p.GaussianBlur(5)

	magnitude := NewPlane(p.W, p.H)
	for y := 1; y < p.H-1; y++ {
		for x := 1; x < p.W-1; x++ {
			gx := -blurred.At(x-1, y-1) + blurred.At(x+1, y-1) +
				-2*blurred.At(x-1, y) + 2*blurred.At(x+1, y) +
				-blurred.At(x-1, y+1) + blurred.At(x+1, y+1)
			gy := -blurred.At(x-1, y-1) - 2*blurred.At(x, y-1) - blurred.At(x+1, y-1) +
				blurred.At(x-1, y+1) + 2*blurred.At(x, y+1) + blurred.At(x+1, y+1)
			magnitude.Set(x, y, math.Hypot(gx, gy))
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 1; y < p.H-1; y++ {
		for x := 1; x < p.W-1; x++ {
			m := magnitude.At(x, y)
			if m >= high {
				out.Set(x, y, 255)
				continue
			}
			if m < low {
				continue
			}
			for dy := -1; dy <= 1 && out.At(x, y) == 0; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if magnitude.At(x+dx, y+dy) >= high {
						out.Set(x, y, 255)
						break
					}
				}
			}
		}
	}
	return out
}

func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	weights := make([]float64, size)
	radius := size / 2
	var total float64
	for i := range weights {
		d := float64(i - radius)
		weights[i] = math.Exp(-d * d / (2 * sigma * sigma))
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func reflect(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - i - 2
	}
	return i
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
