package detect

import "math"

const epsilon = 1e-9

// MatchStats summarizes a correlation surface.
type MatchStats struct {
	Max  float64
	Mean float64
	Std  float64
	// MaxX, MaxY is the top-left corner of the best window.
	MaxX, MaxY int
	// Valid is false when the template does not fit inside the frame.
	Valid bool
}

// MatchCCoeffNormed slides the template over the frame computing the
// normalized correlation coefficient of mean-subtracted windows.
func MatchCCoeffNormed(frame, tmpl *Plane) MatchStats {
	tw, th := tmpl.W, tmpl.H
	if tw > frame.W || th > frame.H || tw == 0 || th == 0 {
		return MatchStats{}
	}

	n := float64(tw * th)
	var tmplSum, tmplSq float64
	for _, v := range tmpl.Pix {
		tmplSum += v
	}
	tmplMean := tmplSum / n
	centered := make([]float64, len(tmpl.Pix))
	for i, v := range tmpl.Pix {
		centered[i] = v - tmplMean
		tmplSq += centered[i] * centered[i]
	}
	if tmplSq < epsilon {
		return MatchStats{}
	}

	return slide(frame, tw, th, func(ox, oy int) float64 {
		var winSum float64
		for y := 0; y < th; y++ {
			row := frame.Pix[(oy+y)*frame.W+ox:]
			for x := 0; x < tw; x++ {
				winSum += row[x]
			}
		}
		winMean := winSum / n

		var cross, winSq float64
		for y := 0; y < th; y++ {
			row := frame.Pix[(oy+y)*frame.W+ox:]
			trow := centered[y*tw:]
			for x := 0; x < tw; x++ {
				d := row[x] - winMean
				cross += d * trow[x]
				winSq += d * d
			}
		}
		denom := math.Sqrt(tmplSq * winSq)
		if denom < epsilon {
			return 0
		}
		return cross / denom
	})
}

// MatchCCorrNormed slides the template over the frame computing normalized
// cross-correlation weighted by the mask.
func MatchCCorrNormed(frame, tmpl, mask *Plane) MatchStats {
	tw, th := tmpl.W, tmpl.H
	if tw > frame.W || th > frame.H || tw == 0 || th == 0 {
		return MatchStats{}
	}
	if mask == nil || mask.W != tw || mask.H != th {
		flat := NewPlane(tw, th)
		for i := range flat.Pix {
			flat.Pix[i] = 255
		}
		mask = flat
	}

	weights := make([]float64, len(mask.Pix))
	masked := make([]float64, len(tmpl.Pix))
	var tmplSq float64
	for i := range mask.Pix {
		weights[i] = mask.Pix[i] / 255
		masked[i] = tmpl.Pix[i] * weights[i]
		tmplSq += masked[i] * masked[i]
	}
	if tmplSq < epsilon {
		return MatchStats{}
	}

	return slide(frame, tw, th, func(ox, oy int) float64 {
		var cross, winSq float64
		for y := 0; y < th; y++ {
			row := frame.Pix[(oy+y)*frame.W+ox:]
			for x := 0; x < tw; x++ {
				i := y*tw + x
				w := row[x] * weights[i]
				cross += w * masked[i]
				winSq += w * w
			}
		}
		denom := math.Sqrt(tmplSq * winSq)
		if denom < epsilon {
			return 0
		}
		return cross / denom
	})
}

// slide evaluates score at every placement and accumulates surface stats.
func slide(frame *Plane, tw, th int, score func(ox, oy int) float64) MatchStats {
	outW := frame.W - tw + 1
	outH := frame.H - th + 1

	stats := MatchStats{Max: math.Inf(-1), Valid: true}
	var sum, sq float64
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			v := score(ox, oy)
			sum += v
			sq += v * v
			if v > stats.Max {
				stats.Max = v
				stats.MaxX = ox
				stats.MaxY = oy
			}
		}
	}
	count := float64(outW * outH)
	stats.Mean = sum / count
	variance := sq/count - stats.Mean*stats.Mean
	if variance > 0 {
		stats.Std = math.Sqrt(variance)
	}
	return stats
}
