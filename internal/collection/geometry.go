package collection

// SizeF is a size in unit-cell coordinates.
type SizeF struct {
	W, H float64
}

// PointF is a point in unit-cell coordinates.
type PointF struct {
	X, Y float64
}

// RectF is an axis-aligned rectangle in unit-cell coordinates.
type RectF struct {
	Min  PointF
	Size SizeF
}

// Max returns the bottom-right corner.
func (r RectF) Max() PointF {
	return PointF{X: r.Min.X + r.Size.W, Y: r.Min.Y + r.Size.H}
}

// ScaleToUnit fits a w×h pixel size into the unit square, keeping the aspect
// ratio. The longer edge becomes 1. A degenerate size maps to zero.
func ScaleToUnit(w, h int) SizeF {
	if w <= 0 || h <= 0 {
		return SizeF{}
	}
	if w >= h {
		return SizeF{W: 1, H: float64(h) / float64(w)}
	}
	return SizeF{W: float64(w) / float64(h), H: 1}
}

// cellRect centres size inside the unit cell at grid position (gx, gy).
func cellRect(size SizeF, gx, gy int) RectF {
	return RectF{
		Min: PointF{
			X: (1-size.W)/2 + float64(gx),
			Y: (1-size.H)/2 + float64(gy),
		},
		Size: size,
	}
}
