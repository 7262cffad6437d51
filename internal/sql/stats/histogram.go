package stats

import "math"

// HistogramType represents the type of histogram.
type HistogramType int

const (
	// EquiHeightHistogram has buckets with equal number of rows.
	EquiHeightHistogram HistogramType = iota
	// EquiWidthHistogram has buckets with equal value ranges.
	EquiWidthHistogram
)

// Bucket is one histogram bucket over the inclusive range [Lower, Upper].
type Bucket struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
	Count float64 `yaml:"count" json:"count"`
	NDV   float64 `yaml:"ndv" json:"ndv"`
}

// Histogram represents the distribution of the non-null values of a column.
// Buckets are sorted and do not overlap.
type Histogram struct {
	Type    HistogramType
	Buckets []Bucket
}

// TotalCount returns the number of rows described by the histogram.
func (h *Histogram) TotalCount() float64 {
	var total float64
	for _, b := range h.Buckets {
		total += b.Count
	}
	return total
}

// RangeFraction returns the fraction of rows whose value lies in [low, high].
// Partially covered buckets contribute proportionally to the covered width.
func (h *Histogram) RangeFraction(low, high float64) float64 {
	total := h.TotalCount()
	if total <= 0 || low > high {
		return 0
	}
	var rows float64
	for _, b := range h.Buckets {
		if b.Upper < low || b.Lower > high {
			continue
		}
		width := b.Upper - b.Lower
		if width <= 0 {
			rows += b.Count
			continue
		}
		covered := math.Min(b.Upper, high) - math.Max(b.Lower, low)
		if covered <= 0 {
			// Touches a bound only: one distinct value.
			rows += b.Count / math.Max(b.NDV, 1)
			continue
		}
		rows += b.Count * covered / width
	}
	return math.Min(1, rows/total)
}

// EqualFraction returns the fraction of rows equal to v.
func (h *Histogram) EqualFraction(v float64) float64 {
	total := h.TotalCount()
	if total <= 0 {
		return 0
	}
	for _, b := range h.Buckets {
		if v >= b.Lower && v <= b.Upper {
			return b.Count / math.Max(b.NDV, 1) / total
		}
	}
	return 0
}

// Restrict returns the part of the histogram within [low, high].
func (h *Histogram) Restrict(low, high float64) *Histogram {
	out := &Histogram{Type: h.Type}
	for _, b := range h.Buckets {
		if b.Upper < low || b.Lower > high {
			continue
		}
		width := b.Upper - b.Lower
		lo, hi := math.Max(b.Lower, low), math.Min(b.Upper, high)
		frac := 1.0
		if width > 0 {
			frac = (hi - lo) / width
			if frac <= 0 {
				frac = 1 / math.Max(b.NDV, 1)
			}
		}
		out.Buckets = append(out.Buckets, Bucket{
			Lower: lo,
			Upper: hi,
			Count: b.Count * frac,
			NDV:   math.Max(1, b.NDV*frac),
		})
	}
	return out
}

// Scale returns the histogram with every bucket count multiplied by sel.
func (h *Histogram) Scale(sel float64) *Histogram {
	out := &Histogram{Type: h.Type, Buckets: make([]Bucket, len(h.Buckets))}
	for i, b := range h.Buckets {
		b.Count *= sel
		out.Buckets[i] = b
	}
	return out
}
