package ledger

import (
	"math"
	"sort"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/currency"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
)

// Describe summarizes a value column. Monetary fields are formatted BRL
// strings; fields that are undefined for the data (the mean of no rows, the
// deviation of one row) format as zero.
type Describe struct {
	Count int    `json:"count" yaml:"count"`
	Mean  string `json:"mean" yaml:"mean"`
	Std   string `json:"std" yaml:"std"`
	Min   string `json:"min" yaml:"min"`
	P25   string `json:"25%" yaml:"25%"`
	P50   string `json:"50%" yaml:"50%"`
	P75   string `json:"75%" yaml:"75%"`
	Max   string `json:"max" yaml:"max"`
	Sum   string `json:"sum" yaml:"sum"`
}

// Map returns the statistics keyed the way the info templates expect.
func (d Describe) Map() map[string]any {
	return map[string]any{
		"count": d.Count,
		"mean":  d.Mean,
		"std":   d.Std,
		"min":   d.Min,
		"25%":   d.P25,
		"50%":   d.P50,
		"75%":   d.P75,
		"max":   d.Max,
		"sum":   d.Sum,
	}
}

// describeValues computes the statistics of values.
func describeValues(values []float64) Describe {
	n := len(values)
	d := Describe{Count: n}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	d.Sum = money(sum)

	if n == 0 {
		zero := currency.Zero
		d.Mean, d.Std, d.Min, d.P25, d.P50, d.P75, d.Max = zero, zero, zero, zero, zero, zero, zero
		return d
	}

	mean := sum / float64(n)
	d.Mean = money(mean)
	d.Std = money(sampleStd(values, mean))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	d.Min = money(sorted[0])
	d.Max = money(sorted[n-1])
	d.P25 = money(quantile(sorted, 0.25))
	d.P50 = money(quantile(sorted, 0.50))
	d.P75 = money(quantile(sorted, 0.75))

	return d
}

func money(v float64) string {
	return currency.FormatBRL(numeric.Round2(v))
}

// sampleStd is the standard deviation with n-1 degrees of freedom.
func sampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	ss := 0.0
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
