/*package density accumulates per-particle quantities onto the cells of a
grid. Accumulators are streaming: each sample is folded in as it is read, so
no particle needs to be held after it has been binned, and partial
accumulators built by separate workers can be merged afterwards.
*/
package density

// Moments tracks the weighted mean and variance of a Dim-dimensional quantity
// in every cell of a grid, using West's weighted update of Welford's
// algorithm. A Moments with Dim 0 only counts samples and sums weights.
type Moments struct {
	Dim    int
	count  []int
	weight []float64
	mean   []float64
	m2     []float64
}

// NewMoments returns empty accumulators for the given number of cells.
func NewMoments(cells, dim int) *Moments {
	return &Moments{
		Dim:    dim,
		count:  make([]int, cells),
		weight: make([]float64, cells),
		mean:   make([]float64, cells*dim),
		m2:     make([]float64, cells*dim),
	}
}

// Cells returns the number of cells tracked.
func (m *Moments) Cells() int { return len(m.count) }

// Add folds the sample x with weight w into a cell. Samples with w <= 0
// are counted but do not move the mean.
func (m *Moments) Add(cell int, x []float64, w float64) {
	m.count[cell]++
	if w <= 0 {
		return
	}
	m.weight[cell] += w
	W := m.weight[cell]
	mean, m2 := m.cell(cell)
	for k := range mean {
		delta := x[k] - mean[k]
		mean[k] += delta * w / W
		m2[k] += w * delta * (x[k] - mean[k])
	}
}

// AddScalar is Add for one dimensional accumulators.
func (m *Moments) AddScalar(cell int, x, w float64) {
	var buf [1]float64
	buf[0] = x
	m.Add(cell, buf[:m.Dim], w)
}

// Merge folds the accumulators of other into m. Both must track the same
// number of cells and dimensions.
func (m *Moments) Merge(other *Moments) {
	if other.Dim != m.Dim || other.Cells() != m.Cells() {
		panic("density: merging Moments of different shapes")
	}
	for cell := range m.count {
		m.count[cell] += other.count[cell]
		wb := other.weight[cell]
		if wb == 0 {
			continue
		}
		wa := m.weight[cell]
		W := wa + wb
		ma, m2a := m.cell(cell)
		mb, m2b := other.cell(cell)
		for k := range ma {
			delta := mb[k] - ma[k]
			ma[k] += delta * wb / W
			m2a[k] += m2b[k] + delta*delta*wa*wb/W
		}
		m.weight[cell] = W
	}
}

// Reset zeroes every accumulator.
func (m *Moments) Reset() {
	for i := range m.count {
		m.count[i], m.weight[i] = 0, 0
	}
	for i := range m.mean {
		m.mean[i], m.m2[i] = 0, 0
	}
}

func (m *Moments) Count(cell int) int      { return m.count[cell] }
func (m *Moments) Weight(cell int) float64 { return m.weight[cell] }

// Mean writes the weighted mean of a cell into out and returns it.
func (m *Moments) Mean(cell int, out []float64) []float64 {
	out = grow(out, m.Dim)
	mean, _ := m.cell(cell)
	copy(out, mean)
	return out
}

// Variance writes the weighted population variance of a cell into out and
// returns it. Cells with no weight have zero variance.
func (m *Moments) Variance(cell int, out []float64) []float64 {
	out = grow(out, m.Dim)
	_, m2 := m.cell(cell)
	W := m.weight[cell]
	for k := range out {
		if W > 0 {
			out[k] = m2[k] / W
		} else {
			out[k] = 0
		}
	}
	return out
}

func (m *Moments) cell(cell int) (mean, m2 []float64) {
	lo, hi := cell*m.Dim, (cell+1)*m.Dim
	return m.mean[lo:hi], m.m2[lo:hi]
}

func grow(out []float64, n int) []float64 {
	if cap(out) < n {
		return make([]float64, n)
	}
	return out[:n]
}
