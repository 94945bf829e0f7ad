// Package motif implements the position matrix model shared by the
// expectation-maximization and Gibbs-sampling motif finders: position
// frequency/probability matrices, background distributions, log-odds
// weight matrices and window likelihoods.
package motif

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/gomotif/seq"
)

// InvalidMotifLengthError is returned when no valid motif window
// exists for the requested length.
type InvalidMotifLengthError struct {
	Length    int
	MinSeqLen int
}

func (e *InvalidMotifLengthError) Error() string {
	return fmt.Sprintf("invalid motif length %d (shortest sequence has length %d)",
		e.Length, e.MinSeqLen)
}

// ValidateLength checks that at least one motif window of the given
// length exists in every sequence of the corpus. A motif spanning a
// whole sequence (single window at offset 0) is valid.
func ValidateLength(c *seq.Corpus, motifLen int) error {
	if motifLen <= 0 || motifLen > c.MinLen() {
		return &InvalidMotifLengthError{Length: motifLen, MinSeqLen: c.MinLen()}
	}
	return nil
}

// Matrix is an alphabet-by-position matrix: one row per alphabet
// symbol, one column per motif position. It backs both probability
// matrices (PFM/PPM) and log-odds weight matrices (PWM). A matrix is
// built fresh by its constructor and not mutated afterwards.
type Matrix struct {
	a *seq.Alphabet
	m *mat64.Dense
}

func newMatrix(a *seq.Alphabet, motifLen int) *Matrix {
	return &Matrix{a: a, m: mat64.NewDense(a.Len(), motifLen, nil)}
}

// Len returns the motif length (number of columns).
func (m *Matrix) Len() int {
	_, c := m.m.Dims()
	return c
}

// Alphabet returns the alphabet the matrix rows are indexed by.
func (m *Matrix) Alphabet() *seq.Alphabet {
	return m.a
}

// At returns the entry for an alphabet symbol index at a motif
// position.
func (m *Matrix) At(sym, pos int) float64 {
	return m.m.At(sym, pos)
}

// Cells returns all matrix entries in row-major order (used for
// checkpoints).
func (m *Matrix) Cells() []float64 {
	rows, cols := m.m.Dims()
	cells := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		cells = append(cells, m.m.RawRowView(i)...)
	}
	return cells
}

// String returns a tab-separated representation, one row per symbol.
func (m *Matrix) String() string {
	var b bytes.Buffer
	b.WriteString("<Matrix")
	for i := 0; i < m.a.Len(); i++ {
		b.WriteString("\n")
		b.WriteByte(m.a.Letter(i))
		for j := 0; j < m.Len(); j++ {
			b.WriteByte('\t')
			b.WriteString(strconv.FormatFloat(m.m.At(i, j), 'f', 4, 64))
		}
	}
	b.WriteString(">")
	return b.String()
}

// NewSeedPFM builds a position frequency matrix concentrated on a
// single window: in every column the window's symbol gets the seed
// weight w and the remaining 1-w is split evenly over the other
// symbols.
func NewSeedPFM(c *seq.Corpus, motifLen, seqIdx, offset int, w float64) *Matrix {
	pfm := newMatrix(c.Alphabet, motifLen)
	rest := (1 - w) / float64(c.Alphabet.Len()-1)
	code := c.Seqs[seqIdx].Code
	for j := 0; j < motifLen; j++ {
		for i := 0; i < c.Alphabet.Len(); i++ {
			pfm.m.Set(i, j, rest)
		}
		pfm.m.Set(int(code[offset+j]), j, w)
	}
	return pfm
}

// NewWeightedPFM rebuilds the position frequency matrix in the EM
// maximization step. Every window contributes its posterior
// responsibility to its columns; cells are divided by the number of
// sequences, so every sequence contributes equal total weight.
func NewWeightedPFM(c *seq.Corpus, motifLen int, resp [][]float64) *Matrix {
	pfm := newMatrix(c.Alphabet, motifLen)
	for i := range c.Seqs {
		r := resp[i]
		addWindows(pfm, c.Seqs[i].Code, motifLen, func(start int) float64 { return r[start] })
	}
	pfm.scale(1 / float64(c.NSeq()))
	return pfm
}

// NewLeaveOneOutPPM builds a position probability matrix from unit
// counts at the current latent window of every sequence except the
// held-out one. Counts are smoothed: pseudocount/k is added to each
// cell and every column is divided by (column total + pseudocount),
// which keeps column sums at one and every cell positive.
func NewLeaveOneOutPPM(c *seq.Corpus, motifLen int, offsets []int, holdOut int, pseudocount float64) *Matrix {
	ppm := newMatrix(c.Alphabet, motifLen)
	for i := range c.Seqs {
		if i == holdOut {
			continue
		}
		code := c.Seqs[i].Code
		for j := 0; j < motifLen; j++ {
			sym := int(code[offsets[i]+j])
			ppm.m.Set(sym, j, ppm.m.At(sym, j)+1)
		}
	}
	k := float64(c.Alphabet.Len())
	for j := 0; j < motifLen; j++ {
		total := ppm.columnSum(j)
		for i := 0; i < c.Alphabet.Len(); i++ {
			ppm.m.Set(i, j, (ppm.m.At(i, j)+pseudocount/k)/(total+pseudocount))
		}
	}
	return ppm
}

// PWM converts a position probability matrix to a position weight
// matrix: score[sym][pos] = log2(ppm[sym][pos]/background[sym]).
// ErrDegenerateBackground is returned if the background assigns zero
// mass to any symbol.
func (m *Matrix) PWM(bg Background) (*Matrix, error) {
	pwm := newMatrix(m.a, m.Len())
	for i := 0; i < m.a.Len(); i++ {
		if bg[i] == 0 {
			return nil, ErrDegenerateBackground
		}
		for j := 0; j < m.Len(); j++ {
			pwm.m.Set(i, j, math.Log2(m.m.At(i, j)/bg[i]))
		}
	}
	return pwm, nil
}

// Consensus returns the motif string built from the per-column
// maximum entry. For a PWM this is the most likely motif relative to
// the background; for a PFM it is the most frequent symbol per
// column.
func (m *Matrix) Consensus() string {
	b := make([]byte, m.Len())
	for j := 0; j < m.Len(); j++ {
		best := 0
		for i := 1; i < m.a.Len(); i++ {
			if m.m.At(i, j) > m.m.At(best, j) {
				best = i
			}
		}
		b[j] = m.a.Letter(best)
	}
	return string(b)
}

// MaxScoreSum returns the sum of per-column maxima. For a PWM this is
// the log-likelihood of the consensus motif relative to the
// background.
func (m *Matrix) MaxScoreSum() (s float64) {
	for j := 0; j < m.Len(); j++ {
		max := m.m.At(0, j)
		for i := 1; i < m.a.Len(); i++ {
			if m.m.At(i, j) > max {
				max = m.m.At(i, j)
			}
		}
		s += max
	}
	return
}

// SquaredDistance returns the sum of squared differences over all
// cells of two matrices of the same shape. It is the convergence
// metric of the EM loop.
func SquaredDistance(a, b *Matrix) (d float64) {
	for i := 0; i < a.a.Len(); i++ {
		for j := 0; j < a.Len(); j++ {
			diff := a.m.At(i, j) - b.m.At(i, j)
			d += diff * diff
		}
	}
	return
}

// addWindows accumulates weight(start) into the columns of every
// valid window of a sequence.
func addWindows(m *Matrix, code []byte, motifLen int, weight func(int) float64) {
	for start := 0; start <= len(code)-motifLen; start++ {
		w := weight(start)
		for j := 0; j < motifLen; j++ {
			sym := int(code[start+j])
			m.m.Set(sym, j, m.m.At(sym, j)+w)
		}
	}
}

func (m *Matrix) columnSum(j int) (s float64) {
	for i := 0; i < m.a.Len(); i++ {
		s += m.m.At(i, j)
	}
	return
}

func (m *Matrix) scale(x float64) {
	m.m.Scale(x, m.m)
}
