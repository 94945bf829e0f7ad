package motif

import (
	"errors"

	"bitbucket.org/Davydov/gomotif/seq"
)

// ErrDegenerateBackground is returned when a background distribution
// assigns zero probability to a symbol and a log-odds score is
// requested. A correctly constructed background never triggers it:
// whole-corpus counting gives positive mass to every symbol present
// in the data and the Gibbs sampler smooths matrix cells with a
// pseudocount.
var ErrDegenerateBackground = errors.New("background probability is zero for a symbol")

// Background is a symbol probability distribution indexed by alphabet
// symbol index; entries sum to one.
type Background []float64

// NewBackground builds the background distribution from symbol counts
// over whole sequences (the EM variant).
func NewBackground(c *seq.Corpus) Background {
	bg := make(Background, c.Alphabet.Len())
	for i := range c.Seqs {
		for _, sym := range c.Seqs[i].Code {
			bg[sym]++
		}
	}
	bg.normalize()
	return bg
}

// NewOutsideBackground builds the background distribution from symbol
// counts outside of every sequence's current motif window (the Gibbs
// variant). All sequences contribute, including the one held out for
// resampling.
func NewOutsideBackground(c *seq.Corpus, motifLen int, offsets []int) Background {
	bg := make(Background, c.Alphabet.Len())
	for i := range c.Seqs {
		code := c.Seqs[i].Code
		for p, sym := range code {
			if p >= offsets[i] && p < offsets[i]+motifLen {
				continue
			}
			bg[sym]++
		}
	}
	bg.normalize()
	return bg
}

func (bg Background) normalize() {
	var total float64
	for _, v := range bg {
		total += v
	}
	if total == 0 {
		return
	}
	for i := range bg {
		bg[i] /= total
	}
}

// Sum returns the total probability mass (one up to rounding for a
// well-formed background).
func (bg Background) Sum() (s float64) {
	for _, v := range bg {
		s += v
	}
	return
}

// Map returns the distribution keyed by alphabet letter.
func (bg Background) Map(a *seq.Alphabet) map[string]float64 {
	m := make(map[string]float64, len(bg))
	for i, v := range bg {
		m[string(a.Letter(i))] = v
	}
	return m
}
