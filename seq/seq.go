// Package seq provides alphabets and index-encoded sequence
// collections used by the motif model.
package seq

import (
	"errors"
	"fmt"

	"bitbucket.org/Davydov/gomotif/bio"
)

// Alphabet is a fixed set of sequence symbols. Matrices are indexed
// by a symbol's position in the alphabet; the reverse lookup is a
// table instead of a map since it is used on the hot path.
type Alphabet struct {
	letters string
	index   [256]int16
}

// NewAlphabet creates an alphabet from a string of distinct symbols.
func NewAlphabet(letters string) (*Alphabet, error) {
	if len(letters) < 2 {
		return nil, errors.New("alphabet needs at least two symbols")
	}
	a := &Alphabet{letters: letters}
	for i := range a.index {
		a.index[i] = -1
	}
	for i := 0; i < len(letters); i++ {
		if a.index[letters[i]] >= 0 {
			return nil, fmt.Errorf("duplicate symbol %q in alphabet", letters[i])
		}
		a.index[letters[i]] = int16(i)
	}
	return a, nil
}

func mustAlphabet(letters string) *Alphabet {
	a, err := NewAlphabet(letters)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	// DNA is the four letter nucleotide alphabet.
	DNA = mustAlphabet("ACGT")
	// Protein is the twenty letter amino-acid alphabet.
	Protein = mustAlphabet("ACDEFGHIKLMNPQRSTVWY")
)

// Len returns the number of symbols in the alphabet.
func (a *Alphabet) Len() int {
	return len(a.letters)
}

// Letter returns the symbol with a given index.
func (a *Alphabet) Letter(i int) byte {
	return a.letters[i]
}

// Index returns the index of a symbol, -1 if the symbol is not part
// of the alphabet.
func (a *Alphabet) Index(c byte) int {
	return int(a.index[c])
}

// String returns all alphabet symbols.
func (a *Alphabet) String() string {
	return a.letters
}

// Sequence is an index-encoded sequence: every byte of Code is the
// alphabet index of the original letter.
type Sequence struct {
	Name string
	Code []byte
}

// Corpus is an ordered collection of sequences over a common
// alphabet. Sequences are immutable once encoded.
type Corpus struct {
	Alphabet *Alphabet
	Seqs     []Sequence
}

// ToCorpus encodes sequences using the alphabet. An error is
// returned for an empty collection, an empty sequence or a symbol
// outside of the alphabet.
func ToCorpus(seqs bio.Sequences, a *Alphabet) (*Corpus, error) {
	if len(seqs) == 0 {
		return nil, errors.New("empty sequence collection")
	}
	c := &Corpus{
		Alphabet: a,
		Seqs:     make([]Sequence, 0, len(seqs)),
	}
	for _, seq := range seqs {
		if len(seq.Sequence) == 0 {
			return nil, fmt.Errorf("sequence %s is empty", seq.Name)
		}
		code := make([]byte, len(seq.Sequence))
		for i := 0; i < len(seq.Sequence); i++ {
			l := a.Index(seq.Sequence[i])
			if l < 0 {
				return nil, fmt.Errorf("sequence %s: symbol %q is not in the alphabet",
					seq.Name, seq.Sequence[i])
			}
			code[i] = byte(l)
		}
		c.Seqs = append(c.Seqs, Sequence{Name: seq.Name, Code: code})
	}
	return c, nil
}

// NSeq returns the number of sequences.
func (c *Corpus) NSeq() int {
	return len(c.Seqs)
}

// MinLen returns the length of the shortest sequence.
func (c *Corpus) MinLen() (m int) {
	m = len(c.Seqs[0].Code)
	for _, s := range c.Seqs[1:] {
		if len(s.Code) < m {
			m = len(s.Code)
		}
	}
	return
}

// NWindows returns the number of valid motif windows of a given
// length in sequence i, i.e. the number of start offsets o with
// 0 <= o <= len-motifLen.
func (c *Corpus) NWindows(i, motifLen int) int {
	return len(c.Seqs[i].Code) - motifLen + 1
}

// Decode converts index-encoded bytes back to a letter string.
func (c *Corpus) Decode(code []byte) string {
	b := make([]byte, len(code))
	for i, l := range code {
		b[i] = c.Alphabet.Letter(int(l))
	}
	return string(b)
}
