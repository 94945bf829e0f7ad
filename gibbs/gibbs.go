// Package gibbs implements leave-one-out Gibbs sampling refinement of
// the motif model: one hard latent start offset is kept per sequence,
// and every iteration one sequence's offset is resampled from a
// categorical distribution built from the consensus of all other
// sequences.
package gibbs

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gomotif/checkpoint"
	"bitbucket.org/Davydov/gomotif/motif"
	"bitbucket.org/Davydov/gomotif/seq"
)

// log is the global logging variable.
var log = logging.MustGetLogger("gibbs")

// defaultPseudocount smooths the leave-one-out probability matrix so
// the log-odds conversion never sees a zero cell.
const defaultPseudocount = 1e-6

// Result is a per-iteration report of the sampler.
type Result struct {
	// Iter is the iteration number.
	Iter int
	// Consensus is the per-column argmax motif of the weight matrix.
	Consensus string
	// LogLikelihood is the sum of per-column weight-matrix maxima.
	LogLikelihood float64
}

// Gibbs holds the state of a Gibbs sampling run.
type Gibbs struct {
	corpus   *seq.Corpus
	motifLen int
	rnd      *rand.Rand

	// Pseudocount is the smoothing constant used when building
	// the leave-one-out probability matrix.
	Pseudocount float64
	// Quiet disables trajectory output.
	Quiet bool

	repPeriod int
	output    io.Writer
	sig       chan os.Signal
	chk       *checkpoint.IO

	offsets []int
	// hold-out bookkeeping for the current round
	excluded  []bool
	nExcluded int

	i        int
	trace    []float64
	last     Result
	best     Result
	bestOffs []int
}

// New creates a Gibbs sampling run for a corpus and a motif length,
// drawing initial latent offsets uniformly from the valid window
// starts of every sequence. The motif length is validated eagerly.
// The random source drives both hold-out selection and offset
// sampling; seed it for reproducible runs.
func New(c *seq.Corpus, motifLen int, rnd *rand.Rand) (*Gibbs, error) {
	if err := motif.ValidateLength(c, motifLen); err != nil {
		return nil, err
	}
	g := &Gibbs{
		corpus:      c,
		motifLen:    motifLen,
		rnd:         rnd,
		Pseudocount: defaultPseudocount,
		repPeriod:   10,
		output:      os.Stdout,
		offsets:     make([]int, c.NSeq()),
		excluded:    make([]bool, c.NSeq()),
	}
	for i := range g.offsets {
		g.offsets[i] = rnd.Intn(c.NWindows(i, motifLen))
	}
	return g, nil
}

// SetOffsets replaces the initial latent offsets, e.g. to resume from
// a checkpoint.
func (g *Gibbs) SetOffsets(offsets []int) error {
	if len(offsets) != g.corpus.NSeq() {
		return errors.New("wrong number of offsets")
	}
	for i, o := range offsets {
		if o < 0 || o >= g.corpus.NWindows(i, g.motifLen) {
			return fmt.Errorf("offset %d is out of range for sequence %d", o, i)
		}
	}
	copy(g.offsets, offsets)
	return nil
}

// Offsets returns a copy of the current latent alignment state.
func (g *Gibbs) Offsets() []int {
	offsets := make([]int, len(g.offsets))
	copy(offsets, g.offsets)
	return offsets
}

// SetReportPeriod sets the trajectory reporting period. Periods
// below one report every iteration.
func (g *Gibbs) SetReportPeriod(period int) {
	if period < 1 {
		period = 1
	}
	g.repPeriod = period
}

// SetOutput sets the trajectory output writer.
func (g *Gibbs) SetOutput(w io.Writer) {
	g.output = w
}

// WatchSignals makes the loop exit early on any of the given signals,
// returning the best-so-far state.
func (g *Gibbs) WatchSignals(sigs ...os.Signal) {
	g.sig = make(chan os.Signal, 1)
	signal.Notify(g.sig, sigs...)
}

// SetCheckpointIO enables periodic checkpointing.
func (g *Gibbs) SetCheckpointIO(chk *checkpoint.IO) {
	g.chk = chk
}

// Run performs the given number of sampling iterations. There is no
// statistical convergence test: the sampler reports every iteration
// and keeps the best-scoring state seen so far. A failed matrix
// build aborts the run with the current state intact.
func (g *Gibbs) Run(iterations int) error {
	g.printHeader()
	g.trace = make([]float64, 0, iterations)
	lastReported := -1
Iter:
	for g.i = 0; g.i < iterations; g.i++ {
		holdOut := g.selectHoldOut()

		// background counts use the pre-update offsets of all
		// sequences, the matrix leaves the held-out one out
		bg := motif.NewOutsideBackground(g.corpus, g.motifLen, g.offsets)
		ppm := motif.NewLeaveOneOutPPM(g.corpus, g.motifLen, g.offsets, holdOut, g.Pseudocount)
		pwm, err := ppm.PWM(bg)
		if err != nil {
			// only possible when some symbol never occurs
			// outside the current motif windows
			return fmt.Errorf("iteration %d: building weight matrix: %w", g.i, err)
		}

		g.offsets[holdOut] = g.sampleOffset(holdOut, ppm, bg)

		g.last = Result{
			Iter:          g.i,
			Consensus:     pwm.Consensus(),
			LogLikelihood: pwm.MaxScoreSum(),
		}
		g.trace = append(g.trace, g.last.LogLikelihood)
		if g.bestOffs == nil || g.last.LogLikelihood > g.best.LogLikelihood {
			g.best = g.last
			g.bestOffs = g.Offsets()
		}

		g.shiftPhase()

		if g.i%g.repPeriod == 0 {
			g.printLine()
			lastReported = g.i
		}
		g.saveCheckpoint(false)

		select {
		case s := <-g.sig:
			log.Warningf("Received signal %v, exiting.", s)
			break Iter
		default:
		}
	}
	if g.last.Iter != lastReported && g.i > 0 {
		g.printLine()
	}
	g.saveCheckpoint(true)
	return nil
}

// shiftPhase moves the whole alignment one position left or right
// when that improves the consensus log-likelihood. Resampling a
// single sequence cannot escape an alignment locked one position off
// the strongest phase: one moved offset scores worse against the
// other, consistently shifted windows.
func (g *Gibbs) shiftPhase() {
	cur, ok := g.alignmentScore(g.offsets)
	if !ok {
		return
	}
	for _, d := range []int{-1, 1} {
		shifted := g.shiftedOffsets(d)
		if shifted == nil {
			continue
		}
		if s, ok := g.alignmentScore(shifted); ok && s > cur {
			cur = s
			copy(g.offsets, shifted)
		}
	}
}

// shiftedOffsets returns the alignment moved d positions, nil when
// any window would leave its sequence.
func (g *Gibbs) shiftedOffsets(d int) []int {
	shifted := make([]int, len(g.offsets))
	for i, o := range g.offsets {
		o += d
		if o < 0 || o >= g.corpus.NWindows(i, g.motifLen) {
			return nil
		}
		shifted[i] = o
	}
	return shifted
}

// alignmentScore scores an alignment by the consensus log-likelihood
// of the matrices estimated from all sequences.
func (g *Gibbs) alignmentScore(offsets []int) (float64, bool) {
	bg := motif.NewOutsideBackground(g.corpus, g.motifLen, offsets)
	ppm := motif.NewLeaveOneOutPPM(g.corpus, g.motifLen, offsets, -1, g.Pseudocount)
	pwm, err := ppm.PWM(bg)
	if err != nil {
		return 0, false
	}
	return pwm.MaxScoreSum(), true
}

// selectHoldOut draws the sequence to resample uniformly from the
// sequences not yet held out in the current round. Once every
// sequence has been held out the exclusion set is cleared, so every
// sequence is revisited before any repeats.
func (g *Gibbs) selectHoldOut() int {
	if g.nExcluded == len(g.excluded) {
		for i := range g.excluded {
			g.excluded[i] = false
		}
		g.nExcluded = 0
	}
	remaining := make([]int, 0, len(g.excluded)-g.nExcluded)
	for i, ex := range g.excluded {
		if !ex {
			remaining = append(remaining, i)
		}
	}
	holdOut := remaining[g.rnd.Intn(len(remaining))]
	g.excluded[holdOut] = true
	g.nExcluded++
	return holdOut
}

// sampleOffset draws a new start offset for the held-out sequence
// from the categorical distribution over its valid windows.
func (g *Gibbs) sampleOffset(holdOut int, ppm *motif.Matrix, bg motif.Background) int {
	w := g.candidateWeights(holdOut, ppm, bg)
	r := g.rnd.Float64()
	acc := 0.0
	for o, p := range w {
		acc += p
		if r < acc {
			return o
		}
	}
	return len(w) - 1
}

// candidateWeights builds the normalized candidate distribution over
// window start offsets of the held-out sequence. The weight of an
// offset is the product of the linear odds ratios ppm[sym][i]/bg[sym]
// over the window's columns, seeded with the likelihood floor. The
// ratios are kept linear (not log-odds) since a categorical draw
// needs non-negative weights. If the whole vector underflows to zero
// the distribution falls back to uniform.
func (g *Gibbs) candidateWeights(holdOut int, ppm *motif.Matrix, bg motif.Background) []float64 {
	code := g.corpus.Seqs[holdOut].Code
	nw := g.corpus.NWindows(holdOut, g.motifLen)
	w := make([]float64, nw)
	total := 0.0
	for o := 0; o < nw; o++ {
		p := motif.LikelihoodFloor
		for j := 0; j < g.motifLen; j++ {
			sym := code[o+j]
			p *= ppm.At(int(sym), j) / bg[sym]
		}
		w[o] = p
		total += p
	}
	if total == 0 {
		for o := range w {
			w[o] = 1 / float64(nw)
		}
		return w
	}
	for o := range w {
		w[o] /= total
	}
	return w
}

// Trace returns the per-iteration consensus log-likelihood values.
func (g *Gibbs) Trace() []float64 {
	return g.trace
}

// Last returns the report of the last finished iteration.
func (g *Gibbs) Last() Result {
	return g.last
}

// Best returns the best-scoring report seen during the run.
func (g *Gibbs) Best() Result {
	return g.best
}

// BestOffsets returns the latent alignment state of the
// best-scoring iteration.
func (g *Gibbs) BestOffsets() []int {
	offsets := make([]int, len(g.bestOffs))
	copy(offsets, g.bestOffs)
	return offsets
}

func (g *Gibbs) printHeader() {
	if !g.Quiet {
		fmt.Fprintf(g.output, "iteration\tlogLikelihood\tconsensus\n")
	}
}

func (g *Gibbs) printLine() {
	if !g.Quiet {
		fmt.Fprintf(g.output, "%d\t%f\t%s\n", g.last.Iter, g.last.LogLikelihood, g.last.Consensus)
	}
}

func (g *Gibbs) saveCheckpoint(final bool) {
	if g.chk == nil || (!final && !g.chk.Old()) {
		return
	}
	err := g.chk.Save(&checkpoint.State{
		Iter:          g.i,
		LogLikelihood: g.best.LogLikelihood,
		Consensus:     g.best.Consensus,
		Offsets:       g.offsets,
		Final:         final,
	})
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}
