// Package em implements expectation-maximization refinement of the
// motif model: soft posterior responsibilities over window start
// offsets are recomputed from the current matrices (expectation) and
// the matrices are re-estimated from the responsibilities
// (maximization) until the frequency matrix stops changing.
package em

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"sync"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gomotif/checkpoint"
	"bitbucket.org/Davydov/gomotif/motif"
	"bitbucket.org/Davydov/gomotif/seq"
)

// log is the global logging variable.
var log = logging.MustGetLogger("em")

const (
	// defaultThreshold is the convergence threshold for the
	// squared distance between successive frequency matrices.
	defaultThreshold = 1e-6
	// defaultMaxIterations bounds the loop on inputs which never
	// reach the convergence threshold.
	defaultMaxIterations = 1000
	// seedWeight is the probability of the seed window's symbol in
	// every column of the initial frequency matrix.
	seedWeight = 0.5
)

// EM holds the state of an expectation-maximization run.
type EM struct {
	corpus   *seq.Corpus
	motifLen int

	// MaxIterations is the iteration cap; the loop stops there
	// even without convergence.
	MaxIterations int
	// Threshold is the convergence threshold.
	Threshold float64
	// Quiet disables trajectory output.
	Quiet bool

	repPeriod int
	output    io.Writer
	sig       chan os.Signal
	chk       *checkpoint.IO

	pfm       *motif.Matrix
	bg        motif.Background
	resp      [][]float64
	i         int
	converged bool
}

// New creates an EM run for a corpus and a motif length. The motif
// length is validated eagerly.
func New(c *seq.Corpus, motifLen int) (*EM, error) {
	if err := motif.ValidateLength(c, motifLen); err != nil {
		return nil, err
	}
	return &EM{
		corpus:        c,
		motifLen:      motifLen,
		MaxIterations: defaultMaxIterations,
		Threshold:     defaultThreshold,
		repPeriod:     10,
		output:        os.Stdout,
	}, nil
}

// SetReportPeriod sets the trajectory reporting period. Periods
// below one report every iteration.
func (e *EM) SetReportPeriod(period int) {
	if period < 1 {
		period = 1
	}
	e.repPeriod = period
}

// SetOutput sets the trajectory output writer.
func (e *EM) SetOutput(w io.Writer) {
	e.output = w
}

// WatchSignals makes the loop exit early on any of the given signals,
// returning the best-so-far matrices.
func (e *EM) WatchSignals(sigs ...os.Signal) {
	e.sig = make(chan os.Signal, 1)
	signal.Notify(e.sig, sigs...)
}

// SetCheckpointIO enables periodic checkpointing.
func (e *EM) SetCheckpointIO(chk *checkpoint.IO) {
	e.chk = chk
}

// Run performs EM iterations until convergence or the iteration cap.
func (e *EM) Run() error {
	e.pfm = e.seedPFM()
	e.bg = motif.NewBackground(e.corpus)
	e.converged = false

	e.printHeader()
	lastReported := -1
	d := 0.0
Iter:
	for e.i = 0; e.i < e.MaxIterations; e.i++ {
		e.resp = e.expectation()
		newPFM := motif.NewWeightedPFM(e.corpus, e.motifLen, e.resp)
		d = motif.SquaredDistance(e.pfm, newPFM)
		e.pfm = newPFM
		e.bg = motif.NewBackground(e.corpus)

		if e.i%e.repPeriod == 0 {
			e.printLine(e.i, d)
			lastReported = e.i
		}
		e.saveCheckpoint(false)

		if d < e.Threshold {
			e.converged = true
			log.Noticef("Converged after %d iterations (d=%g)", e.i+1, d)
			break
		}

		select {
		case s := <-e.sig:
			log.Warningf("Received signal %v, exiting.", s)
			break Iter
		default:
		}
	}
	last := e.i
	if last == e.MaxIterations {
		// the loop ran out, the last executed iteration is one lower
		last--
	}
	if last != lastReported {
		e.printLine(last, d)
	}
	if !e.converged {
		log.Noticef("No convergence after %d iterations (d=%g)", e.i, d)
	}
	e.saveCheckpoint(true)
	return nil
}

// seedPFM scans every window of the first sequence as a candidate
// motif seed and keeps the one whose best-window odds summed over the
// corpus are the largest. A frequency matrix estimated evenly from
// all windows is a fixed point of the update rules and refines to the
// corpus letter composition instead of a motif; the loop needs an
// initial matrix already leaning towards one window.
func (e *EM) seedPFM() *motif.Matrix {
	bg := motif.NewBackground(e.corpus)
	var best *motif.Matrix
	bestScore := math.Inf(-1)
	for o := 0; o < e.corpus.NWindows(0, e.motifLen); o++ {
		pfm := motif.NewSeedPFM(e.corpus, e.motifLen, 0, o, seedWeight)
		score := 0.0
		for i := range e.corpus.Seqs {
			code := e.corpus.Seqs[i].Code
			top := 0.0
			for start := 0; start < e.corpus.NWindows(i, e.motifLen); start++ {
				odds := motif.WindowLikelihood(code, start, pfm) /
					motif.BackgroundLikelihood(code, start, e.motifLen, bg)
				if odds > top {
					top = odds
				}
			}
			score += math.Log(top)
		}
		if score > bestScore {
			bestScore = score
			best = pfm
		}
	}
	log.Infof("Seed window search: best score %g, consensus %s", bestScore, best.Consensus())
	return best
}

// expectation computes posterior responsibilities for every sequence.
// Sequences are scored concurrently: every window likelihood depends
// only on the immutable corpus and the current matrices.
func (e *EM) expectation() [][]float64 {
	n := e.corpus.NSeq()
	resp := make([][]float64, n)

	tasks := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				resp[i] = e.responsibilities(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	return resp
}

// responsibilities computes the normalized posterior weights over the
// window start offsets of one sequence.
func (e *EM) responsibilities(i int) []float64 {
	code := e.corpus.Seqs[i].Code
	nw := e.corpus.NWindows(i, e.motifLen)
	w := make([]float64, nw)
	total := 0.0
	for start := 0; start < nw; start++ {
		lm := motif.WindowLikelihood(code, start, e.pfm)
		lb := motif.BackgroundLikelihood(code, start, e.motifLen, e.bg)
		w[start] = lm / (lm + lb)
		total += w[start]
	}
	if total == 0 {
		// no window has motif mass, fall back to uniform
		for start := range w {
			w[start] = 1 / float64(nw)
		}
		return w
	}
	for start := range w {
		w[start] /= total
	}
	return w
}

// PFM returns the current position frequency matrix.
func (e *EM) PFM() *motif.Matrix {
	return e.pfm
}

// Background returns the current background distribution.
func (e *EM) Background() motif.Background {
	return e.bg
}

// Responsibilities returns the current posterior responsibilities,
// one row per sequence.
func (e *EM) Responsibilities() [][]float64 {
	return e.resp
}

// Consensus returns the per-column argmax motif of the current
// frequency matrix.
func (e *EM) Consensus() string {
	return e.pfm.Consensus()
}

// Converged reports whether the loop reached the convergence
// threshold before the iteration cap.
func (e *EM) Converged() bool {
	return e.converged
}

// Iterations returns the index of the last started iteration; it
// equals the iteration cap when the loop ran out without
// convergence.
func (e *EM) Iterations() int {
	return e.i
}

func (e *EM) printHeader() {
	if !e.Quiet {
		fmt.Fprintf(e.output, "iteration\tdistance\tconsensus\n")
	}
}

func (e *EM) printLine(iter int, d float64) {
	if !e.Quiet {
		fmt.Fprintf(e.output, "%d\t%g\t%s\n", iter, d, e.pfm.Consensus())
	}
}

func (e *EM) saveCheckpoint(final bool) {
	if e.chk == nil || (!final && !e.chk.Old()) {
		return
	}
	err := e.chk.Save(&checkpoint.State{
		Iter:      e.i,
		Consensus: e.pfm.Consensus(),
		PFM:       e.pfm.Cells(),
		Final:     final,
	})
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}
