package gibbs

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"bitbucket.org/Davydov/gomotif/bio"
	"bitbucket.org/Davydov/gomotif/motif"
	"bitbucket.org/Davydov/gomotif/seq"
)

const smallDiff = 1e-9

/*** Tests if a and b are approximately equal ***/
func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

// implantedCorpus generates nSeq random sequences of the given length
// with the motif inserted at a random offset in every sequence.
func implantedCorpus(tst testing.TB, nSeq, length int, m string, rnd *rand.Rand) *seq.Corpus {
	letters := seq.DNA.String()
	seqs := make(bio.Sequences, 0, nSeq)
	for i := 0; i < nSeq; i++ {
		b := make([]byte, length)
		for j := range b {
			b[j] = letters[rnd.Intn(len(letters))]
		}
		copy(b[rnd.Intn(length-len(m)+1):], m)
		seqs = append(seqs, bio.Sequence{Sequence: string(b)})
	}
	c, err := seq.ToCorpus(seqs, seq.DNA)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return c
}

func TestInvalidMotifLength(tst *testing.T) {
	c := implantedCorpus(tst, 5, 20, "ATGC", rand.New(rand.NewSource(1)))
	if _, err := New(c, 21, rand.New(rand.NewSource(1))); err == nil {
		tst.Error("expected an error for a too long motif")
	}
	if _, err := New(c, -3, rand.New(rand.NewSource(1))); err == nil {
		tst.Error("expected an error for a non-positive motif length")
	}
}

func TestInitialOffsets(tst *testing.T) {
	c := implantedCorpus(tst, 10, 50, "ATGCATGC", rand.New(rand.NewSource(2)))
	g, err := New(c, 8, rand.New(rand.NewSource(2)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i, o := range g.Offsets() {
		if o < 0 || o >= c.NWindows(i, 8) {
			tst.Errorf("sequence %d: initial offset %d out of range", i, o)
		}
	}
	if err := g.SetOffsets(make([]int, c.NSeq())); err != nil {
		tst.Error("Error: ", err)
	}
	if err := g.SetOffsets([]int{1, 2}); err == nil {
		tst.Error("expected an error for the wrong number of offsets")
	}
	bad := make([]int, c.NSeq())
	bad[3] = c.NWindows(3, 8)
	if err := g.SetOffsets(bad); err == nil {
		tst.Error("expected an error for an out of range offset")
	}
}

// The sampler is deterministic given a seed.
func TestReproducible(tst *testing.T) {
	run := func() ([]float64, []int) {
		c := implantedCorpus(tst, 10, 60, "ATGCATGC", rand.New(rand.NewSource(3)))
		g, err := New(c, 8, rand.New(rand.NewSource(42)))
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		g.Quiet = true
		if err := g.Run(200); err != nil {
			tst.Fatal("Error: ", err)
		}
		return g.Trace(), g.Offsets()
	}
	trace1, off1 := run()
	trace2, off2 := run()
	if len(trace1) != 200 || len(trace2) != 200 {
		tst.Fatal("unexpected trace lengths:", len(trace1), len(trace2))
	}
	for i := range trace1 {
		if trace1[i] != trace2[i] {
			tst.Fatalf("iteration %d: %v != %v", i, trace1[i], trace2[i])
		}
	}
	for i := range off1 {
		if off1[i] != off2[i] {
			tst.Fatalf("sequence %d: offsets %d != %d", i, off1[i], off2[i])
		}
	}
}

func TestRecoverImplantedMotif(tst *testing.T) {
	m := "ATGCATGCAT"
	c := implantedCorpus(tst, 20, 80, m, rand.New(rand.NewSource(4)))
	g, err := New(c, len(m), rand.New(rand.NewSource(5)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	g.Quiet = true
	if err := g.Run(5000); err != nil {
		tst.Fatal("Error: ", err)
	}
	best := g.Best()
	if best.Consensus != m {
		tst.Errorf("best consensus %s (lnL=%f), want %s", best.Consensus, best.LogLikelihood, m)
	}
	if len(g.BestOffsets()) != c.NSeq() {
		tst.Error("missing best offsets")
	}
}

// A consistently one-off alignment scores worse than the true phase
// and must not survive the phase-shift move.
func TestEscapesShiftedAlignment(tst *testing.T) {
	m := "ATGCATGCAT"
	rnd := rand.New(rand.NewSource(13))
	letters := seq.DNA.String()
	offsets := make([]int, 20)
	seqs := make(bio.Sequences, 0, len(offsets))
	for i := range offsets {
		b := make([]byte, 60)
		for j := range b {
			b[j] = letters[rnd.Intn(len(letters))]
		}
		offsets[i] = 1 + rnd.Intn(60-len(m)-1)
		copy(b[offsets[i]:], m)
		seqs = append(seqs, bio.Sequence{Sequence: string(b)})
	}
	c, err := seq.ToCorpus(seqs, seq.DNA)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	g, err := New(c, len(m), rand.New(rand.NewSource(14)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	shifted := make([]int, len(offsets))
	for i, o := range offsets {
		shifted[i] = o - 1
	}
	if err := g.SetOffsets(shifted); err != nil {
		tst.Fatal("Error: ", err)
	}
	g.shiftPhase()
	for i, o := range g.Offsets() {
		if o != offsets[i] {
			tst.Errorf("sequence %d: offset %d, want %d", i, o, offsets[i])
		}
	}
}

// A motif spanning a whole sequence leaves a single valid window; the
// candidate distribution degenerates to one point and must still be
// sampled.
func TestSingleWindow(tst *testing.T) {
	seqs := bio.Sequences{
		{Sequence: "ATGC"},
		{Sequence: "ATGC"},
		{Sequence: "ATGCATGC"},
	}
	c, err := seq.ToCorpus(seqs, seq.DNA)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	g, err := New(c, 4, rand.New(rand.NewSource(6)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	g.Quiet = true
	if err := g.Run(50); err != nil {
		tst.Fatal("Error: ", err)
	}
	offsets := g.Offsets()
	if offsets[0] != 0 || offsets[1] != 0 {
		tst.Error("single-window sequences must keep offset 0:", offsets)
	}
	if last := g.Last(); last.Iter != 49 {
		tst.Error("unexpected last iteration:", last.Iter)
	}
}

// Every sequence is held out once before any sequence repeats.
func TestHoldOutRounds(tst *testing.T) {
	c := implantedCorpus(tst, 7, 40, "ATGC", rand.New(rand.NewSource(7)))
	g, err := New(c, 4, rand.New(rand.NewSource(8)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for round := 0; round < 5; round++ {
		seen := make(map[int]bool, c.NSeq())
		for i := 0; i < c.NSeq(); i++ {
			h := g.selectHoldOut()
			if seen[h] {
				tst.Fatalf("round %d: sequence %d held out twice", round, h)
			}
			seen[h] = true
		}
	}
}

func TestCandidateWeights(tst *testing.T) {
	c := implantedCorpus(tst, 10, 50, "ATGCATGC", rand.New(rand.NewSource(9)))
	g, err := New(c, 8, rand.New(rand.NewSource(10)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	bg := motif.NewOutsideBackground(c, 8, g.Offsets())
	ppm := motif.NewLeaveOneOutPPM(c, 8, g.Offsets(), 0, g.Pseudocount)
	w := g.candidateWeights(0, ppm, bg)
	if len(w) != c.NWindows(0, 8) {
		tst.Fatal("unexpected number of candidate weights:", len(w))
	}
	s := 0.0
	for _, v := range w {
		if v < 0 {
			tst.Error("negative candidate weight:", v)
		}
		s += v
	}
	if !appreq(s, 1) {
		tst.Error("candidate weights sum to", s)
	}
}

// A report period of zero means every iteration.
func TestReportEveryIteration(tst *testing.T) {
	c := implantedCorpus(tst, 5, 30, "ATGC", rand.New(rand.NewSource(15)))
	g, err := New(c, 4, rand.New(rand.NewSource(16)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	g.SetReportPeriod(0)
	var buf bytes.Buffer
	g.SetOutput(&buf)
	if err := g.Run(3); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header plus one line per iteration
	if len(lines) != 4 {
		tst.Fatal("unexpected trajectory:\n", buf.String())
	}
	if !strings.HasPrefix(lines[3], "2\t") {
		tst.Error("unexpected last trajectory line:", lines[3])
	}
}

func BenchmarkGibbs(b *testing.B) {
	c := implantedCorpus(b, 10, 100, "ATGCATGCAT", rand.New(rand.NewSource(11)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g, err := New(c, 10, rand.New(rand.NewSource(12)))
		if err != nil {
			b.Error("Error: ", err)
		}
		g.Quiet = true
		if err := g.Run(100); err != nil {
			b.Error("Error: ", err)
		}
	}
}
