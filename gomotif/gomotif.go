/*

Gomotif discovers short conserved sequence motifs at unknown
positions in a collection of nucleotide or protein sequences. Two
inference strategies are implemented over a shared position-matrix
model: expectation-maximization and leave-one-out Gibbs sampling.

The basic usage of gomotif looks like this:

	gomotif -len 10 sequences.fst

, this will run the EM algorithm with motif length 10.

You can change the algorithm and the alphabet:

	gomotif -len 12 -method gibbs -alphabet protein sequences.fst

To see all the options run:

	gomotif -h

*/
package main

import (
	"encoding/json"
	"math/rand"
	"os"
	"runtime"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/gomotif/bio"
	"bitbucket.org/Davydov/gomotif/checkpoint"
	"bitbucket.org/Davydov/gomotif/em"
	"bitbucket.org/Davydov/gomotif/gibbs"
	"bitbucket.org/Davydov/gomotif/seq"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = "branch: " + gitbranch + ", revision: " + githash + ", build time: " + buildstamp

// Logger settings.
var log = logging.MustGetLogger("gomotif")
var formatter = logging.MustStringFormatter(`%{message}`)

// checkpointSeconds is the minimal delay between checkpoint saves.
const checkpointSeconds = 30

// command-line options
var (
	// application
	app = kingpin.New("gomotif", "probabilistic motif finder").Version(version)

	// input
	seqFileName = app.Arg("sequences", "sequence collection in FASTA format").Required().ExistingFile()

	// model parameters
	motifLen    = app.Flag("len", "motif length").Required().Int()
	alphabetID  = app.Flag("alphabet", "sequence alphabet").Default("dna").Enum("dna", "protein")
	pseudocount = app.Flag("pseudocount", "pseudocount for probability matrix smoothing (gibbs)").Default("1e-6").Float64()

	// algorithm parameters
	method = app.Flag("method", "inference method to use "+
		"(em: expectation-maximization, "+
		"gibbs: leave-one-out Gibbs sampling"+
		")").Default("em").Enum("em", "gibbs")
	iterations = app.Flag("iter", "number of iterations (gibbs) / iteration cap (em)").Default("5000").Int()
	threshold  = app.Flag("threshold", "convergence threshold for em").Default("1e-6").Float64()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write trajectory to a file").String()
	chkF     = app.Flag("checkpoint", "checkpoint database file (resume gibbs runs)").String()
	plotF    = app.Flag("plot", "write gibbs log-likelihood trace plot to a file (png/svg/pdf)").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// alphabetFromString returns an alphabet from a string.
func alphabetFromString(a string) *seq.Alphabet {
	if a == "protein" {
		return seq.Protein
	}
	return seq.DNA
}

func run(rnd *rand.Rand, chk *checkpoint.IO, summary *RunSummary) {
	seqFile, err := os.Open(*seqFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer seqFile.Close()

	ali, err := bio.ParseFasta(seqFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Debugf("Read sequences:\n%s", ali)

	alphabet := alphabetFromString(*alphabetID)
	corpus, err := seq.ToCorpus(ali, alphabet)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read %d sequences, alphabet %s, shortest length %d",
		corpus.NSeq(), alphabet, corpus.MinLen())

	f := os.Stdout
	if *outF != "" {
		f, err = os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating trajectory file:", err)
		}
		defer f.Close()
	}

	switch *method {
	case "em":
		log.Info("Using expectation-maximization")
		e, err := em.New(corpus, *motifLen)
		if err != nil {
			log.Fatal(err)
		}
		e.MaxIterations = *iterations
		e.Threshold = *threshold
		e.SetReportPeriod(*report)
		e.SetOutput(f)
		e.SetCheckpointIO(chk)
		e.WatchSignals(os.Interrupt, syscall.SIGUSR2)
		if err = e.Run(); err != nil {
			log.Fatal(err)
		}
		log.Noticef("Consensus motif: %s", e.Consensus())
		log.Noticef("Background: %v", e.Background().Map(alphabet))
		summary.Consensus = e.Consensus()
		summary.Iterations = e.Iterations()
		summary.Converged = e.Converged()
		summary.Background = e.Background().Map(alphabet)
	case "gibbs":
		log.Info("Using leave-one-out Gibbs sampling")
		g, err := gibbs.New(corpus, *motifLen, rnd)
		if err != nil {
			log.Fatal(err)
		}
		g.Pseudocount = *pseudocount
		g.SetReportPeriod(*report)
		g.SetOutput(f)
		g.SetCheckpointIO(chk)
		g.WatchSignals(os.Interrupt, syscall.SIGUSR2)
		resumeOffsets(g, chk)
		if err = g.Run(*iterations); err != nil {
			log.Fatal(err)
		}
		best := g.Best()
		log.Noticef("Best consensus motif: %s (lnL=%f, iteration %d)",
			best.Consensus, best.LogLikelihood, best.Iter)
		summary.Consensus = best.Consensus
		summary.LogLikelihood = best.LogLikelihood
		summary.Iterations = *iterations
		summary.Offsets = g.BestOffsets()
		if *plotF != "" {
			if err := plotTrace(g.Trace(), *plotF); err != nil {
				log.Error("Error plotting log-likelihood trace:", err)
			}
		}
	}
}

// resumeOffsets restores the latent offsets of an unfinished gibbs
// run from the checkpoint database.
func resumeOffsets(g *gibbs.Gibbs, chk *checkpoint.IO) {
	if chk == nil {
		return
	}
	state, err := chk.Load()
	if err != nil {
		log.Error("Error reading checkpoint:", err)
		return
	}
	if state == nil || state.Final || state.Offsets == nil {
		return
	}
	if err := g.SetOffsets(state.Offsets); err != nil {
		log.Error("Incompatible checkpoint offsets:", err)
		return
	}
	log.Noticef("Resuming from checkpoint (iter=%d)", state.Iter)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "gomotif")
	logging.SetLevel(level, "em")
	logging.SetLevel(level, "gibbs")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	rnd := rand.New(rand.NewSource(*seed))

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	var chk *checkpoint.IO
	if *chkF != "" {
		db, err := bolt.Open(*chkF, 0666, nil)
		if err != nil {
			log.Fatal("Error opening checkpoint file:", err)
		}
		defer db.Close()
		chk = checkpoint.NewIO(db, []byte(*method), checkpointSeconds)
	}

	startTime := time.Now()
	summary := &RunSummary{
		Version:     version,
		CommandLine: os.Args,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
		Method:      *method,
		MotifLength: *motifLen,
	}
	run(rnd, chk, summary)

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
