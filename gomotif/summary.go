package main

// RunSummary is storing gomotif run summary information.
type RunSummary struct {
	// Version stores gomotif version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// Method is the inference method (em or gibbs).
	Method string `json:"method"`
	// MotifLength is the motif length.
	MotifLength int `json:"motifLength"`
	// Consensus is the final consensus motif.
	Consensus string `json:"consensus"`
	// LogLikelihood is the best consensus log-likelihood (gibbs).
	LogLikelihood float64 `json:"logLikelihood,omitempty"`
	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`
	// Converged reports whether em reached the convergence threshold.
	Converged bool `json:"converged,omitempty"`
	// Background is the final background distribution (em).
	Background map[string]float64 `json:"background,omitempty"`
	// Offsets is the best latent alignment state (gibbs).
	Offsets []int `json:"offsets,omitempty"`
}
