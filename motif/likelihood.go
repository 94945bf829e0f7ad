package motif

// LikelihoodFloor seeds every likelihood product. It keeps a single
// zero matrix cell from collapsing the whole product to zero, so the
// posterior weight of a window never becomes 0/0. Products over long
// windows or large alphabets may still underflow towards zero in
// floating arithmetic; both refinement loops only ever compare
// likelihoods of same-length windows, which tolerates the common
// scale factor and the underflow.
const LikelihoodFloor = 1e-6

// WindowLikelihood returns the likelihood of the window of pfm.Len()
// symbols starting at start under the motif model: the product of the
// matrix entries for the window's symbols, seeded with
// LikelihoodFloor. Pure; safe to call concurrently.
func WindowLikelihood(code []byte, start int, pfm *Matrix) float64 {
	p := LikelihoodFloor
	for j := 0; j < pfm.Len(); j++ {
		p *= pfm.At(int(code[start+j]), j)
	}
	return p
}

// BackgroundLikelihood returns the likelihood of the window of
// motifLen symbols starting at start under the background
// distribution, seeded with LikelihoodFloor. Pure; safe to call
// concurrently.
func BackgroundLikelihood(code []byte, start, motifLen int, bg Background) float64 {
	p := LikelihoodFloor
	for j := 0; j < motifLen; j++ {
		p *= bg[code[start+j]]
	}
	return p
}
