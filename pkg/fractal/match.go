package fractal

import (
	"pifs/pkg/raster"
)

// Match pairs a target block with the candidate it is rebuilt from.
type Match struct {
	// Candidate is the index of the source block in the candidate list
	Candidate int

	// Transform maps the candidate onto the target
	Transform Transform
}

// Search runs the rotation search of target against every candidate and
// returns the match with the lowest variance error together with that error.
// Ties keep the earliest candidate.
//
// candidates must not be empty; an empty list is a caller bug and panics.
func Search(target *raster.Block, candidates []*raster.Block) (Match, float64) {
	return newSearcher(target.Size()).match(target, candidates)
}

func (s *searcher) match(target *raster.Block, candidates []*raster.Block) (Match, float64) {
	if len(candidates) == 0 {
		panic("fractal: search over an empty candidate list")
	}

	best := Match{Candidate: 0}
	var bestErr float64
	best.Transform, bestErr = s.transform(target, candidates[0])

	for i := 1; i < len(candidates); i++ {
		t, err := s.transform(target, candidates[i])
		if err < bestErr {
			best = Match{Candidate: i, Transform: t}
			bestErr = err
		}
	}
	return best, bestErr
}
