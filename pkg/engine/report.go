package engine

import "github.com/ckmame/ckmame/pkg/matcher"

// GameReport is one game's outcome from a Run.
type GameReport struct {
	Game     string
	Status   matcher.GameStatus
	Repaired bool
}

// Statistics tallies a Run's GameReports by final status.
type Statistics struct {
	Total      int
	Correct    int
	CorrectMia int
	Fixable    int
	Partial    int
	Missing    int
	Old        int
	Repaired   int
}

// summarize tallies reports into a Statistics.
func summarize(reports []GameReport) Statistics {
	var s Statistics
	s.Total = len(reports)
	for _, r := range reports {
		if r.Repaired {
			s.Repaired++
		}
		switch r.Status {
		case matcher.GameCorrect:
			s.Correct++
		case matcher.GameCorrectMia:
			s.CorrectMia++
		case matcher.GameFixable:
			s.Fixable++
		case matcher.GamePartial:
			s.Partial++
		case matcher.GameMissing:
			s.Missing++
		case matcher.GameOld:
			s.Old++
		}
	}
	return s
}
