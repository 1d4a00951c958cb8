package evaluation

import "github.com/myrjola/compassmystery/internal/models"

const (
	goodRating = 5
	poorRating = 2
)

// Rater rates a reply for coherence and relevance on a 1-5 scale.
type Rater interface {
	Rate(question, response string, violations models.Violations) (coherence, relevance int)
}

// HeuristicRater derives ratings from validation flags. A reply that breaks the story is incoherent and one that
// gives away the ending is not an answer to the question asked.
type HeuristicRater struct{}

func (HeuristicRater) Rate(_, response string, violations models.Violations) (int, int) {
	if response == "" {
		return 1, 1
	}
	coherence, relevance := goodRating, goodRating
	if violations.Has(models.ViolationKnowledge) ||
		violations.Has(models.ViolationHallucinatedLocation) ||
		violations.Has(models.ViolationHallucinatedNPC) {
		coherence = poorRating
	}
	if violations.Has(models.ViolationPrematureRevelation) {
		relevance = poorRating
	}
	return coherence, relevance
}
