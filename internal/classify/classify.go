package classify

// #region imports
import "strings"

// #endregion

// #region score-vector

// ScoreVector holds one weight per known category, in matrix category order.
type ScoreVector []float64

// #endregion score-vector

// #region scorer-interface

// Scorer is the classification boundary. The real classifier lives outside
// this engine; anything satisfying this interface can be injected, including
// deterministic stubs in tests.
type Scorer interface {
	// ScoreWords classifies one page's word list. ok is false when the
	// classifier cannot run (no matrix, word count outside thresholds).
	ScoreWords(words []string) (scores ScoreVector, ok bool)
	// Aggregate folds a page-score history into a single vector.
	Aggregate(scores []ScoreVector) ScoreVector
	// IndexOfMax returns the index of the highest score. Ties resolve to
	// the first index encountered. Returns -1 for an empty vector.
	IndexOfMax(v ScoreVector) int
	// Categories returns category names in vector order.
	Categories() []string
}

// #endregion scorer-interface

// #region matrix

// Matrix is a keyword-weight classification matrix: per category, a bag of
// weighted words, plus a prior added to every score.
type Matrix struct {
	Categories []string                      `json:"categories"`
	Weights    map[string]map[string]float64 `json:"weights"` // category → word → weight
	Priors     []float64                     `json:"priors"`  // one per category, may be empty
}

// #endregion matrix

// #region keyword-scorer

// KeywordScorer is the default in-tree Scorer: weighted keyword counting
// over a matrix. Word-count thresholds bound what a classification attempt
// will even look at.
type KeywordScorer struct {
	matrix   Matrix
	minWords int
	maxWords int
}

// NewKeywordScorer builds a scorer over the given matrix.
// minWords/maxWords bound the word count of a classifiable page;
// maxWords <= 0 means no upper bound.
func NewKeywordScorer(matrix Matrix, minWords, maxWords int) *KeywordScorer {
	return &KeywordScorer{matrix: matrix, minWords: minWords, maxWords: maxWords}
}

// Categories returns category names in vector order.
func (s *KeywordScorer) Categories() []string {
	return s.matrix.Categories
}

// #endregion keyword-scorer

// #region score-words

// ScoreWords scores a page's words against every category.
func (s *KeywordScorer) ScoreWords(words []string) (ScoreVector, bool) {
	if len(s.matrix.Categories) == 0 {
		return nil, false
	}
	if len(words) < s.minWords {
		return nil, false
	}
	if s.maxWords > 0 && len(words) > s.maxWords {
		return nil, false
	}

	scores := make(ScoreVector, len(s.matrix.Categories))
	for i, cat := range s.matrix.Categories {
		if i < len(s.matrix.Priors) {
			scores[i] = s.matrix.Priors[i]
		}
		weights := s.matrix.Weights[cat]
		if weights == nil {
			continue
		}
		for _, w := range words {
			if weight, ok := weights[strings.ToLower(w)]; ok {
				scores[i] += weight
			}
		}
	}
	return scores, true
}

// #endregion score-words

// #region aggregate

// Aggregate sums score vectors element-wise. Shorter vectors contribute only
// the elements they have.
func (s *KeywordScorer) Aggregate(scores []ScoreVector) ScoreVector {
	return Aggregate(scores, len(s.matrix.Categories))
}

// Aggregate is the shared element-wise sum used by the default scorer.
func Aggregate(scores []ScoreVector, width int) ScoreVector {
	if len(scores) == 0 {
		return nil
	}
	agg := make(ScoreVector, width)
	for _, v := range scores {
		for i := 0; i < len(v) && i < width; i++ {
			agg[i] += v[i]
		}
	}
	return agg
}

// #endregion aggregate

// #region index-of-max

// IndexOfMax returns the first index holding the maximum score.
func (s *KeywordScorer) IndexOfMax(v ScoreVector) int {
	return IndexOfMax(v)
}

// IndexOfMax returns the first index holding the maximum score, -1 if empty.
// First-index tie resolution keeps selection deterministic for equal inputs.
func IndexOfMax(v ScoreVector) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// #endregion index-of-max

// #region tokenize

// Tokenize splits page text into lowercase whitespace-delimited words.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// #endregion tokenize
