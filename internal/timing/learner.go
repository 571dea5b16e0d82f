package timing

// #region imports
import (
	"encoding/json"
	"fmt"
)

// #endregion

// #region count-learner

// CountLearner is the default in-tree Learner: a symbol-frequency model.
// It stands in for the external online-learning service and keeps the blob
// JSON so inspect tooling can read it, but nothing outside this file may
// rely on that.
type CountLearner struct{}

type countModel struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// Init returns an empty frequency model.
func (CountLearner) Init() []byte {
	blob, _ := json.Marshal(countModel{Counts: map[string]int{}})
	return blob
}

// Update increments the symbol's count and returns the new blob.
func (CountLearner) Update(symbol string, model []byte) ([]byte, error) {
	var m countModel
	if len(model) > 0 {
		if err := json.Unmarshal(model, &m); err != nil {
			return nil, fmt.Errorf("decode timing model: %w", err)
		}
	}
	if m.Counts == nil {
		m.Counts = map[string]int{}
	}
	m.Counts[symbol]++
	m.Total++

	blob, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode timing model: %w", err)
	}
	return blob, nil
}

// #endregion count-learner
