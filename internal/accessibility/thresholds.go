package accessibility

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// DefaultThresholds returns the travel-time cutoffs 5, 10, ..., 60 minutes.
func DefaultThresholds() []int {
	thresholds := make([]int, 0, 12)
	for t := 5; t < 65; t += 5 {
		thresholds = append(thresholds, t)
	}
	return thresholds
}

// ValidateThresholds requires a non-empty, strictly ascending list of positive minutes.
func ValidateThresholds(thresholds []int) error {
	if len(thresholds) == 0 {
		return eris.New("accessibility: no thresholds")
	}
	for i, t := range thresholds {
		if t <= 0 {
			return eris.Errorf("accessibility: threshold %d must be positive", t)
		}
		if i > 0 && t <= thresholds[i-1] {
			return eris.Errorf("accessibility: thresholds must be strictly ascending (%d after %d)", t, thresholds[i-1])
		}
	}
	return nil
}

// ColumnName returns the output column for a threshold, e.g. "t15".
func ColumnName(threshold int) string {
	return "t" + strconv.Itoa(threshold)
}
