package ml

import (
	"errors"
	"fmt"
	"math"
)

var ErrNonFinite = errors.New("Input X contains NaN or infinity.")

// Regressor is a pre-trained model that is read-only after loading.
// PredictRows returns one value per input row.
type Regressor interface {
	PredictRows(rows [][]float64) ([]float64, error)
	NumFeatures() int
}

func checkRows(rows [][]float64, numFeatures int) error {
	if len(rows) == 0 {
		return errors.New("no input rows")
	}
	for _, row := range rows {
		if len(row) != numFeatures {
			return fmt.Errorf("X has %d features, but model is expecting %d features as input", len(row), numFeatures)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNonFinite
			}
		}
	}
	return nil
}
