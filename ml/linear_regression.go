package ml

import "errors"

// LinearRegression is an ordinary least squares model exported as
// {"coefficients": [...], "intercept": f}.
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func (lr *LinearRegression) UnmarshalArtifact(payload []byte) error {
	var artifact LinearRegression
	if err := decodeArtifact(payload, &artifact); err != nil {
		return err
	}
	if len(artifact.Coefficients) == 0 {
		return errors.New("linear regression has no coefficients")
	}
	*lr = artifact
	return nil
}

func (lr *LinearRegression) NumFeatures() int {
	return len(lr.Coefficients)
}

func (lr *LinearRegression) PredictRows(rows [][]float64) ([]float64, error) {
	if len(lr.Coefficients) == 0 {
		return nil, errors.New("model not fitted")
	}
	if err := checkRows(rows, len(lr.Coefficients)); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		y := lr.Intercept
		for j, x := range row {
			y += lr.Coefficients[j] * x
		}
		out[i] = y
	}
	return out, nil
}
