package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	ModelTypeLinearRegression = "linear_regression"
	ModelTypeDecisionTree     = "decision_tree"
)

func LoadModel(modelType, path string) (Regressor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	switch modelType {
	case ModelTypeLinearRegression:
		model := &LinearRegression{}
		if err := model.UnmarshalArtifact(payload); err != nil {
			return nil, fmt.Errorf("load %s from %s: %w", modelType, path, err)
		}
		return model, nil
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := model.UnmarshalArtifact(payload); err != nil {
			return nil, fmt.Errorf("load %s from %s: %w", modelType, path, err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func decodeArtifact(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
