package ml

import (
	"errors"
	"fmt"
)

// DecisionTree is a regression tree stored as a flat node array, root first.
type DecisionTree struct {
	numFeatures int
	nodes       []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeArtifact struct {
	NumFeatures int        `json:"n_features"`
	Nodes       []TreeNode `json:"nodes"`
}

func NewDecisionTree(numFeatures int, nodes []TreeNode) (*DecisionTree, error) {
	dt := &DecisionTree{numFeatures: numFeatures, nodes: nodes}
	if err := dt.validate(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *DecisionTree) UnmarshalArtifact(payload []byte) error {
	var artifact treeArtifact
	if err := decodeArtifact(payload, &artifact); err != nil {
		return err
	}
	candidate := DecisionTree{numFeatures: artifact.NumFeatures, nodes: artifact.Nodes}
	if err := candidate.validate(); err != nil {
		return err
	}
	*dt = candidate
	return nil
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.numFeatures
}

func (dt *DecisionTree) PredictRows(rows [][]float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not fitted")
	}
	if err := checkRows(rows, dt.numFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := dt.predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (dt *DecisionTree) predict(features []float64) (float64, error) {
	idx := 0
	// validate guarantees children point forward, so the walk terminates.
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func (dt *DecisionTree) validate() error {
	if dt.numFeatures <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(dt.nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.nodes) {
				return fmt.Errorf("node %d: invalid child %d", i, child)
			}
		}
	}
	return nil
}
