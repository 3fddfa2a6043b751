package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Scaler normalizes raw feature values to the distribution the classifier was trained on.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// Classifier is a trained binary model. PredictProba returns [p0, p1].
type Classifier interface {
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([]float64, error)
}

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// LogisticRegression is a linear classifier with a sigmoid link.
type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *LogisticRegression) decision(x []float64) (float64, error) {
	if len(x) != len(m.Coef) {
		return 0, fmt.Errorf("classifier expects %d features, got %d", len(m.Coef), len(x))
	}
	z := m.Intercept
	for i, v := range x {
		z += m.Coef[i] * v
	}
	return z, nil
}

// Predict returns 1 when the decision function is positive.
func (m *LogisticRegression) Predict(x []float64) (int, error) {
	z, err := m.decision(x)
	if err != nil {
		return 0, err
	}
	if z > 0 {
		return 1, nil
	}
	return 0, nil
}

// PredictProba returns [1-p, p] where p = sigmoid(w.x + b).
func (m *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	z, err := m.decision(x)
	if err != nil {
		return nil, err
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

// TreeNode is one node of a fitted decision tree. Leaves have Left == -1; their Value holds
// per-class sample counts or fractions.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// DecisionTree walks nodes from the root, going left when x[feature] <= threshold.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t *DecisionTree) leaf(x []float64) ([]float64, error) {
	if len(t.Nodes) == 0 {
		return nil, errors.New("decision tree has no nodes")
	}
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return nil, fmt.Errorf("decision tree node %d out of range", idx)
		}
		node := t.Nodes[idx]
		if node.Left == -1 {
			return normalizeCounts(node.Value)
		}
		if node.Feature < 0 || node.Feature >= len(x) {
			return nil, fmt.Errorf("decision tree feature %d out of range", node.Feature)
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return nil, errors.New("decision tree contains a cycle")
}

// Forest averages the leaf class distributions of its trees.
type Forest struct {
	Trees []DecisionTree `json:"trees"`
}

// PredictProba returns the mean class distribution across trees.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	sum := []float64{0, 0}
	for i := range f.Trees {
		dist, err := f.Trees[i].leaf(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		sum[0] += dist[0]
		sum[1] += dist[1]
	}
	n := float64(len(f.Trees))
	return []float64{sum[0] / n, sum[1] / n}, nil
}

// Predict returns the class with the highest mean probability; ties go to class 0.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[1] > proba[0] {
		return 1, nil
	}
	return 0, nil
}

func normalizeCounts(value []float64) ([]float64, error) {
	if len(value) != 2 {
		return nil, fmt.Errorf("leaf holds %d classes, want 2", len(value))
	}
	total := value[0] + value[1]
	if total <= 0 {
		return nil, errors.New("leaf has no samples")
	}
	return []float64{value[0] / total, value[1] / total}, nil
}

type classifierFile struct {
	Kind      string         `json:"kind"`
	Coef      []float64      `json:"coef"`
	Intercept float64        `json:"intercept"`
	Nodes     []TreeNode     `json:"nodes"`
	Trees     []DecisionTree `json:"trees"`
}

// LoadScaler reads a StandardScaler export from disk.
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	var scaler StandardScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("unmarshal scaler: %w", err)
	}
	if len(scaler.Mean) == 0 || len(scaler.Mean) != len(scaler.Scale) {
		return nil, fmt.Errorf("scaler mean/scale length mismatch: %d/%d", len(scaler.Mean), len(scaler.Scale))
	}
	return &scaler, nil
}

// LoadClassifier reads a classifier export. Supported kinds are "logistic", "tree" and "forest".
func LoadClassifier(path string) (Classifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read classifier: %w", err)
	}
	var raw classifierFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal classifier: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(raw.Kind)) {
	case "logistic", "logistic_regression":
		if len(raw.Coef) == 0 {
			return nil, errors.New("logistic classifier has no coefficients")
		}
		return &LogisticRegression{Coef: raw.Coef, Intercept: raw.Intercept}, nil
	case "tree", "decision_tree":
		if len(raw.Nodes) == 0 {
			return nil, errors.New("decision tree has no nodes")
		}
		return &Forest{Trees: []DecisionTree{{Nodes: raw.Nodes}}}, nil
	case "forest", "random_forest":
		if len(raw.Trees) == 0 {
			return nil, errors.New("forest has no trees")
		}
		return &Forest{Trees: raw.Trees}, nil
	default:
		return nil, fmt.Errorf("unsupported classifier kind %q", raw.Kind)
	}
}
