package model

import (
	"errors"
	"fmt"
	"math"
)

// Label is the approval outcome.
type Label string

const (
	Approved Label = "Approved"
	Rejected Label = "Rejected"
)

// Decision is the approval pipeline result. Confidence is the probability of the predicted
// class, so a Rejected decision reports certainty of rejection.
type Decision struct {
	Label      Label
	Confidence float64
}

// ModelInferenceError wraps any failure inside the scaler or classifier.
type ModelInferenceError struct {
	Op  string
	Err error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("model inference failed during %s: %v", e.Op, e.Err)
}

func (e *ModelInferenceError) Unwrap() error {
	return e.Err
}

// Predictor applies a scaler then a classifier. It holds no mutable state and is safe for
// concurrent use when the scaler and classifier are.
type Predictor struct {
	scaler     Scaler
	classifier Classifier
}

func NewPredictor(scaler Scaler, classifier Classifier) *Predictor {
	return &Predictor{scaler: scaler, classifier: classifier}
}

// Predict scores one raw feature vector.
func (p *Predictor) Predict(features []float64) (decision Decision, err error) {
	if p == nil || p.scaler == nil || p.classifier == nil {
		return Decision{}, &ModelInferenceError{Op: "load", Err: errors.New("model not loaded")}
	}

	op := "transform"
	defer func() {
		if r := recover(); r != nil {
			decision = Decision{}
			err = &ModelInferenceError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	scaled, err := p.scaler.Transform(features)
	if err != nil {
		return Decision{}, &ModelInferenceError{Op: op, Err: err}
	}

	op = "predict"
	class, err := p.classifier.Predict(scaled)
	if err != nil {
		return Decision{}, &ModelInferenceError{Op: op, Err: err}
	}

	op = "predict_proba"
	proba, err := p.classifier.PredictProba(scaled)
	if err != nil {
		return Decision{}, &ModelInferenceError{Op: op, Err: err}
	}
	if class < 0 || class >= len(proba) {
		return Decision{}, &ModelInferenceError{Op: op, Err: fmt.Errorf("class %d outside %d probabilities", class, len(proba))}
	}

	confidence := proba[class]
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Decision{}, &ModelInferenceError{Op: op, Err: fmt.Errorf("probability %v outside [0,1]", confidence)}
	}

	label := Rejected
	if class == 1 {
		label = Approved
	}
	return Decision{Label: label, Confidence: confidence}, nil
}
