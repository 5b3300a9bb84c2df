// Package classifier scores feature vectors with a trained logistic-regression model.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"truck-event-scorer/internal/models"
)

// ErrDimensionMismatch means the feature vector and the model weights disagree
// on the number of features.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// Threshold is the decision boundary on the sigmoid output
const Threshold = 0.5

// Classifier is an immutable linear model. It is safe for concurrent use.
type Classifier struct {
	weights   []float64
	intercept float64
}

// New copies weights so later changes by the caller cannot alter the model
func New(weights []float64, intercept float64) *Classifier {
	w := make([]float64, len(weights))
	copy(w, weights)
	return &Classifier{weights: w, intercept: intercept}
}

// NumFeatures returns the model's input dimension
func (c *Classifier) NumFeatures() int {
	return len(c.weights)
}

// Weights returns a copy of the weight vector
func (c *Classifier) Weights() []float64 {
	w := make([]float64, len(c.weights))
	copy(w, c.weights)
	return w
}

// Intercept returns the model bias term
func (c *Classifier) Intercept() float64 {
	return c.intercept
}

// Probability returns sigmoid(w·x + b)
func (c *Classifier) Probability(features []float64) (float64, error) {
	if len(features) != len(c.weights) {
		return 0, fmt.Errorf("%w: model has %d weights, got %d features",
			ErrDimensionMismatch, len(c.weights), len(features))
	}

	margin := c.intercept
	for i, w := range c.weights {
		margin += w * features[i]
	}

	return sigmoid(margin), nil
}

// Score returns 1.0 (violation) when the probability reaches Threshold, else 0.0
func (c *Classifier) Score(features []float64) (float64, error) {
	p, err := c.Probability(features)
	if err != nil {
		return 0, err
	}
	if p >= Threshold {
		return 1.0, nil
	}
	return 0.0, nil
}

// Predict scores a feature vector and labels the result
func (c *Classifier) Predict(eventKey string, fv models.FeatureVector) (models.Prediction, error) {
	p, err := c.Probability(fv[:])
	if err != nil {
		return models.Prediction{}, err
	}

	score := 0.0
	if p >= Threshold {
		score = 1.0
	}

	return models.Prediction{
		EventKey:    eventKey,
		Label:       models.LabelFor(score),
		Score:       score,
		Probability: p,
		Features:    fv,
	}, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
