// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package processors

import (
	"strings"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

// Prediction is one labeled score from a text classifier.
type Prediction struct {
	Label string
	Prob  float64
}

// Classifier scores text against a trained model, fastText-style. Predict
// returns up to k predictions with probability >= threshold.
type Classifier interface {
	Predict(text string, k int, threshold float64) ([]Prediction, error)
}

var classifierLoader func(modelPath string) (Classifier, error)

// SetClassifierLoader installs the model loader used by classifier-backed
// processors. Without a loader those processors fail at construction.
func SetClassifierLoader(loader func(modelPath string) (Classifier, error)) {
	classifierLoader = loader
}

func loadClassifier(name, modelPath string) (Classifier, error) {
	if classifierLoader == nil {
		return nil, config.Errorf(name, "no classifier loader installed, cannot load %s", modelPath)
	}
	model, err := classifierLoader(modelPath)
	if err != nil {
		return nil, config.Errorf(name, "loading model %s: %v", modelPath, err)
	}
	return model, nil
}

// fastTextAnnotator enriches documents with the top-k predictions of a
// classifier. Documents the model cannot score are dropped; this happens
// rarely, on odd byte sequences.
type fastTextAnnotator struct {
	textField   string
	outputField string
	k           int
	threshold   float64
	model       Classifier
}

func newFastTextAnnotator(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("fasttext_annotator",
		"text_field", "fast_text_file", "output_field", "k", "threshold"); err != nil {
		return nil, err
	}
	modelPath, err := opts.RequireString("fast_text_file")
	if err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	outputField, err := opts.String("output_field", "metadata.fasttext")
	if err != nil {
		return nil, err
	}
	k, err := opts.Int("k", 10)
	if err != nil {
		return nil, err
	}
	threshold, err := opts.Float("threshold", 0)
	if err != nil {
		return nil, err
	}
	model, err := loadClassifier("fasttext_annotator", modelPath)
	if err != nil {
		return nil, err
	}
	return &fastTextAnnotator{
		textField:   textField,
		outputField: outputField,
		k:           k,
		threshold:   threshold,
		model:       model,
	}, nil
}

func (m *fastTextAnnotator) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\n", " ") + "\n"
	predictions, err := m.model.Predict(text, m.k, m.threshold)
	if err != nil {
		return nil, nil
	}
	scores := make(map[string]any, len(predictions))
	for _, pred := range predictions {
		scores[pred.Label] = pred.Prob
	}
	if err := jsonpath.Set(doc, m.outputField, scores); err != nil {
		return nil, err
	}
	return doc, nil
}
