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
	"maps"

	"github.com/cardinalhq/datamap/internal/config"
)

// Constructor builds a processor from its options sub-tree.
type Constructor func(opts config.Options) (Processor, error)

var constructors = map[string]Constructor{
	"non_null_filter":               newNonNullFilter,
	"text_len_filter":               newTextLenFilter,
	"subsample":                     newSubsampleFilter,
	"santacoder_pl_filter":          newSantacoderPLFilter,
	"add_id":                        newAddIDModifier,
	"url_substring_filter":          newURLSubstringFilter,
	"newline_removal_modifier":      newNewlineRemovalModifier,
	"fasttext_annotator":            newFastTextAnnotator,
	"float_filter":                  newFloatFilter,
	"string_eq_filter":              newStringEqFilter,
	"page_len_filter":               newPageLenFilter,
	"word_len_filter":               newWordLenFilter,
	"symbol_ratio_filter":           newSymbolRatioFilter,
	"bullet_filter":                 newBulletFilter,
	"ellipsis_line_ratio_filter":    newEllipsisLineRatioFilter,
	"alphabetic_word_ratio_filter":  newAlphabeticWordRatioFilter,
	"stop_word_filter":              newStopWordFilter,
	"massive_web_repetition_filter": newMassiveWebRepetitionFilter,
	"word_count_adder":              newWordCountAdder,
	"ratio_line_modifier":           newRatioLineModifier,
	"regex_line_modifier":           newRegexLineModifier,
	"line_len_modifier":             newLineLenModifier,
	"substring_line_modifier":       newSubstringLineModifier,
	"word_removal_ratio_filter":     newWordRemovalRatioFilter,
	"madlad400_sentence_annotator":  newMadlad400SentenceAnnotator,
	"madlad400_rule_filter":         newMadlad400RuleFilter,
	"interval_filter":               newIntervalFilter,
	"dd_max_getter":                 newDDMaxGetter,
	"hash_annotator":                newHashAnnotator,
	"max_extractor":                 newMaxExtractor,
	"constant_annotator":            newConstantAnnotator,
	"rename_modifier":               newRenameModifier,
}

// New constructs the named processor. Unknown names are config errors.
func New(name string, opts config.Options) (Processor, error) {
	constructor, ok := constructors[name]
	if !ok {
		return nil, config.Errorf(name, "unknown processor")
	}
	return constructor(opts)
}

// BuildPipeline constructs the processors of a map pipeline in order. The
// config's text_field is injected into each step's kwargs unless the step
// overrides it.
func BuildPipeline(cfg *config.MapConfig) ([]Processor, error) {
	pipeline := make([]Processor, 0, len(cfg.Pipeline))
	for _, step := range cfg.Pipeline {
		kwargs := make(config.Options, len(step.Kwargs)+1)
		maps.Copy(kwargs, step.Kwargs)
		if !kwargs.Has("text_field") {
			kwargs["text_field"] = cfg.TextField
		}
		proc, err := New(step.Name, kwargs)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, proc)
	}
	return pipeline, nil
}
