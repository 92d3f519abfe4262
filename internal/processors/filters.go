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
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

func textOf(doc any, field string) (string, error) {
	s, ok := jsonpath.GetString(doc, field)
	if !ok {
		return "", fmt.Errorf("text field %q missing or not a string", field)
	}
	return s, nil
}

// nonNullFilter drops JSON null documents.
type nonNullFilter struct{}

func newNonNullFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("non_null_filter", "text_field"); err != nil {
		return nil, err
	}
	return nonNullFilter{}, nil
}

func (nonNullFilter) Process(doc any) (any, error) {
	if doc == nil {
		return nil, nil
	}
	return doc, nil
}

// textLenFilter keeps documents whose text byte length lies in
// [lower_bound, upper_bound].
type textLenFilter struct {
	textField  string
	lowerBound int
	upperBound int
}

func newTextLenFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("text_len_filter", "text_field", "lower_bound", "upper_bound"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	lower, err := opts.Int("lower_bound", 0)
	if err != nil {
		return nil, err
	}
	upper, err := opts.Int("upper_bound", math.MaxInt)
	if err != nil {
		return nil, err
	}
	return &textLenFilter{textField: textField, lowerBound: lower, upperBound: upper}, nil
}

func (f *textLenFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	if n := len(text); f.lowerBound <= n && n <= f.upperBound {
		return doc, nil
	}
	return nil, nil
}

// subsampleFilter keeps a Bernoulli(subsample_rate) fraction of documents.
type subsampleFilter struct {
	rate float64
}

func newSubsampleFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("subsample", "text_field", "subsample_rate"); err != nil {
		return nil, err
	}
	rate, err := opts.Float("subsample_rate", 1.0)
	if err != nil {
		return nil, err
	}
	if rate < 0 || rate > 1 {
		return nil, config.Errorf("subsample", "subsample_rate must be in [0,1], got %v", rate)
	}
	return &subsampleFilter{rate: rate}, nil
}

func (f *subsampleFilter) Process(doc any) (any, error) {
	if randFloat() <= f.rate {
		return doc, nil
	}
	return nil, nil
}

// santacoderPLFilter keeps documents whose language key is one of the
// SantaCoder trio.
type santacoderPLFilter struct {
	plKey string
}

func newSantacoderPLFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("santacoder_pl_filter", "text_field", "pl_key"); err != nil {
		return nil, err
	}
	plKey, err := opts.String("pl_key", "metadata.language")
	if err != nil {
		return nil, err
	}
	return &santacoderPLFilter{plKey: plKey}, nil
}

func (f *santacoderPLFilter) Process(doc any) (any, error) {
	pl, ok := jsonpath.GetString(doc, f.plKey)
	if !ok {
		return nil, fmt.Errorf("language field %q missing or not a string", f.plKey)
	}
	switch pl {
	case "Python", "Java", "Javascript":
		return doc, nil
	}
	return nil, nil
}

// floatFilter keeps documents whose numeric field lies in
// [lower_bound, upper_bound], optionally negated. A missing field reads as
// the configured default.
type floatFilter struct {
	floatField string
	lowerBound float64
	upperBound float64
	negate     bool
	def        float64
}

func newFloatFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("float_filter",
		"text_field", "float_field", "lower_bound", "upper_bound", "negate", "default"); err != nil {
		return nil, err
	}
	field, err := opts.RequireString("float_field")
	if err != nil {
		return nil, err
	}
	lower, err := opts.Float("lower_bound", 0)
	if err != nil {
		return nil, err
	}
	upper, err := opts.Float("upper_bound", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	negate, err := opts.Bool("negate", false)
	if err != nil {
		return nil, err
	}
	def, err := opts.Float("default", 0)
	if err != nil {
		return nil, err
	}
	return &floatFilter{floatField: field, lowerBound: lower, upperBound: upper, negate: negate, def: def}, nil
}

func (f *floatFilter) Process(doc any) (any, error) {
	val, err := jsonpath.GetFloat(doc, f.floatField, f.def)
	if err != nil {
		return nil, err
	}
	passes := f.lowerBound <= val && val <= f.upperBound
	if f.negate {
		passes = !passes
	}
	if passes {
		return doc, nil
	}
	return nil, nil
}

// stringEqFilter keeps (or, with keep_matches=false, removes) documents
// whose string field equals eq.
type stringEqFilter struct {
	strField    string
	eq          string
	keepMatches bool
}

func newStringEqFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("string_eq_filter", "text_field", "str_field", "eq", "keep_matches"); err != nil {
		return nil, err
	}
	field, err := opts.RequireString("str_field")
	if err != nil {
		return nil, err
	}
	eq, err := opts.RequireString("eq")
	if err != nil {
		return nil, err
	}
	keep, err := opts.Bool("keep_matches", true)
	if err != nil {
		return nil, err
	}
	return &stringEqFilter{strField: field, eq: eq, keepMatches: keep}, nil
}

func (f *stringEqFilter) Process(doc any) (any, error) {
	val, ok := jsonpath.GetString(doc, f.strField)
	if !ok {
		return nil, fmt.Errorf("string field %q missing or not a string", f.strField)
	}
	if (val == f.eq) == f.keepMatches {
		return doc, nil
	}
	return nil, nil
}

// pageLenFilter keeps documents whose length, measured in the configured
// unit, lies in [lower_bound, upper_bound].
type pageLenFilter struct {
	textField         string
	lengthType        string
	lowerBound        int
	upperBound        int
	ignorePunctuation bool
}

func newPageLenFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("page_len_filter",
		"text_field", "length_type", "lower_bound", "upper_bound", "ignore_punctuation"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	lengthType, err := opts.RequireString("length_type")
	if err != nil {
		return nil, err
	}
	switch lengthType {
	case "char", "word", "sentence", "line", "paragraph":
	default:
		return nil, config.Errorf("page_len_filter",
			"length_type must be one of {char, word, sentence, line, paragraph}, got %q", lengthType)
	}
	lower, err := opts.Int("lower_bound", 1)
	if err != nil {
		return nil, err
	}
	upper, err := opts.Int("upper_bound", math.MaxInt)
	if err != nil {
		return nil, err
	}
	ignorePunct, err := opts.Bool("ignore_punctuation", true)
	if err != nil {
		return nil, err
	}
	return &pageLenFilter{
		textField:         textField,
		lengthType:        lengthType,
		lowerBound:        lower,
		upperBound:        upper,
		ignorePunctuation: ignorePunct,
	}, nil
}

func (f *pageLenFilter) length(text string) int {
	switch f.lengthType {
	case "char":
		if f.ignorePunctuation {
			count := 0
			for _, r := range text {
				if unicode.IsLetter(r) || unicode.IsNumber(r) {
					count++
				}
			}
			return count
		}
		count := 0
		for range text {
			count++
		}
		return count
	case "word":
		if f.ignorePunctuation {
			return countUnicodeWords(text)
		}
		return countWordsWithPunct(text)
	case "line":
		return len(strings.Split(strings.TrimSuffix(text, "\n"), "\n"))
	case "sentence":
		return countSentences(text)
	default: // paragraph
		return countParagraphs(text)
	}
}

func (f *pageLenFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	if n := f.length(text); f.lowerBound <= n && n <= f.upperBound {
		return doc, nil
	}
	return nil, nil
}

// wordLenFilter keeps documents whose mean word length lies in
// [lower_bound, upper_bound].
type wordLenFilter struct {
	textField  string
	lowerBound float64
	upperBound float64
}

func newWordLenFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("word_len_filter", "text_field", "lower_bound", "upper_bound"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	lower, err := opts.Float("lower_bound", 0)
	if err != nil {
		return nil, err
	}
	upper, err := opts.Float("upper_bound", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	return &wordLenFilter{textField: textField, lowerBound: lower, upperBound: upper}, nil
}

func (f *wordLenFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	total := 0
	for _, w := range words {
		total += len(w)
	}
	avg := float64(total) / float64(len(words))
	if f.lowerBound <= avg && avg <= f.upperBound {
		return doc, nil
	}
	return nil, nil
}

// symbolRatioFilter drops documents with too many hash/ellipsis symbols per
// word.
type symbolRatioFilter struct {
	textField string
	maxRatio  float64
}

var symbolSet = []string{"#", "...", ". . .", "…"}

func newSymbolRatioFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("symbol_ratio_filter", "text_field", "max_symbol_to_word_ratio"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	maxRatio, err := opts.Float("max_symbol_to_word_ratio", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	return &symbolRatioFilter{textField: textField, maxRatio: maxRatio}, nil
}

func (f *symbolRatioFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	numSymbols := 0
	for _, sym := range symbolSet {
		numSymbols += strings.Count(text, sym)
	}
	numWords := len(strings.Fields(strings.ReplaceAll(text, ". . .", "...")))
	if numWords < 1 {
		numWords = 1
	}
	if float64(numSymbols)/float64(numWords) <= f.maxRatio {
		return doc, nil
	}
	return nil, nil
}

// bulletFilter drops documents where too many lines start with a bullet.
type bulletFilter struct {
	textField      string
	maxBulletRatio float64
}

func newBulletFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("bullet_filter", "text_field", "max_bullet_ratio"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	maxRatio, err := opts.Float("max_bullet_ratio", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	return &bulletFilter{textField: textField, maxBulletRatio: maxRatio}, nil
}

func (f *bulletFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	bullets := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "●") || strings.HasPrefix(line, "•") ||
			strings.HasPrefix(line, "*") || strings.HasPrefix(line, "-") {
			bullets++
		}
	}
	if float64(bullets)/float64(len(lines)) > f.maxBulletRatio {
		return nil, nil
	}
	return doc, nil
}

// ellipsisLineRatioFilter drops documents where too many non-empty lines end
// with an ellipsis.
type ellipsisLineRatioFilter struct {
	textField string
	maxRatio  float64
}

func newEllipsisLineRatioFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("ellipsis_line_ratio_filter", "text_field", "max_ratio"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	maxRatio, err := opts.Float("max_ratio", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	return &ellipsisLineRatioFilter{textField: textField, maxRatio: maxRatio}, nil
}

func (f *ellipsisLineRatioFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	lines := nonEmptyLines(text)
	ellipsis := 0
	for _, line := range lines {
		if strings.HasSuffix(line, "...") || strings.HasSuffix(line, ". . .") ||
			strings.HasSuffix(line, "…") {
			ellipsis++
		}
	}
	denom := len(lines)
	if denom < 1 {
		denom = 1
	}
	if float64(ellipsis)/float64(denom) <= f.maxRatio {
		return doc, nil
	}
	return nil, nil
}

// alphabeticWordRatioFilter drops documents where too many words contain no
// alphabetic character. Single-word documents are dropped outright.
type alphabeticWordRatioFilter struct {
	textField string
	maxRatio  float64
}

func newAlphabeticWordRatioFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("alphabetic_word_ratio_filter", "text_field", "max_ratio"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	maxRatio, err := opts.Float("max_ratio", math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	return &alphabeticWordRatioFilter{textField: textField, maxRatio: maxRatio}, nil
}

func (f *alphabeticWordRatioFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) <= 1 {
		return nil, nil
	}
	nonAlpha := 0
	for _, w := range words {
		if !strings.ContainsFunc(w, unicode.IsLetter) {
			nonAlpha++
		}
	}
	if float64(nonAlpha)/float64(len(words)) <= f.maxRatio {
		return doc, nil
	}
	return nil, nil
}

// stopWordFilter keeps documents containing at least min_stop_word stop
// words (or that many distinct stop words with count_unique).
type stopWordFilter struct {
	textField   string
	countUnique bool
	minStopWord int
}

var stopWords = map[string]struct{}{
	"the": {}, "be": {}, "to": {}, "of": {},
	"and": {}, "that": {}, "have": {}, "with": {},
}

func newStopWordFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("stop_word_filter", "text_field", "count_unique", "min_stop_word"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	countUnique, err := opts.Bool("count_unique", false)
	if err != nil {
		return nil, err
	}
	minStopWord, err := opts.Int("min_stop_word", 2)
	if err != nil {
		return nil, err
	}
	return &stopWordFilter{textField: textField, countUnique: countUnique, minStopWord: minStopWord}, nil
}

func (f *stopWordFilter) Process(doc any) (any, error) {
	if f.minStopWord == 0 {
		return doc, nil
	}
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	if f.countUnique {
		seen := make(map[string]struct{}, f.minStopWord)
		for _, word := range strings.Fields(text) {
			lower := strings.ToLower(word)
			if _, ok := stopWords[lower]; ok {
				seen[lower] = struct{}{}
				if len(seen) >= f.minStopWord {
					return doc, nil
				}
			}
		}
		return nil, nil
	}
	count := 0
	for _, word := range strings.Fields(text) {
		if _, ok := stopWords[strings.ToLower(word)]; ok {
			count++
			if count >= f.minStopWord {
				return doc, nil
			}
		}
	}
	return nil, nil
}

// wordRemovalRatioFilter drops documents whose current word count has fallen
// too far below a previously annotated count.
type wordRemovalRatioFilter struct {
	textField      string
	wordCountField string
	upperBound     float64
}

func newWordRemovalRatioFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("word_removal_ratio_filter", "text_field", "word_count_field", "upper_bound"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	countField, err := opts.String("word_count_field", "original_word_count")
	if err != nil {
		return nil, err
	}
	upper, err := opts.Float("upper_bound", 1.0)
	if err != nil {
		return nil, err
	}
	return &wordRemovalRatioFilter{textField: textField, wordCountField: countField, upperBound: upper}, nil
}

func (f *wordRemovalRatioFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	oldCount, err := jsonpath.GetFloat(doc, f.wordCountField, -1)
	if err != nil {
		return nil, err
	}
	if oldCount <= 0 {
		return nil, fmt.Errorf("word count field %q missing or non-positive", f.wordCountField)
	}
	curCount := countUnicodeWords(text)
	removedRatio := (oldCount - float64(curCount)) / oldCount
	if removedRatio <= f.upperBound {
		return doc, nil
	}
	return nil, nil
}
