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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

var sentenceSplitter = regexp.MustCompile(`[.!?]+\s+`)

var madladTechCharset = map[rune]struct{}{
	'0': {}, '1': {}, '2': {}, '3': {}, '4': {}, '5': {}, '6': {}, '7': {},
	'8': {}, '9': {}, '{': {}, '}': {}, '+': {}, '/': {}, '(': {}, ')': {}, '>': {},
}

// madlad400SentenceAnnotator runs the MADLAD-400 per-sentence quality rules
// and records which sentences tripped which rule under annotation_key. The
// document itself is never dropped here; a later madlad400_rule_filter acts
// on the annotations.
//
// Rules: 1 sentence language differs from the document language, 2 too many
// capitalized words, 3 abnormal sentence length, 4 technical character
// density, 5 cursed substrings and regexes.
type madlad400SentenceAnnotator struct {
	textField                  string
	sentenceLowerBound         int
	sentenceQuestionUpperBound float64
	annotationKey              string
	rulesToInclude             map[int]struct{}

	model       Classifier
	langidField string

	caseUpperBound    float64
	caseTokLowerBound int

	charLenLowerBound int
	charLenUpperBound int

	techLowerBound float64

	cursedInclusions []string
	cursedRegexes    []*regexp.Regexp
}

func newMadlad400SentenceAnnotator(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("madlad400_sentence_annotator",
		"text_field", "sentence_lower_bound", "sentence_question_upper_bound",
		"annotation_key", "rules_to_include", "fast_text_file", "langid_field",
		"case_upper_bound", "case_tok_lower_bound", "char_len_lower_bound",
		"char_len_upper_bound", "tech_lower_bound", "cursed_regex_file"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	sentenceLower, err := opts.Int("sentence_lower_bound", 5)
	if err != nil {
		return nil, err
	}
	questionUpper, err := opts.Float("sentence_question_upper_bound", 0.20)
	if err != nil {
		return nil, err
	}
	annotationKey, err := opts.String("annotation_key", "metadata.madlad")
	if err != nil {
		return nil, err
	}
	ruleList, err := opts.IntSlice("rules_to_include")
	if err != nil {
		return nil, err
	}
	rules := make(map[int]struct{})
	if len(ruleList) == 0 {
		ruleList = []int{1, 2, 3, 4, 5}
	}
	for _, r := range ruleList {
		if r < 1 || r > 5 {
			return nil, config.Errorf("madlad400_sentence_annotator", "unknown rule %d", r)
		}
		rules[r] = struct{}{}
	}
	modelPath, err := opts.RequireString("fast_text_file")
	if err != nil {
		return nil, err
	}
	model, err := loadClassifier("madlad400_sentence_annotator", modelPath)
	if err != nil {
		return nil, err
	}
	langidField, err := opts.RequireString("langid_field")
	if err != nil {
		return nil, err
	}
	caseUpper, err := opts.Float("case_upper_bound", 0.50)
	if err != nil {
		return nil, err
	}
	caseTokLower, err := opts.Int("case_tok_lower_bound", 12)
	if err != nil {
		return nil, err
	}
	charLenLower, err := opts.Int("char_len_lower_bound", 20)
	if err != nil {
		return nil, err
	}
	charLenUpper, err := opts.Int("char_len_upper_bound", 500)
	if err != nil {
		return nil, err
	}
	techLower, err := opts.Float("tech_lower_bound", 0.20)
	if err != nil {
		return nil, err
	}
	cursedFile, err := opts.RequireString("cursed_regex_file")
	if err != nil {
		return nil, err
	}
	inclusions, regexes, err := loadCursedPatterns(cursedFile)
	if err != nil {
		return nil, config.Errorf("madlad400_sentence_annotator", "loading %s: %v", cursedFile, err)
	}
	return &madlad400SentenceAnnotator{
		textField:                  textField,
		sentenceLowerBound:         sentenceLower,
		sentenceQuestionUpperBound: questionUpper,
		annotationKey:              annotationKey,
		rulesToInclude:             rules,
		model:                      model,
		langidField:                langidField,
		caseUpperBound:             caseUpper,
		caseTokLowerBound:          caseTokLower,
		charLenLowerBound:          charLenLower,
		charLenUpperBound:          charLenUpper,
		techLowerBound:             techLower,
		cursedInclusions:           inclusions,
		cursedRegexes:              regexes,
	}, nil
}

// loadCursedPatterns reads the cursed pattern file: every line is a literal
// substring except the last four, which are regexes.
func loadCursedPatterns(path string) (inclusions []string, regexes []*regexp.Regexp, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(lines) < 4 {
		return nil, nil, fmt.Errorf("cursed pattern file needs at least 4 trailing regex lines, got %d lines", len(lines))
	}
	inclusions = lines[:len(lines)-4]
	for _, expr := range lines[len(lines)-4:] {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid regex %q: %w", expr, err)
		}
		regexes = append(regexes, re)
	}
	return inclusions, regexes, nil
}

func (m *madlad400SentenceAnnotator) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	statusKey := m.annotationKey + "_status"

	var sentences []string
	for _, s := range sentenceSplitter.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	numSentences := len(sentences)
	tracker := map[string]any{"num_sentences": []any{float64(numSentences)}}

	if numSentences < m.sentenceLowerBound {
		if err := jsonpath.Set(doc, statusKey, "killed:too_short"); err != nil {
			return nil, err
		}
		return doc, nil
	}

	docLang, err := m.documentLanguage(doc)
	if err != nil {
		return nil, err
	}

	susSentences := make(map[int]struct{})
	flag := func(rule, sentenceNum int) {
		key := fmt.Sprintf("rule.%d", rule)
		list, _ := tracker[key].([]any)
		tracker[key] = append(list, float64(sentenceNum))
		susSentences[sentenceNum] = struct{}{}
	}

	for sentenceNum, sentence := range sentences {
		if m.includes(1) {
			inconsistent, err := m.documentInconsistency(sentence, docLang)
			if err != nil {
				return nil, err
			}
			if inconsistent {
				flag(1, sentenceNum)
			}
		}
		if m.includes(2) && m.listCase(sentence) {
			flag(2, sentenceNum)
		}
		if m.includes(3) && m.abnormalLen(sentence) {
			flag(3, sentenceNum)
		}
		if m.includes(4) && m.technicalCharacters(sentence) {
			flag(4, sentenceNum)
		}
		if m.includes(5) && m.cursed(sentence) {
			flag(5, sentenceNum)
		}
	}

	status := "survived"
	if float64(len(susSentences)) > float64(numSentences)*m.sentenceQuestionUpperBound {
		status = "killed:too_many_sus_sentences"
	}
	if err := jsonpath.Set(doc, statusKey, status); err != nil {
		return nil, err
	}
	if err := jsonpath.Set(doc, m.annotationKey, tracker); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *madlad400SentenceAnnotator) includes(rule int) bool {
	_, ok := m.rulesToInclude[rule]
	return ok
}

// documentLanguage picks the highest-scoring key of the langid map.
func (m *madlad400SentenceAnnotator) documentLanguage(doc any) (string, error) {
	raw, ok := jsonpath.Get(doc, m.langidField)
	if !ok {
		return "", fmt.Errorf("langid field %q not found", m.langidField)
	}
	langs, ok := raw.(map[string]any)
	if !ok || len(langs) == 0 {
		return "", fmt.Errorf("langid field %q is not a non-empty object", m.langidField)
	}
	best := ""
	bestProb := -1.0
	for lang, rawProb := range langs {
		prob, ok := rawProb.(float64)
		if !ok {
			return "", fmt.Errorf("langid %s.%s is not a number", m.langidField, lang)
		}
		if prob > bestProb {
			best, bestProb = lang, prob
		}
	}
	return best, nil
}

func (m *madlad400SentenceAnnotator) documentInconsistency(sentence, docLang string) (bool, error) {
	preds, err := m.model.Predict(strings.ReplaceAll(sentence, "\n", " "), 1, 0)
	if err != nil {
		return false, fmt.Errorf("langid prediction: %w", err)
	}
	if len(preds) == 0 {
		return true, nil
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Prob > best.Prob {
			best = p
		}
	}
	return best.Label != docLang, nil
}

func (m *madlad400SentenceAnnotator) listCase(sentence string) bool {
	words := unicodeWords(sentence)
	if len(words) < m.caseTokLowerBound {
		return false
	}
	capCount := 0
	for _, w := range words {
		for _, r := range w {
			if unicode.IsUpper(r) {
				capCount++
			}
			break
		}
	}
	return float64(capCount) > float64(len(words))*m.caseUpperBound
}

func (m *madlad400SentenceAnnotator) abnormalLen(sentence string) bool {
	return len(sentence) < m.charLenLowerBound || len(sentence) > m.charLenUpperBound
}

func (m *madlad400SentenceAnnotator) technicalCharacters(sentence string) bool {
	techChars := 0
	for _, r := range sentence {
		if _, ok := madladTechCharset[r]; ok {
			techChars++
		}
	}
	return float64(techChars) > float64(len(sentence))*m.techLowerBound
}

func (m *madlad400SentenceAnnotator) cursed(sentence string) bool {
	for _, sub := range m.cursedInclusions {
		if strings.Contains(sentence, sub) {
			return true
		}
	}
	for _, re := range m.cursedRegexes {
		if re.MatchString(sentence) {
			return true
		}
	}
	return false
}

// madlad400RuleFilter drops documents based on madlad400_sentence_annotator
// annotations. Each entry in rules_to_remove is a group of rule numbers; if
// the sentences flagged by any group reach threshold of the document's
// sentences, the document is dropped.
type madlad400RuleFilter struct {
	annotationKey  string
	statusKey      string
	removeTooShort bool
	rulesToRemove  [][]int
	threshold      float64
}

func newMadlad400RuleFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("madlad400_rule_filter",
		"text_field", "annotation_key", "status_key", "remove_too_short",
		"rules_to_remove", "threshold"); err != nil {
		return nil, err
	}
	annotationKey, err := opts.String("annotation_key", "metadata.madlad")
	if err != nil {
		return nil, err
	}
	statusKey, err := opts.String("status_key", "metadata.madlad_status")
	if err != nil {
		return nil, err
	}
	removeTooShort, err := opts.Bool("remove_too_short", false)
	if err != nil {
		return nil, err
	}
	rulesToRemove, err := opts.IntSlices("rules_to_remove")
	if err != nil {
		return nil, err
	}
	threshold, err := opts.Float("threshold", 0.2)
	if err != nil {
		return nil, err
	}
	return &madlad400RuleFilter{
		annotationKey:  annotationKey,
		statusKey:      statusKey,
		removeTooShort: removeTooShort,
		rulesToRemove:  rulesToRemove,
		threshold:      threshold,
	}, nil
}

func (f *madlad400RuleFilter) Process(doc any) (any, error) {
	status, ok := jsonpath.GetString(doc, f.statusKey)
	if !ok {
		return nil, fmt.Errorf("status field %q missing or not a string", f.statusKey)
	}
	if status == "killed:too_short" {
		if f.removeTooShort {
			return nil, nil
		}
		return doc, nil
	}

	raw, ok := jsonpath.Get(doc, f.annotationKey)
	if !ok {
		return nil, fmt.Errorf("annotation field %q not found", f.annotationKey)
	}
	tracker, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("annotation field %q is not an object", f.annotationKey)
	}
	numSentences, err := trackerInts(tracker, "num_sentences")
	if err != nil || len(numSentences) == 0 {
		return nil, fmt.Errorf("annotation field %q has no num_sentences", f.annotationKey)
	}
	susThreshold := float64(numSentences[0]) * f.threshold

	for _, group := range f.rulesToRemove {
		susSentences := make(map[int]struct{})
		for _, rule := range group {
			ids, err := trackerInts(tracker, fmt.Sprintf("rule.%d", rule))
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				susSentences[id] = struct{}{}
			}
		}
		if float64(len(susSentences)) >= susThreshold {
			return nil, nil
		}
	}
	return doc, nil
}

func trackerInts(tracker map[string]any, key string) ([]int, error) {
	raw, ok := tracker[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("annotation %q is not an array", key)
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("annotation %q holds a non-number", key)
		}
		out = append(out, int(f))
	}
	return out, nil
}
