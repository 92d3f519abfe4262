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
	"regexp"
	"strings"
	"unicode"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

// newlineRemovalModifier caps runs of consecutive newlines.
type newlineRemovalModifier struct {
	textField      string
	maxConsecutive int
	pattern        *regexp.Regexp
	replacement    string
}

func newNewlineRemovalModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("newline_removal_modifier", "text_field", "max_consecutive"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	maxConsecutive, err := opts.Int("max_consecutive", 2)
	if err != nil {
		return nil, err
	}
	if maxConsecutive < 0 {
		return nil, config.Errorf("newline_removal_modifier", "max_consecutive must be >= 0, got %d", maxConsecutive)
	}
	return &newlineRemovalModifier{
		textField:      textField,
		maxConsecutive: maxConsecutive,
		pattern:        regexp.MustCompile(fmt.Sprintf(`\n{%d,}`, maxConsecutive+1)),
		replacement:    strings.Repeat("\n", maxConsecutive),
	}, nil
}

func (m *newlineRemovalModifier) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	newText := m.pattern.ReplaceAllString(text, m.replacement)
	if err := jsonpath.Set(doc, m.textField, newText); err != nil {
		return nil, err
	}
	return doc, nil
}

// ratioLineModifier keeps only lines whose uppercase or digit ratio is at
// most upper_bound. Empty lines always survive.
type ratioLineModifier struct {
	textField  string
	upperBound float64
	check      string
}

func newRatioLineModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("ratio_line_modifier", "text_field", "upper_bound", "check"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	upper, err := opts.Float("upper_bound", -1)
	if err != nil {
		return nil, err
	}
	if upper < 0 {
		return nil, config.Errorf("ratio_line_modifier", "missing required key upper_bound")
	}
	check, err := opts.RequireString("check")
	if err != nil {
		return nil, err
	}
	if check != "uppercase" && check != "numeric" {
		return nil, config.Errorf("ratio_line_modifier",
			"check must be one of {uppercase, numeric}, got %q", check)
	}
	return &ratioLineModifier{textField: textField, upperBound: upper, check: check}, nil
}

func (m *ratioLineModifier) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	passing := lines[:0]
	for _, line := range lines {
		if len(line) == 0 {
			passing = append(passing, line)
			continue
		}
		count := 0
		for _, r := range line {
			if m.check == "uppercase" {
				if unicode.IsUpper(r) {
					count++
				}
			} else if r >= '0' && r <= '9' {
				count++
			}
		}
		if float64(count)/float64(len(line)) <= m.upperBound {
			passing = append(passing, line)
		}
	}
	if err := jsonpath.Set(doc, m.textField, strings.Join(passing, "\n")); err != nil {
		return nil, err
	}
	return doc, nil
}

// Matches social-media counter lines like "1.2K likes". The text is
// lowercased before matching.
const counterRegex = `^\W*\d(?:,|\.|\d)*(?:k|m|b)?\s+(?:likes|shares|comments|retweets|reposts|quotes|bookmarks|upvotes|downvotes|downloads|views|followers)\W*$`

// regexLineModifier keeps only lines that do not match the regex. Drops the
// document when no lines remain.
type regexLineModifier struct {
	textField string
	regex     *regexp.Regexp
}

func newRegexLineModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("regex_line_modifier", "text_field", "regex"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	pattern, err := opts.String("regex", counterRegex)
	if err != nil {
		return nil, err
	}
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, config.Errorf("regex_line_modifier", "invalid regex %q: %v", pattern, err)
	}
	return &regexLineModifier{textField: textField, regex: regex}, nil
}

func (m *regexLineModifier) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	passing := lines[:0]
	for _, line := range lines {
		if !m.regex.MatchString(strings.ToLower(line)) {
			passing = append(passing, line)
		}
	}
	if len(passing) == 0 {
		return nil, nil
	}
	if err := jsonpath.Set(doc, m.textField, strings.Join(passing, "\n")); err != nil {
		return nil, err
	}
	return doc, nil
}

// lineLenModifier keeps only lines with at least lower_bound words. Empty
// lines survive; a document whose surviving lines are all empty is dropped.
type lineLenModifier struct {
	textField  string
	lowerBound int
}

func newLineLenModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("line_len_modifier", "text_field", "lower_bound"); err != nil {
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
	return &lineLenModifier{textField: textField, lowerBound: lower}, nil
}

func (m *lineLenModifier) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	passing := lines[:0]
	remaining := 0
	for _, line := range lines {
		if len(line) == 0 || countUnicodeWords(line) >= m.lowerBound {
			passing = append(passing, line)
			remaining += len(line)
		}
	}
	if remaining == 0 {
		return nil, nil
	}
	if err := jsonpath.Set(doc, m.textField, strings.Join(passing, "\n")); err != nil {
		return nil, err
	}
	return doc, nil
}

// substringLineModifier scrubs banned substrings out of lines, or removes
// whole matching lines with remove_substring_only=false. Lines longer than
// max_len words are left untouched.
type substringLineModifier struct {
	textField           string
	maxLen              int
	removeSubstringOnly bool
	regex               *regexp.Regexp
	replacement         string
}

func newSubstringLineModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("substring_line_modifier",
		"text_field", "banlist", "max_len", "remove_substring_only", "location"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	banlist, err := opts.RequireString("banlist")
	if err != nil {
		return nil, err
	}
	maxLen, err := opts.Int("max_len", math.MaxInt)
	if err != nil {
		return nil, err
	}
	removeOnly, err := opts.Bool("remove_substring_only", true)
	if err != nil {
		return nil, err
	}
	location, err := opts.String("location", "any")
	if err != nil {
		return nil, err
	}

	var pattern, replacement string
	switch location {
	case "prefix":
		pattern, replacement = fmt.Sprintf(`^(?:%s)\s?`, banlist), ""
	case "suffix":
		pattern, replacement = fmt.Sprintf(`\s?(?:%s)$`, banlist), ""
	default:
		pattern, replacement = fmt.Sprintf(`\s?(?:%s)\s?`, banlist), " "
	}
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, config.Errorf("substring_line_modifier", "invalid banlist pattern: %v", err)
	}
	return &substringLineModifier{
		textField:           textField,
		maxLen:              maxLen,
		removeSubstringOnly: removeOnly,
		regex:               regex,
		replacement:         replacement,
	}, nil
}

func (m *substringLineModifier) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	var passing []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) == 0 {
			passing = append(passing, "")
			continue
		}
		if m.maxLen != math.MaxInt && countUnicodeWords(line) > m.maxLen {
			passing = append(passing, line)
			continue
		}
		if m.removeSubstringOnly {
			cleaned := m.regex.ReplaceAllString(line, m.replacement)
			if strings.TrimSpace(cleaned) != "" {
				passing = append(passing, cleaned)
			}
		} else if !m.regex.MatchString(line) {
			passing = append(passing, line)
		}
	}
	if err := jsonpath.Set(doc, m.textField, strings.Join(passing, "\n")); err != nil {
		return nil, err
	}
	return doc, nil
}

// renameModifier moves a field to a new dotted path.
type renameModifier struct {
	oldField string
	newField string
}

func newRenameModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("rename_modifier", "text_field", "old_field", "new_field"); err != nil {
		return nil, err
	}
	oldField, err := opts.RequireString("old_field")
	if err != nil {
		return nil, err
	}
	newField, err := opts.RequireString("new_field")
	if err != nil {
		return nil, err
	}
	return &renameModifier{oldField: oldField, newField: newField}, nil
}

func (m *renameModifier) Process(doc any) (any, error) {
	val, ok := jsonpath.Get(doc, m.oldField)
	if !ok {
		return nil, fmt.Errorf("field %q not found", m.oldField)
	}
	if err := jsonpath.Set(doc, m.newField, val); err != nil {
		return nil, err
	}
	jsonpath.Remove(doc, m.oldField)
	return doc, nil
}
