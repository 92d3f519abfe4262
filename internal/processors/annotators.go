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
	"math/bits"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

// addIDModifier stamps a fresh UUIDv4 into id_key.
type addIDModifier struct {
	idKey string
}

func newAddIDModifier(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("add_id", "text_field", "id_key"); err != nil {
		return nil, err
	}
	idKey, err := opts.String("id_key", "id")
	if err != nil {
		return nil, err
	}
	return &addIDModifier{idKey: idKey}, nil
}

func (m *addIDModifier) Process(doc any) (any, error) {
	if err := jsonpath.Set(doc, m.idKey, uuid.NewString()); err != nil {
		return nil, err
	}
	return doc, nil
}

// wordCountAdder records the document's word count, typically paired with a
// later word_removal_ratio_filter.
type wordCountAdder struct {
	textField      string
	wordCountField string
}

func newWordCountAdder(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("word_count_adder", "text_field", "word_count_field"); err != nil {
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
	return &wordCountAdder{textField: textField, wordCountField: countField}, nil
}

func (m *wordCountAdder) Process(doc any) (any, error) {
	text, err := textOf(doc, m.textField)
	if err != nil {
		return nil, err
	}
	if err := jsonpath.Set(doc, m.wordCountField, float64(countUnicodeWords(text))); err != nil {
		return nil, err
	}
	return doc, nil
}

// hashAnnotator writes an xxh3 digest of a string field. 64-bit digests are
// stored as numbers, 128-bit digests as decimal strings.
type hashAnnotator struct {
	hashSource      string
	hashDestination string
	numBits         int
}

func newHashAnnotator(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("hash_annotator",
		"text_field", "hash_source", "hash_destination", "num_bits"); err != nil {
		return nil, err
	}
	source, err := opts.String("hash_source", "text")
	if err != nil {
		return nil, err
	}
	dest, err := opts.String("hash_destination", "metadata.text_hash")
	if err != nil {
		return nil, err
	}
	numBits, err := opts.Int("num_bits", 128)
	if err != nil {
		return nil, err
	}
	if numBits != 64 && numBits != 128 {
		return nil, config.Errorf("hash_annotator", "num_bits must be 64 or 128, got %d", numBits)
	}
	return &hashAnnotator{hashSource: source, hashDestination: dest, numBits: numBits}, nil
}

func (m *hashAnnotator) Process(doc any) (any, error) {
	text, ok := jsonpath.GetString(doc, m.hashSource)
	if !ok {
		return nil, fmt.Errorf("hash source %q missing or not a string", m.hashSource)
	}
	var hashVal any
	if m.numBits == 128 {
		sum := xxh3.Hash128([]byte(text))
		hashVal = u128String(sum.Hi, sum.Lo)
	} else {
		hashVal = float64(xxh3.Hash([]byte(text)))
	}
	if err := jsonpath.Set(doc, m.hashDestination, hashVal); err != nil {
		return nil, err
	}
	return doc, nil
}

// u128String renders hi<<64|lo in decimal.
func u128String(hi, lo uint64) string {
	if hi == 0 {
		return strconv.FormatUint(lo, 10)
	}
	// Long division by 10^19 chunks keeps everything in uint64 range.
	var digits []byte
	for hi != 0 || lo != 0 {
		var rem uint64
		hi, lo, rem = divmod128by10(hi, lo)
		digits = append(digits, byte('0'+rem))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

func divmod128by10(hi, lo uint64) (qhi, qlo, rem uint64) {
	qhi = hi / 10
	qlo, rem = bits.Div64(hi%10, lo, 10)
	return qhi, qlo, rem
}

// constantAnnotator writes a fixed string at key.
type constantAnnotator struct {
	key   string
	value string
}

func newConstantAnnotator(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("constant_annotator", "text_field", "key", "value"); err != nil {
		return nil, err
	}
	key, err := opts.RequireString("key")
	if err != nil {
		return nil, err
	}
	value, err := opts.RequireString("value")
	if err != nil {
		return nil, err
	}
	return &constantAnnotator{key: key, value: value}, nil
}

func (m *constantAnnotator) Process(doc any) (any, error) {
	if err := jsonpath.Set(doc, m.key, m.value); err != nil {
		return nil, err
	}
	return doc, nil
}

// ddMaxGetter scans keys with the given prefix under main_attribute and
// writes the key holding the maximum value. Values are either plain numbers
// or the nested [[v]] array form.
type ddMaxGetter struct {
	mainAttribute   string
	prefix          string
	outputAttribute string
}

func newDDMaxGetter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("dd_max_getter",
		"text_field", "main_attribute", "prefix", "output_attribute"); err != nil {
		return nil, err
	}
	main, err := opts.String("main_attribute", "attributes")
	if err != nil {
		return nil, err
	}
	prefix, err := opts.RequireString("prefix")
	if err != nil {
		return nil, err
	}
	output, err := opts.RequireString("output_attribute")
	if err != nil {
		return nil, err
	}
	return &ddMaxGetter{mainAttribute: main, prefix: prefix, outputAttribute: output}, nil
}

func (m *ddMaxGetter) Process(doc any) (any, error) {
	raw, ok := jsonpath.Get(doc, m.mainAttribute)
	if !ok {
		return nil, fmt.Errorf("attribute %q not found", m.mainAttribute)
	}
	maxKey := "null"
	maxVal := -1.0
	if attrs, ok := raw.(map[string]any); ok {
		for key, value := range attrs {
			if !strings.HasPrefix(key, m.prefix) {
				continue
			}
			val, err := attrValue(value)
			if err != nil {
				return nil, fmt.Errorf("attribute %s.%s: %w", m.mainAttribute, key, err)
			}
			if val > maxVal {
				maxKey = key
				maxVal = val
			}
		}
	}
	if err := jsonpath.Set(doc, m.outputAttribute, maxKey); err != nil {
		return nil, err
	}
	return doc, nil
}

func attrValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case []any:
		if len(v) == 0 {
			return 0, fmt.Errorf("empty attribute array")
		}
		inner, ok := v[0].([]any)
		if !ok || len(inner) == 0 {
			return 0, fmt.Errorf("attribute array is not [[value]]")
		}
		f, ok := inner[0].(float64)
		if !ok {
			return 0, fmt.Errorf("attribute value is not a number")
		}
		return f, nil
	default:
		return 0, fmt.Errorf("attribute value has type %T", value)
	}
}

// maxExtractor writes the key of the maximum value in a string-to-number
// map, if that maximum clears lower_bound. With keep_nulls=false documents
// without a qualifying key are dropped.
type maxExtractor struct {
	mainAttribute   string
	lowerBound      float64
	outputAttribute string
	keepNulls       bool
}

func newMaxExtractor(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("max_extractor",
		"text_field", "main_attribute", "lower_bound", "output_attribute", "keep_nulls"); err != nil {
		return nil, err
	}
	main, err := opts.RequireString("main_attribute")
	if err != nil {
		return nil, err
	}
	lower, err := opts.Float("lower_bound", 0)
	if err != nil {
		return nil, err
	}
	output, err := opts.RequireString("output_attribute")
	if err != nil {
		return nil, err
	}
	keepNulls, err := opts.Bool("keep_nulls", true)
	if err != nil {
		return nil, err
	}
	return &maxExtractor{
		mainAttribute:   main,
		lowerBound:      lower,
		outputAttribute: output,
		keepNulls:       keepNulls,
	}, nil
}

func (m *maxExtractor) Process(doc any) (any, error) {
	raw, ok := jsonpath.Get(doc, m.mainAttribute)
	if !ok {
		return nil, fmt.Errorf("attribute %q not found", m.mainAttribute)
	}
	maxKey := ""
	maxVal := -math.MaxFloat64
	if attrs, ok := raw.(map[string]any); ok {
		for key, value := range attrs {
			val, ok := value.(float64)
			if !ok {
				return nil, fmt.Errorf("attribute %s.%s is not a number", m.mainAttribute, key)
			}
			if val >= maxVal && val >= m.lowerBound {
				maxKey = key
				maxVal = val
			}
		}
	}
	if maxKey == "" {
		if !m.keepNulls {
			return nil, nil
		}
		return doc, nil
	}
	if err := jsonpath.Set(doc, m.outputAttribute, maxKey); err != nil {
		return nil, err
	}
	return doc, nil
}
