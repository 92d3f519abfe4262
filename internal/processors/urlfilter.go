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
	"net/url"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

// urlSubstringFilter drops documents whose URL matches a banlist. Exact
// modes check the whole domain, subdomain, URL, or URL part against the
// banlist set; otherwise banned entries are counted as substrings (or
// word-boundary matches) and the document is dropped once
// num_banned_substrs are found.
type urlSubstringFilter struct {
	urlKey    string
	altURLKey string

	exactDomainMatch    bool
	exactSubdomainMatch bool
	exactURLMatch       bool
	exactPartMatch      bool
	matchSubstrings     bool

	caseSensitive    bool
	ignoreChars      []string
	numBannedSubstrs int

	banset   map[string]struct{}
	patterns []string
}

func newURLSubstringFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("url_substring_filter",
		"text_field", "url_key", "alt_url_key", "banlist_file", "ignore_chars",
		"num_banned_substrs", "exact_domain_match", "exact_subdomain_match",
		"exact_url_match", "exact_part_match", "match_substrings", "case_sensitive"); err != nil {
		return nil, err
	}
	urlKey, err := opts.RequireString("url_key")
	if err != nil {
		return nil, err
	}
	altURLKey, err := opts.String("alt_url_key", "ALT_URL_KEY")
	if err != nil {
		return nil, err
	}
	banlistFile, err := opts.RequireString("banlist_file")
	if err != nil {
		return nil, err
	}
	ignoreChars, err := opts.StringSlice("ignore_chars")
	if err != nil {
		return nil, err
	}
	numBanned, err := opts.Int("num_banned_substrs", 1)
	if err != nil {
		return nil, err
	}
	exactDomain, err := opts.Bool("exact_domain_match", false)
	if err != nil {
		return nil, err
	}
	exactSubdomain, err := opts.Bool("exact_subdomain_match", false)
	if err != nil {
		return nil, err
	}
	exactURL, err := opts.Bool("exact_url_match", false)
	if err != nil {
		return nil, err
	}
	exactPart, err := opts.Bool("exact_part_match", false)
	if err != nil {
		return nil, err
	}
	matchSubstrings, err := opts.Bool("match_substrings", true)
	if err != nil {
		return nil, err
	}
	caseSensitive, err := opts.Bool("case_sensitive", false)
	if err != nil {
		return nil, err
	}

	f := &urlSubstringFilter{
		urlKey:              urlKey,
		altURLKey:           altURLKey,
		exactDomainMatch:    exactDomain,
		exactSubdomainMatch: exactSubdomain,
		exactURLMatch:       exactURL,
		exactPartMatch:      exactPart,
		matchSubstrings:     matchSubstrings,
		caseSensitive:       caseSensitive,
		ignoreChars:         ignoreChars,
		numBannedSubstrs:    numBanned,
		banset:              make(map[string]struct{}),
	}
	if err := f.loadBanlist(banlistFile); err != nil {
		return nil, config.Errorf("url_substring_filter", "loading banlist %s: %v", banlistFile, err)
	}
	return f, nil
}

func (f *urlSubstringFilter) loadBanlist(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry := strings.TrimRight(scanner.Text(), "\r")
		if entry == "" {
			continue
		}
		if !f.caseSensitive {
			entry = strings.ToLower(entry)
		}
		if _, seen := f.banset[entry]; !seen {
			f.banset[entry] = struct{}{}
			f.patterns = append(f.patterns, entry)
		}
	}
	return scanner.Err()
}

func (f *urlSubstringFilter) Process(doc any) (any, error) {
	raw, ok := jsonpath.Get(doc, f.urlKey)
	if !ok {
		raw, ok = jsonpath.Get(doc, f.altURLKey)
		if !ok {
			return nil, nil
		}
	}
	rawURL, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("url key %q is not a string", f.urlKey)
	}

	target := rawURL
	switch {
	case f.exactDomainMatch:
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
		}
		host := parsed.Hostname()
		if host == "" {
			return nil, fmt.Errorf("url %q has no host component", rawURL)
		}
		target = host
	case f.exactSubdomainMatch:
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
		}
		parts := strings.Split(parsed.Hostname(), ".")
		if len(parts) < 3 {
			return doc, nil
		}
		target = parts[0]
	}

	if !f.caseSensitive {
		target = strings.ToLower(target)
	}
	for _, c := range f.ignoreChars {
		target = strings.ReplaceAll(target, c, "")
	}

	if f.exactDomainMatch || f.exactSubdomainMatch || f.exactURLMatch {
		if _, banned := f.banset[target]; banned {
			return nil, nil
		}
		return doc, nil
	}

	if f.exactPartMatch {
		for _, part := range splitURLParts(target) {
			if _, banned := f.banset[part]; banned {
				return nil, nil
			}
		}
		return doc, nil
	}

	matches := 0
	for _, pattern := range f.patterns {
		if f.matchSubstrings {
			matches += strings.Count(target, pattern)
		} else {
			matches += countBoundaryMatches(target, pattern)
		}
		if matches >= f.numBannedSubstrs {
			return nil, nil
		}
	}
	return doc, nil
}

// splitURLParts splits on runs of non-alphanumeric ASCII.
func splitURLParts(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// countBoundaryMatches counts non-overlapping occurrences of pattern whose
// neighbors are not alphanumeric.
func countBoundaryMatches(s, pattern string) int {
	if pattern == "" {
		return 0
	}
	count := 0
	for offset := 0; ; {
		i := strings.Index(s[offset:], pattern)
		if i < 0 {
			return count
		}
		start := offset + i
		end := start + len(pattern)
		startOK := start == 0 || !isAlnumBefore(s, start)
		endOK := end == len(s) || !isAlnumAt(s, end)
		if startOK && endOK {
			count++
		}
		offset = end
	}
}

func isAlnumBefore(s string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isAlnumAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
