// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package internal

import (
	"regexp"
	"strings"
)

type patternTokenKind int8

const (
	tokenLiteral patternTokenKind = iota
	tokenAnyRun
	tokenAnyOne
)

type patternToken struct {
	kind patternTokenKind
	text string
}

// Pattern is a compiled catalog filter. The zero value matches every
// name.
type Pattern struct {
	re *regexp.Regexp
}

// CompilePattern compiles a catalog filter pattern.
//
// '%' matches any run of characters (including none), '_' matches
// exactly one character, and "\%", "\_" and "\\" match a literal
// percent, underscore and backslash. Any other backslash, including a
// trailing one, is itself a literal. Matching is case-sensitive and
// anchored at both ends. A nil pattern matches everything.
//
// Every input compiles; there is no malformed pattern.
func CompilePattern(pattern *string) Pattern {
	if pattern == nil {
		return Pattern{}
	}

	tokens := tokenizePattern(*pattern)

	var b strings.Builder
	b.WriteString("(?s)^")
	for _, tok := range tokens {
		switch tok.kind {
		case tokenAnyRun:
			b.WriteString(".*")
		case tokenAnyOne:
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(tok.text))
		}
	}
	b.WriteString("$")
	return Pattern{re: regexp.MustCompile(b.String())}
}

// tokenizePattern resolves escapes before wildcards are considered, so
// an escaped '%' can never be mistaken for a wildcard.
func tokenizePattern(pattern string) []patternToken {
	var (
		tokens  []patternToken
		literal strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, patternToken{kind: tokenLiteral, text: literal.String()})
			literal.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '\\':
			if i+1 < len(runes) {
				switch next := runes[i+1]; next {
				case '%', '_', '\\':
					literal.WriteRune(next)
					i++
					continue
				}
			}
			literal.WriteRune(c)
		case '%':
			flush()
			tokens = append(tokens, patternToken{kind: tokenAnyRun})
		case '_':
			flush()
			tokens = append(tokens, patternToken{kind: tokenAnyOne})
		default:
			literal.WriteRune(c)
		}
	}
	flush()
	return tokens
}

// Match reports whether value satisfies the pattern.
func (p Pattern) Match(value string) bool {
	if p.re == nil {
		return true
	}
	return p.re.MatchString(value)
}

// MatchesAll reports whether the pattern was compiled from a nil
// filter.
func (p Pattern) MatchesAll() bool { return p.re == nil }

// MatchPattern reports whether value satisfies pattern. See
// [CompilePattern] for the syntax.
func MatchPattern(value string, pattern *string) bool {
	return CompilePattern(pattern).Match(value)
}

// LiteralPattern returns the unescaped text of pattern when it
// contains no wildcards, so callers can use it as an exact name.
func LiteralPattern(pattern *string) (string, bool) {
	if pattern == nil {
		return "", false
	}
	var b strings.Builder
	for _, tok := range tokenizePattern(*pattern) {
		if tok.kind != tokenLiteral {
			return "", false
		}
		b.WriteString(tok.text)
	}
	return b.String(), true
}
