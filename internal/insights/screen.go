package insights

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxPromptLength bounds the prompt text sent to the analyzer.
const MaxPromptLength = 2000

// ScreenResult describes why a prompt was rejected. The zero value passes.
type ScreenResult struct {
	Rejected bool
	Reason   string // "blocked_term", "spam_pattern" or "too_long"
	Term     string
}

// defaultBlockedTerms are matched on whole words after leetspeak
// normalization. Multi-word entries match as consecutive words.
var defaultBlockedTerms = []string{
	"ignore previous instructions",
	"ignore all instructions",
	"disregard previous instructions",
	"reveal system prompt",
	"system prompt",
	"jailbreak",
	"api key",
	"nigger",
	"faggot",
	"kill yourself",
	"child porn",
}

var urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

type spamCheck struct {
	name  string
	match func(string) bool
}

// Order matters: the first match wins.
var spamChecks = []spamCheck{
	{name: "url", match: urlPattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

var leetReplacer = strings.NewReplacer(
	"0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t",
	"@", "a", "$", "s", "!", "i",
)

// Screener rejects prompts that carry blocked terms or spam patterns before
// they reach the analyzer. It is safe for concurrent use.
type Screener struct {
	words   map[string]struct{}
	phrases [][]string
}

// NewScreener returns a Screener with the default blocklist.
func NewScreener() *Screener {
	return NewScreenerWithTerms(defaultBlockedTerms)
}

// NewScreenerWithTerms returns a Screener for the given terms. Blank terms
// are ignored.
func NewScreenerWithTerms(terms []string) *Screener {
	s := &Screener{words: make(map[string]struct{})}
	for _, term := range terms {
		fields := strings.Fields(strings.ToLower(term))
		switch len(fields) {
		case 0:
		case 1:
			s.words[fields[0]] = struct{}{}
		default:
			s.phrases = append(s.phrases, fields)
		}
	}
	return s
}

// Screen checks a prompt with the default screener.
func Screen(prompt string) ScreenResult {
	return defaultScreener.Check(prompt)
}

var defaultScreener = NewScreener()

// Check screens text.
func (s *Screener) Check(text string) ScreenResult {
	if len(text) > MaxPromptLength {
		return ScreenResult{Rejected: true, Reason: "too_long"}
	}

	// Plain tokens catch "api key"; leet-normalized tokens catch "j41lbr34k".
	for _, tokens := range [][]string{tokenizePlain(text), tokenizeLeet(text)} {
		if term, ok := s.match(tokens); ok {
			return ScreenResult{Rejected: true, Reason: "blocked_term", Term: term}
		}
	}

	for _, sc := range spamChecks {
		if sc.match(text) {
			return ScreenResult{Rejected: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return ScreenResult{}
}

func (s *Screener) match(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := s.words[tok]; ok {
			return tok, true
		}
	}
	for _, phrase := range s.phrases {
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			hit := true
			for j, w := range phrase {
				if tokens[i+j] != w {
					hit = false
					break
				}
			}
			if hit {
				return strings.Join(phrase, " "), true
			}
		}
	}
	return "", false
}

func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenizeLeet(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '?' || r == ';' || r == ':'
	})
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		out = append(out, leetReplacer.Replace(tok))
	}
	return out
}

// hasCharFlood reports 5 or more consecutive identical letters. Digits are
// exempt so values like 100000 pass.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev && unicode.IsLetter(r) {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 3 or more times in a row,
// case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.Fields(text)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
