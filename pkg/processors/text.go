// Package processors rewrites text between turn stages: caller transcripts
// before they reach the model, and model replies before they are spoken.
package processors

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Processor rewrites one piece of text.
type Processor interface {
	Name() string
	Process(text string) string
}

// Chain runs processors in order.
type Chain []Processor

func (c Chain) Process(text string) string {
	for _, p := range c {
		text = p.Process(text)
	}
	return text
}

type Config struct {
	// Replacements maps spoken phrases to their canonical form in
	// transcripts, e.g. "a c" to "AC". Matching ignores case.
	Replacements      map[string]string `mapstructure:"replacements"`
	MaxReplyChars     int               `mapstructure:"max_reply_chars"`
	MaxReplySentences int               `mapstructure:"max_reply_sentences"`
}

// Build returns the transcript chain and the reply chain.
func (c Config) Build() (transcript, reply Chain) {
	if len(c.Replacements) > 0 {
		transcript = append(transcript, NewTextNormalizer(c.Replacements))
	}
	reply = append(reply, SpeechCleaner{})
	if c.MaxReplyChars > 0 || c.MaxReplySentences > 0 {
		reply = append(reply, NewResponseLimiter(ResponseLimiterConfig{
			MaxChars:     c.MaxReplyChars,
			MaxSentences: c.MaxReplySentences,
		}))
	}
	return transcript, reply
}

type replacement struct {
	re *regexp.Regexp
	to string
}

// TextNormalizer replaces whole-word phrases, longest phrase first.
type TextNormalizer struct {
	rules []replacement
}

func NewTextNormalizer(replacements map[string]string) *TextNormalizer {
	keys := make([]string, 0, len(replacements))
	for from := range replacements {
		if strings.TrimSpace(from) != "" {
			keys = append(keys, from)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	n := &TextNormalizer{}
	for _, from := range keys {
		n.rules = append(n.rules, replacement{
			re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(from)) + `\b`),
			to: replacements[from],
		})
	}
	return n
}

func (t *TextNormalizer) Name() string { return "text_normalizer" }

func (t *TextNormalizer) Process(text string) string {
	for _, r := range t.rules {
		text = r.re.ReplaceAllLiteralString(text, r.to)
	}
	return text
}

var (
	markdownMarks = regexp.MustCompile("[*_`#]+")
	listPrefix    = regexp.MustCompile(`(?m)^\s*(?:[-•]|\d+[.)])\s+`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// SpeechCleaner drops markdown a model may emit, which a synthesizer would
// otherwise read aloud, and collapses whitespace.
type SpeechCleaner struct{}

func (SpeechCleaner) Name() string { return "speech_cleaner" }

func (SpeechCleaner) Process(text string) string {
	text = listPrefix.ReplaceAllString(text, "")
	text = markdownMarks.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

type ResponseLimiterConfig struct {
	MaxChars     int
	MaxSentences int
}

// ResponseLimiter keeps replies short enough for a phone turn.
type ResponseLimiter struct {
	cfg ResponseLimiterConfig
}

func NewResponseLimiter(cfg ResponseLimiterConfig) *ResponseLimiter {
	return &ResponseLimiter{cfg: cfg}
}

func (r *ResponseLimiter) Name() string { return "response_limiter" }

func (r *ResponseLimiter) Process(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	out := truncateSentences(text, r.cfg.MaxSentences)
	if r.cfg.MaxChars > 0 && utf8.RuneCountInString(out) > r.cfg.MaxChars {
		out = truncateWords(out, r.cfg.MaxChars)
	}
	return out
}

func truncateSentences(text string, maxSentences int) string {
	if maxSentences <= 0 {
		return text
	}
	var out strings.Builder
	count := 0
	for _, r := range text {
		out.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= maxSentences {
				break
			}
		}
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return text
	}
	return result
}

// truncateWords cuts text to at most maxChars runes, backing up to the last
// word boundary when there is one.
func truncateWords(text string, maxChars int) string {
	runes := []rune(text)
	cut := string(runes[:maxChars])
	if runes[maxChars] != ' ' {
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimSpace(strings.TrimRight(cut, " ,;:-"))
}
