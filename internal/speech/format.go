package speech

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	boldPattern       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern     = regexp.MustCompile(`\*(.*?)\*`)
	underlinePattern  = regexp.MustCompile(`__(.*?)__`)
	headingPattern    = regexp.MustCompile(`#{1,6}\s*`)
	inlineCodePattern = regexp.MustCompile("`(.*?)`")

	// Extended pictographic blocks: emoji, dingbats, misc symbols and
	// technical, arrows, legal marks, CJK ideograph emoji, regional
	// indicators, plus the joiners and selectors that glue multi-codepoint
	// emoji together.
	emojiPattern = regexp.MustCompile(`[` +
		`\x{1F000}-\x{1FAFF}\x{1F1E6}-\x{1F1FF}` +
		`\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}` +
		`\x{2190}-\x{21FF}\x{2300}-\x{23FF}\x{2900}-\x{297F}` +
		`\x{25A0}-\x{25FF}` +
		`\x{00A9}\x{00AE}\x{2122}\x{2139}\x{203C}\x{2049}\x{24C2}` +
		`\x{3030}\x{303D}\x{3297}\x{3299}` +
		`\x{FE0E}\x{FE0F}\x{200D}\x{20E3}\x{E0020}-\x{E007F}` +
		`]`)

	bulletPattern = regexp.MustCompile(`[•·▪▫◦‣⁃]`)
	arrowPattern  = regexp.MustCompile(`[→←↑↓]`)

	dropPattern    = regexp.MustCompile("[@#*`]")
	spacePattern   = regexp.MustCompile(`[-_()\[\]{}"“”„‘]`)
	newlinePattern = regexp.MustCompile(`[\n\x{2028}\x{2029}]+`)
	blankPattern   = regexp.MustCompile(`[\s\p{Z}]+`)
)

var spokenSymbols = strings.NewReplacer(
	"₹", "rupees ",
	"$", "rupees ",
	"€", "rupees ",
	"£", "rupees ",
	"¥", "rupees ",
	"%", " percent ",
	"&", " and ",
	"’", "'",
)

// Clean rewrites assistant markdown into plain speakable text.
func Clean(text string) string {
	s := boldPattern.ReplaceAllString(text, "$1")
	s = underlinePattern.ReplaceAllString(s, "$1")
	s = italicPattern.ReplaceAllString(s, "$1")
	s = headingPattern.ReplaceAllString(s, "")
	s = inlineCodePattern.ReplaceAllString(s, "$1")

	s = emojiPattern.ReplaceAllString(s, "")

	s = bulletPattern.ReplaceAllString(s, "")
	s = arrowPattern.ReplaceAllString(s, "")

	s = spokenSymbols.Replace(s)
	s = dropPattern.ReplaceAllString(s, "")

	s = spacePattern.ReplaceAllString(s, " ")
	s = newlinePattern.ReplaceAllString(s, " ")
	s = blankPattern.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// Sentences splits an assistant reply into the utterances read aloud, in
// order. Re-running it on any returned sentence yields that same sentence.
// An empty result means there is nothing to speak.
func Sentences(text string) []string {
	cleaned := Clean(text)
	if cleaned == "" {
		return []string{}
	}

	sentences := []string{}
	start := 0
	runes := []rune(cleaned)
	for i := 0; i < len(runes)-1; i++ {
		if isTerminal(runes[i]) && unicode.IsSpace(runes[i+1]) {
			sentences = appendSentence(sentences, string(runes[start:i+1]))
			start = i + 1
		}
	}
	return appendSentence(sentences, string(runes[start:]))
}

// EndsSentence reports whether s ends in terminal punctuation.
func EndsSentence(s string) bool {
	r := []rune(strings.TrimSpace(s))
	return len(r) > 0 && isTerminal(r[len(r)-1])
}

func appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return sentences
	}
	return append(sentences, s)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
