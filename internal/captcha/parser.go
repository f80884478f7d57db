// internal/captcha/parser.go
package captcha

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Rule identifies which extraction rule produced a target number. The engine
// logs it per attempt so instruction-format drift shows up in the field
// before it breaks anything.
type Rule string

const (
	// RuleCueThreeDigit matched a three digit number right after the cue
	// word, the strongest signal the instruction format offers.
	RuleCueThreeDigit Rule = "cue-three-digit"
	// RuleThreeDigit matched a standalone three digit number anywhere.
	RuleThreeDigit Rule = "three-digit"
	// RuleCueAny matched a number of any length after the cue word.
	RuleCueAny Rule = "cue-any"
	// RuleAny matched the first number found anywhere in the text.
	RuleAny Rule = "any-number"
	// RuleDefault means nothing matched and the configured fallback target
	// was used.
	RuleDefault Rule = "default"
)

// Extraction rules in priority order. Challenges phrase instructions as
// "... boxes with number NNN", so a cue-adjacent three digit hit outranks
// any other number in the string (tile labels, counts, years).
var (
	reCueThreeDigit = regexp.MustCompile(`(?i)number\s+(\d{3})\b`)
	reThreeDigit    = regexp.MustCompile(`\b\d{3}\b`)
	reCueAny        = regexp.MustCompile(`(?i)number\s+(\d+)`)
	reAnyNumber     = regexp.MustCompile(`\d+`)
)

const fallbackTarget = "667"

// Parser extracts the target number from challenge instruction text. It
// never fails: when no rule matches it falls back to the configured default
// so an attempt always has something to verify against.
type Parser struct {
	defaultTarget string
	logger        *zap.Logger
}

// NewParser builds a Parser with the given fallback target. An empty
// defaultTarget falls back to the stock challenge default.
func NewParser(defaultTarget string, logger *zap.Logger) *Parser {
	if defaultTarget == "" {
		defaultTarget = fallbackTarget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{defaultTarget: defaultTarget, logger: logger}
}

// Extract pulls the target number out of instruction text. Rules are tried
// strictly in order and the first match wins; the returned Rule says which
// one fired. A default-rule hit is logged at Warn because it usually means
// the site changed its instruction wording.
func (p *Parser) Extract(instruction string) (string, Rule) {
	text := strings.TrimSpace(instruction)
	if text != "" {
		if m := reCueThreeDigit.FindStringSubmatch(text); m != nil {
			return m[1], RuleCueThreeDigit
		}
		if m := reThreeDigit.FindString(text); m != "" {
			return m, RuleThreeDigit
		}
		if m := reCueAny.FindStringSubmatch(text); m != nil {
			return m[1], RuleCueAny
		}
		if m := reAnyNumber.FindString(text); m != "" {
			return m, RuleAny
		}
	}

	p.logger.Warn("No target number found in instruction, using default",
		zap.String("instruction", text),
		zap.String("default", p.defaultTarget),
	)
	return p.defaultTarget, RuleDefault
}
