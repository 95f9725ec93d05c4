package llm

import (
	"regexp"
	"strings"
	"unicode"
)

// RejectScore is the risk score at which a prompt is refused.
const RejectScore = 0.8

const (
	maxPromptLength    = 4000
	keywordWeight      = 0.2
	lengthWeight       = 0.3
	specialCharWeight  = 0.3
	specialCharDensity = 0.3
)

var blacklist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(your|the|previous)\s+(instructions|rules|guidelines)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above)`),
	regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(your|the)\s+(system\s+prompt|instructions)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(DAN|in\s+developer\s+mode|unrestricted)`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|im_start|im_end)\s*>`),
}

var suspiciousKeywords = []string{
	"system prompt", "bypass", "override", "pretend", "roleplay",
	"developer mode", "sudo", "admin mode", "no restrictions",
}

// ScorePrompt rates the injection risk of text between 0 and 1. A blacklist match scores
// 1 and is reported as pattern.
func ScorePrompt(text string) (score float64, pattern string) {
	for _, re := range blacklist {
		if loc := re.FindString(text); loc != "" {
			return 1, re.String()
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			score += keywordWeight
		}
	}
	if len(text) > maxPromptLength {
		score += lengthWeight
	}
	if density(text) > specialCharDensity {
		score += specialCharWeight
	}
	if score > 1 {
		score = 1
	}
	return score, ""
}

func density(text string) float64 {
	total, special := 0, 0
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how\s+to\s+(make|build|assemble)\s+(a\s+)?(bomb|explosive|weapon)`),
	regexp.MustCompile(`(?i)(kill|hurt|harm)\s+(yourself|himself|herself|someone)`),
	regexp.MustCompile(`(?i)step[-\s]by[-\s]step\s+.*(synthesi[sz]e|manufactur\w*)\s+.*(drug|meth|poison)`),
	regexp.MustCompile(`(?i)(steal|phish)\s+(credentials|passwords|credit\s+cards)`),
}

var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	"phone":       regexp.MustCompile(`\+?\d{1,3}[\s.-]?\(?\d{2,3}\)?[\s.-]?\d{4,5}[\s.-]?\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[\s-]?){3}\d{4}\b`),
	"cpf":         regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`),
}

// ScanResponse reports the harmful patterns and PII kinds found in text.
func ScanResponse(text string) (harmful []string, pii []string) {
	for _, re := range harmfulPatterns {
		if re.MatchString(text) {
			harmful = append(harmful, re.String())
		}
	}
	for kind, re := range piiPatterns {
		if re.MatchString(text) {
			pii = append(pii, kind)
		}
	}
	return harmful, pii
}
