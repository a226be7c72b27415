package redact

import "regexp"

// LinePlaceholder replaces every line matching the masked-number signature.
const LinePlaceholder = "[REDACTED LINE]"

// maskedLinePattern matches any line containing a run of mask characters
// immediately followed by digits, e.g. a partially-masked account number
// like "****1234". Matching is line-scoped: a run split across a line
// boundary does not match.
var maskedLinePattern = regexp.MustCompile(`(?m)^.*\*+[0-9]+.*$`)

// RedactLines replaces every line containing a mask+digit run with
// LinePlaceholder. Lines without the signature pass through unchanged.
// The placeholder itself never matches, so the pass is idempotent.
func RedactLines(text string) string {
	text, _ = redactLines(text)
	return text
}

// redactLines additionally reports how many lines were replaced.
func redactLines(text string) (string, int) {
	if text == "" {
		return text, 0
	}
	matches := maskedLinePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}
	return maskedLinePattern.ReplaceAllLiteralString(text, LinePlaceholder), len(matches)
}
