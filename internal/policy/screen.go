package policy

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnsafeMessage is returned for chat input that must not reach the model.
var ErrUnsafeMessage = errors.New("message rejected due to unsafe content")

var (
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
		regexp.MustCompile(`(?i)reset\s+the\s+conversation`),
		regexp.MustCompile(`(?i)system\s*prompt`),
		regexp.MustCompile(`(?i)(?:disregard|forget)\s+all\s+prior\s+(?:responses|instructions)`),
		regexp.MustCompile(`(?i)\b(?:database|schema|table|sql|drop table|truncate|delete from)\b`),
	}

	strippedChars = strings.NewReplacer(
		"!", "", "@", "", "$", "", "%", "", "^", "", "*", "", "(", "", ")", "",
		"-", "", "_", "", `"`, "", "'", "", ":", "", ";", "", "<", "", ">", "",
		"/", "", `\`, "", "~", "", "“", "", "”", "", "‘", "", "’", "",
	)

	repeatedSpace = regexp.MustCompile(`\s{2,}`)
)

// ScreenMessage rejects prompt-injection attempts and strips characters that
// are commonly used to smuggle instructions. The returned text is what the
// model sees.
func ScreenMessage(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", ErrUnsafeMessage
	}
	for _, p := range injectionPatterns {
		if p.MatchString(trimmed) {
			return "", ErrUnsafeMessage
		}
	}

	cleaned := strings.TrimSpace(repeatedSpace.ReplaceAllString(strippedChars.Replace(trimmed), " "))
	if cleaned == "" {
		return "", ErrUnsafeMessage
	}
	return cleaned, nil
}
