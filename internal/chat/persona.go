package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// DefaultPersona is the system message for every exchange with the child.
const DefaultPersona = "You are Wave Buddy, a warm and patient friend for young children. " +
	"Answer in one or two short, simple sentences. Be kind, playful and encouraging. " +
	"Never use scary, rude or grown-up topics, and never ask for personal details."

const languagePersona = "Identify the language of the user's text. " +
	"Reply with only its two-letter ISO 639-1 code and nothing else."

const languageMaxTokens = 5

// DetectLanguage asks the deployment which language text is in and returns
// a lowercase code such as "en" or "fr".
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	return DetectLanguage(ctx, c, text)
}

// DetectLanguage runs language detection through any Responder.
func DetectLanguage(ctx context.Context, r Responder, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrUnknownLanguage
	}

	reply, err := r.Respond(ctx, text, languagePersona, languageMaxTokens)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}

	code := NormalizeLanguage(reply)
	if code == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, reply)
	}
	return code, nil
}

// NormalizeLanguage reduces replies like " EN.", "en-US" or "Language: fr"
// to a bare lowercase code. It returns "" when nothing code-like is found.
func NormalizeLanguage(reply string) string {
	fields := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '_'
	})
	if len(fields) == 0 {
		return ""
	}

	code := fields[len(fields)-1]
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if len(code) < 2 || len(code) > 3 {
		return ""
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return code
}
