package transcribe

import (
	"fmt"

	"golang.org/x/text/language"
)

// ParseLanguage validates a BCP 47 tag and returns it in canonical form.
func ParseLanguage(tag string) (language.Tag, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return t, nil
}

// baseLanguage reduces a BCP 47 tag to its ISO 639-1 base ("en-US" -> "en").
// Unparseable or empty tags yield "" so the backend auto-detects.
func baseLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, conf := t.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
