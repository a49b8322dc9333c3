package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"wachat/internal/constants"
	"wachat/internal/errors"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// NormalizePhone strips every non-digit character from a counterparty
// identifier. The result is stable under repeated application.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripHTML reduces an HTML message body to plain text for previews and
// template variables. Block-level breaks become newlines, entities are
// decoded for the common cases, remaining tags are dropped.
func StripHTML(body string) string {
	if body == "" {
		return ""
	}
	s := body
	for _, br := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>"} {
		s = strings.ReplaceAll(s, br, "\n")
	}
	s = htmlTagPattern.ReplaceAllString(s, "")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

// ValidatePhoneNumber validates a normalized phone number's length and content
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	if len(phone) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(phone) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range phone {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateMessageBody validates an outbound message body
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message body cannot be empty")
	}

	if len(body) > constants.MaxMessageBodyLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message body too long (max %d bytes)", constants.MaxMessageBodyLength))
	}

	return nil
}
