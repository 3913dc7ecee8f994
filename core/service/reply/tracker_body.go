package reply

import (
	"encoding/base64"
	"regexp"
	"strings"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/out"
)

// NoReadableBody is returned when no text part yields content.
const NoReadableBody = domain.NoReadableBody

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// ExtractBody flattens a MIME tree into plain text. The first non-empty
// text/plain leaf in depth-first order wins; otherwise the first non-empty
// text/html leaf with tags removed. Entities are left as-is.
func ExtractBody(payload *out.MessagePart) string {
	if text := findLeaf(payload, "text/plain"); text != "" {
		return text
	}
	if html := findLeaf(payload, "text/html"); html != "" {
		if text := strings.TrimSpace(StripTags(html)); text != "" {
			return text
		}
	}
	return NoReadableBody
}

// StripTags removes anything that looks like a markup tag.
func StripTags(html string) string {
	return htmlTagPattern.ReplaceAllString(html, "")
}

func findLeaf(part *out.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil {
		if text := strings.TrimSpace(decodePartData(part.Body.Data)); text != "" {
			return text
		}
	}
	for _, sub := range part.Parts {
		if text := findLeaf(sub, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// decodePartData accepts base64url with or without padding, falling back to
// standard base64. Undecodable data yields "". Parts arrive in their own
// charset, so the result is forced to valid UTF-8 without NUL bytes.
func decodePartData(data string) string {
	if data == "" {
		return ""
	}
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return domain.SanitizeText(string(decoded))
		}
	}
	return ""
}
