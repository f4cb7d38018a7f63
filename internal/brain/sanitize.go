package brain

import "regexp"

// massMentionPattern matches Discord mentions that would ping a whole guild
// or role: @everyone, @here and <@&role> markers.
var massMentionPattern = regexp.MustCompile(`@(everyone|here)\b|<@&\d+>`)

// SanitizeReply removes mass mentions from model output before it is posted.
// Returns the cleaned content and the count of mentions stripped.
func SanitizeReply(content string) (string, int) {
	matches := massMentionPattern.FindAllStringIndex(content, -1)
	count := len(matches)
	if count == 0 {
		return content, 0
	}
	return massMentionPattern.ReplaceAllString(content, ""), count
}
