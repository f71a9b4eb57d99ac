package ingest

import "strings"

// ComputeThreadKey derives the conversation grouping key for a message.
// Preference order: the root of the References chain, then In-Reply-To,
// then the message's own Message-ID. Angle brackets are stripped so a reply
// and the message it answers produce the same key regardless of how each
// header quoted the identifier. A message with none of the three gets an
// empty key and is never grouped.
func ComputeThreadKey(references []string, inReplyTo, messageID string) string {
	for _, ref := range references {
		if ref = normalizeMessageID(ref); ref != "" {
			return ref
		}
	}
	if inReplyTo = normalizeMessageID(inReplyTo); inReplyTo != "" {
		return inReplyTo
	}
	return normalizeMessageID(messageID)
}

func normalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
