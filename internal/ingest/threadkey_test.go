package ingest

import "testing"

func TestComputeThreadKey(t *testing.T) {
	tests := []struct {
		name       string
		references []string
		inReplyTo  string
		messageID  string
		expected   string
	}{
		{
			name:       "prefers the root of the references chain",
			references: []string{"<root@example.com>", "<mid@example.com>"},
			inReplyTo:  "<mid@example.com>",
			messageID:  "<leaf@example.com>",
			expected:   "root@example.com",
		},
		{
			name:      "falls back to in-reply-to",
			inReplyTo: "<parent@example.com>",
			messageID: "<child@example.com>",
			expected:  "parent@example.com",
		},
		{
			name:      "falls back to the message's own id",
			messageID: "<solo@example.com>",
			expected:  "solo@example.com",
		},
		{
			name:     "no identifiers yields no key",
			expected: "",
		},
		{
			name:       "skips blank references",
			references: []string{"", "  ", "<real@example.com>"},
			expected:   "real@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeThreadKey(tt.references, tt.inReplyTo, tt.messageID)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
