package imap

import (
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// NormalizeFlags converts a raw flag list into the canonical flag set.
// Comparison is case-insensitive: servers are inconsistent about the
// capitalization of system flags.
func NormalizeFlags(flags []imap.Flag) models.FlagSet {
	var fs models.FlagSet
	for _, flag := range flags {
		switch strings.ToLower(string(flag)) {
		case strings.ToLower(string(imap.FlagSeen)):
			fs.Seen = true
		case strings.ToLower(string(imap.FlagFlagged)):
			fs.Flagged = true
		case strings.ToLower(string(imap.FlagAnswered)):
			fs.Answered = true
		case strings.ToLower(string(imap.FlagDraft)):
			fs.Draft = true
		case strings.ToLower(string(imap.FlagDeleted)):
			fs.Deleted = true
		}
	}
	return fs
}

// NormalizeFlagSet converts an unordered flag set (as produced by
// PERMANENTFLAGS handling and some server responses) into the canonical set.
func NormalizeFlagSet(flags map[imap.Flag]struct{}) models.FlagSet {
	list := make([]imap.Flag, 0, len(flags))
	for flag := range flags {
		list = append(list, flag)
	}
	return NormalizeFlags(list)
}

// NormalizeFlagStrings converts plain string flags (as carried on API
// requests, e.g. "\\Seen") into the canonical set.
func NormalizeFlagStrings(flags []string) models.FlagSet {
	list := make([]imap.Flag, 0, len(flags))
	for _, flag := range flags {
		list = append(list, imap.Flag(flag))
	}
	return NormalizeFlags(list)
}

// flagsFromBuffer extracts the canonical flag set from a fetch response
// buffer, the flags-bearing wrapper shape the client library hands back.
func flagsFromBuffer(buf *imapclient.FetchMessageBuffer) models.FlagSet {
	if buf == nil {
		return models.FlagSet{}
	}
	return NormalizeFlags(buf.Flags)
}

// flagsToWire converts canonical flag names back to protocol flags for
// STORE commands. Unknown names pass through untouched so custom keywords
// still work.
func flagsToWire(flags []string) []imap.Flag {
	wire := make([]imap.Flag, 0, len(flags))
	for _, flag := range flags {
		switch strings.ToLower(flag) {
		case "seen", `\seen`:
			wire = append(wire, imap.FlagSeen)
		case "flagged", `\flagged`:
			wire = append(wire, imap.FlagFlagged)
		case "answered", `\answered`:
			wire = append(wire, imap.FlagAnswered)
		case "draft", `\draft`:
			wire = append(wire, imap.FlagDraft)
		case "deleted", `\deleted`:
			wire = append(wire, imap.FlagDeleted)
		default:
			wire = append(wire, imap.Flag(flag))
		}
	}
	return wire
}
