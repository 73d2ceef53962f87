// Package protocol defines the JSON documents exchanged between the browser
// client and the sync service.
package protocol

import (
	"fmt"
	"strings"

	"soundpairs/internal/records"
	"soundpairs/internal/sets"
)

// Message limits enforced on upload.
const (
	MaxMessages   = 1000
	MaxMessageLen = 150
)

// RecordsDoc is the full best-record document: per-set records keyed by set
// id ("0" tones, "1"/"2" custom), the two custom-set display names, and the
// audio key list of each custom slot.
type RecordsDoc struct {
	Best  map[string]records.Best `json:"best"`
	Names [2]string               `json:"names"`
	Keys  [2][]string             `json:"keys"`
}

// DefaultRecordsDoc returns the document served before anything was saved.
func DefaultRecordsDoc() RecordsDoc {
	return RecordsDoc{
		Best: map[string]records.Best{
			"0": {}, "1": {}, "2": {},
		},
		Names: sets.DefaultNames,
		Keys:  [2][]string{{}, {}},
	}
}

// MessagesDoc carries the full ticker message list.
type MessagesDoc struct {
	Messages []string `json:"messages"`
}

// SlotKeyPrefix returns the audio key prefix of one custom slot. Clients
// upload slot audio under "set<slot>-<index>" keys.
func SlotKeyPrefix(slot int) string {
	return fmt.Sprintf("set%d-", slot)
}

// SanitizeMessages trims entries, drops blank or overlong ones and caps the
// list at MaxMessages.
func SanitizeMessages(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" || len(m) > MaxMessageLen {
			continue
		}
		out = append(out, m)
		if len(out) == MaxMessages {
			break
		}
	}
	return out
}
