// Package xref embeds the local task id in the notes of a remote task so the
// record can be recognised after a round trip through the remote system.
//
// The tag is a single line "cursorTodoId:<id>". Encode and Decode are the only
// places that know about it.
package xref

import (
	"regexp"
	"strings"
)

// TagPrefix starts the tag line.
const TagPrefix = "cursorTodoId:"

var tagPattern = regexp.MustCompile(regexp.QuoteMeta(TagPrefix) + `([A-Za-z0-9\-_:.]+)`)

// Strip removes every tag, wherever Decode would find one, drops lines left
// empty by that and trims the result.
func Strip(notes string) string {
	lines := strings.Split(notes, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), TagPrefix) {
			continue
		}
		if tagPattern.MatchString(line) {
			line = strings.TrimRight(tagPattern.ReplaceAllString(line, ""), " \t")
			if strings.TrimSpace(line) == "" {
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Encode returns notes with old tags removed and a fresh tag for id appended.
func Encode(notes, id string) string {
	clean := Strip(notes)
	if id == "" {
		return clean
	}
	tag := TagPrefix + id
	if clean == "" {
		return tag
	}
	return clean + "\n" + tag
}

// Decode splits remote notes into the user-visible text and the embedded id.
// id is empty when no tag is present.
func Decode(notes string) (clean, id string) {
	if m := tagPattern.FindStringSubmatch(notes); m != nil {
		id = m[1]
	}
	return Strip(notes), id
}
