package xref

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		id    string
	}{
		{"empty notes", "", "abc123"},
		{"plain notes", "buy milk\nand eggs", "8f14e45f-ceea-467f-a0b1-1e3a2b4c5d6e"},
		{"notes with stale tag", "call mom\ncursorTodoId:old", "new.id:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := Encode(tt.notes, tt.id)
			clean, id := Decode(remote)
			if id != tt.id {
				t.Errorf("id = %q, want %q", id, tt.id)
			}
			if clean != Strip(tt.notes) {
				t.Errorf("clean = %q, want %q", clean, Strip(tt.notes))
			}
		})
	}
}

func TestEncodeReplacesExistingTag(t *testing.T) {
	got := Encode("cursorTodoId:abc\nnote", "abc")
	if got != "note\ncursorTodoId:abc" {
		t.Errorf("Encode = %q", got)
	}
}

func TestDecodeWithoutTag(t *testing.T) {
	clean, id := Decode("  just text  ")
	if id != "" || clean != "just text" {
		t.Errorf("Decode = %q, %q", clean, id)
	}
}

func TestDecodeTagEditedRemotely(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		clean string
	}{
		// Remote editors may move the tag to the top of the notes.
		{"moved to top", "cursorTodoId:abc123\nupdated in phone app", "updated in phone app"},
		{"indented", "updated in phone app\n   cursorTodoId:abc123", "updated in phone app"},
		{"joined onto a line", "updated in phone app cursorTodoId:abc123", "updated in phone app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, id := Decode(tt.notes)
			if id != "abc123" {
				t.Errorf("id = %q", id)
			}
			if clean != tt.clean {
				t.Errorf("clean = %q, want %q", clean, tt.clean)
			}
			if again := Encode(clean, id); again != tt.clean+"\ncursorTodoId:abc123" {
				t.Errorf("re-encoded = %q", again)
			}
		})
	}
}
