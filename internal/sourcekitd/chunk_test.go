package sourcekitd

import (
	"strings"
	"testing"
)

func TestSplitLongMultilineMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		limit   int
		want    []string
	}{
		{
			name:    "fits in one chunk",
			message: "a\nb\nc",
			limit:   100,
			want:    []string{"a\nb\nc"},
		},
		{
			name:    "splits on line boundary",
			message: "aaaa\nbbbb\ncccc",
			limit:   9,
			want:    []string{"aaaa\nbbbb", "cccc"},
		},
		{
			name:    "oversized line becomes its own chunk",
			message: "short\n" + strings.Repeat("x", 50) + "\nshort",
			limit:   10,
			want:    []string{"short", strings.Repeat("x", 50), "short"},
		},
		{
			name:    "empty message",
			message: "",
			limit:   10,
			want:    []string{""},
		},
		{
			name:    "zero limit treated as one",
			message: "a\nb",
			limit:   0,
			want:    []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLongMultilineMessage(tt.message, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitRestoresInput(t *testing.T) {
	message := "Request:\n{\"key.request\":\"source.request.editor.open\"}\n" +
		strings.Repeat("let x = 1\n", 500) + "end"
	for _, limit := range []int{1, 16, 256, 8 * 1024} {
		chunks := SplitLongMultilineMessage(message, limit)
		if got := strings.Join(chunks, "\n"); got != message {
			t.Fatalf("limit %d: joining chunks does not restore the input", limit)
		}
	}
}

func TestSplitRespectsLimit(t *testing.T) {
	message := strings.Repeat("0123456789\n", 100)
	for _, chunk := range SplitLongMultilineMessage(message, 64) {
		if len(chunk) > 64 {
			t.Fatalf("chunk of %d bytes exceeds limit, and no single line required it", len(chunk))
		}
	}
}
