package sourcekitd

import "strings"

// SplitLongMultilineMessage splits a message into chunks of at most limit
// bytes, breaking only on line boundaries. A single line longer than limit
// becomes its own oversized chunk rather than being truncated or split
// mid-line. Concatenating the chunks with newlines restores the input.
//
// Logging sinks frequently truncate or drop oversized single messages; crash
// repro payloads (full source file plus full request dump) commonly exceed
// those limits, so they are emitted as an ordered sequence of chunks instead.
func SplitLongMultilineMessage(message string, limit int) []string {
	if limit <= 0 {
		limit = 1
	}

	lines := strings.Split(message, "\n")
	var chunks []string
	var current strings.Builder

	for _, line := range lines {
		switch {
		case current.Len() == 0:
			current.WriteString(line)
		case current.Len()+1+len(line) <= limit:
			current.WriteByte('\n')
			current.WriteString(line)
		default:
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(line)
		}
	}
	chunks = append(chunks, current.String())

	return chunks
}
