package usecase

import "strings"

// chunkWords splits text into windows of at most size words, each window
// starting size-overlap words after the previous one. Whitespace-only input
// yields nil.
func chunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size - 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	var out []string
	for start := 0; ; start += size - overlap {
		end := min(start+size, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			return out
		}
	}
}
