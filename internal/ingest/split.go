package ingest

import "strings"

// MaxChunkSize bounds chunk length in bytes. The embedding model's
// context is roughly 2048 tokens; staying well under keeps chunks from
// being silently truncated at embed time.
const MaxChunkSize = 2000

// SplitText splits content into chunks of at most maxSize bytes,
// preferring paragraph boundaries (blank lines). Consecutive short
// paragraphs are packed into one chunk; a single paragraph longer than
// maxSize is hard-split.
func SplitText(content string, maxSize int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxSize {
			flush()
			chunks = append(chunks, hardSplit(para, maxSize)...)
			continue
		}

		// +2 accounts for the paragraph separator being restored.
		if current.Len() > 0 && current.Len()+len(para)+2 > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// hardSplit cuts an oversized paragraph at line boundaries where
// possible, falling back to byte offsets.
func hardSplit(para string, maxSize int) []string {
	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(para, "\n") {
		for len(line) > maxSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:maxSize])
			line = line[maxSize:]
		}
		if current.Len() > 0 && current.Len()+len(line)+1 > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
