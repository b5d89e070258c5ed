// Package summarize turns episode transcripts into short bullet summaries
// using a hosted language model.
package summarize

import (
	"fmt"
	"strings"

	"podcast-digest/internal/models"
)

// MaxTranscriptChars bounds the transcript sent to the model, in runes.
const MaxTranscriptChars = 8000

const systemPrompt = "You summarize podcast episodes for a notification digest. " +
	"Reply with exactly three bullet points starting with \"- \", one or two sentences each, and nothing else."

// BuildPrompt renders the user prompt for one episode.
func BuildPrompt(req models.SummaryRequest) string {
	transcript := strings.TrimSpace(req.Transcript)
	truncated := false
	if r := []rune(transcript); len(r) > MaxTranscriptChars {
		transcript = string(r[:MaxTranscriptChars])
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString("Please provide a concise 3-bullet point summary of the following podcast transcript.\n")
	sb.WriteString("Focus on the key insights, main topics, and important discussions.\n")
	sb.WriteString("Each bullet point should be 1-2 sentences maximum.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", req.Title)
	if !req.PublishedAt.IsZero() {
		fmt.Fprintf(&sb, "Published: %s\n", req.PublishedAt.UTC().Format("2006-01-02"))
	}
	sb.WriteString("\nTranscript:\n")
	sb.WriteString(transcript)
	if truncated {
		sb.WriteString("... [truncated]")
	}
	sb.WriteString("\n\nSummary:")
	return sb.String()
}
