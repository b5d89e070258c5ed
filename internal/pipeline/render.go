package pipeline

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"podcast-digest/internal/models"
)

const transcriptExcerptLength = 600

var digestTitles = map[models.Cadence]string{
	models.CadenceDaily:  "Your daily podcast digest",
	models.CadenceWeekly: "Your weekly podcast digest",
}

// Render builds the Telegram HTML payload for a batch. Immediate batches
// carry one episode; daily and weekly batches get a header and a footer.
func Render(b Batch) models.Payload {
	blocks := make([]string, 0, len(b.Items)+2)
	if title, ok := digestTitles[b.Cadence]; ok {
		blocks = append(blocks, fmt.Sprintf("🎙️ <b>%s</b>", title))
	}
	for _, item := range b.Items {
		blocks = append(blocks, renderEpisode(item))
	}
	if b.Cadence != models.CadenceImmediate {
		blocks = append(blocks, fmt.Sprintf("📊 <b>Episodes:</b> %d", len(b.Items)))
	}

	return models.Payload{
		Text:           strings.Join(blocks, "\n\n"),
		IdempotencyKey: IdempotencyKey(b),
	}
}

func renderEpisode(c models.Candidate) string {
	ep := c.Episode
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎧 <b>%s</b>\n", html.EscapeString(ep.Title))
	if c.PodcastTitle != "" {
		fmt.Fprintf(&sb, "<i>%s</i>\n", html.EscapeString(c.PodcastTitle))
	}
	fmt.Fprintf(&sb, "📅 %s", ep.PublishedAt.UTC().Format("2006-01-02"))
	if ep.Link != "" {
		fmt.Fprintf(&sb, "\n🔗 %s", html.EscapeString(ep.Link))
	}
	sb.WriteString("\n\n")

	if ep.Summary != nil {
		sb.WriteString(html.EscapeString(*ep.Summary))
		return sb.String()
	}

	sb.WriteString("<i>Summary unavailable.</i>")
	if ep.Transcript != nil {
		excerpt := []rune(*ep.Transcript)
		if len(excerpt) > transcriptExcerptLength {
			excerpt = append(excerpt[:transcriptExcerptLength], '…')
		}
		fmt.Fprintf(&sb, " Transcript excerpt:\n%s", html.EscapeString(string(excerpt)))
	}
	return sb.String()
}

// IdempotencyKey is stable for the same user and set of episodes, so a
// re-delivery after a crash carries the same key.
func IdempotencyKey(b Batch) string {
	ids := make([]int64, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.Episode.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	name := strconv.FormatInt(b.UserID, 10) + ":" + strings.Join(parts, ",")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
