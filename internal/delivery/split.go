package delivery

import "strings"

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

// SplitMessage breaks text into chunks of at most max runes, keeping
// paragraphs (separated by a blank line) together where possible. A single
// paragraph longer than max is cut at the last line break or space that fits,
// keeping its HTML tags balanced in every chunk.
func SplitMessage(text string, max int) []string {
	if max <= 0 || len([]rune(text)) <= max {
		return []string{text}
	}

	var chunks []string
	var current string
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
		current = ""
	}

	for _, para := range strings.Split(text, "\n\n") {
		for _, piece := range cutLong(para, max) {
			if current != "" && len([]rune(current))+len([]rune(piece))+2 > max {
				flush()
			}
			if current == "" {
				current = piece
			} else {
				current += "\n\n" + piece
			}
		}
	}
	flush()
	return chunks
}

type openTag struct {
	name string
	raw  string
}

func closeTags(stack []openTag) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</" + stack[i].name + ">")
	}
	return b.String()
}

func reopenTags(stack []openTag) string {
	var b strings.Builder
	for _, t := range stack {
		b.WriteString(t.raw)
	}
	return b.String()
}

func tagName(tag string) string {
	name := strings.TrimLeft(strings.TrimSuffix(tag, ">"), "</")
	if i := strings.IndexAny(name, " \t\n/"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func indexRune(r []rune, c rune) int {
	for i, x := range r {
		if x == c {
			return i
		}
	}
	return -1
}

// cutLong splits a paragraph of Telegram HTML into pieces of at most max
// runes. A cut never lands inside a tag or an entity. Tags open at a cut are
// closed at the end of the piece and reopened at the start of the next.
func cutLong(para string, max int) []string {
	var out []string
	r := []rune(para)
	prefix := 0
	for len(r) > max {
		cut, stack := findCut(r, max, prefix)
		if cut == 0 {
			cut, stack = max, nil
		}
		out = append(out, strings.TrimSpace(string(r[:cut]))+closeTags(stack))
		reopen := reopenTags(stack)
		prefix = len([]rune(reopen))
		r = []rune(reopen + strings.TrimLeft(string(r[cut:]), " \n"))
	}
	return append(out, string(r))
}

// findCut returns the cut position and the tags open there. Whitespace in
// the second half of the window is preferred. Positions at or before min
// belong to reopened tags and are not eligible.
func findCut(r []rune, max, min int) (int, []openTag) {
	var stack []openTag
	closeLen := 0
	best, fallback := 0, 0
	var bestStack, fallbackStack []openTag

	for i := 0; i < len(r) && i <= max; {
		if i > min && i+closeLen <= max {
			snapshot := append([]openTag(nil), stack...)
			if r[i] == ' ' || r[i] == '\n' {
				best, bestStack = i, snapshot
			}
			fallback, fallbackStack = i, snapshot
		}

		switch r[i] {
		case '<':
			end := indexRune(r[i:], '>')
			if end < 0 {
				i++
				continue
			}
			tag := string(r[i : i+end+1])
			name := tagName(tag)
			switch {
			case strings.HasPrefix(tag, "</"):
				if n := len(stack); n > 0 && stack[n-1].name == name {
					stack = stack[:n-1]
					closeLen -= len(name) + 3
				}
			case !strings.HasSuffix(tag, "/>"):
				stack = append(stack, openTag{name: name, raw: tag})
				closeLen += len(name) + 3
			}
			i += end + 1
		case '&':
			if end := indexRune(r[i:], ';'); end > 0 && end <= 10 {
				i += end + 1
			} else {
				i++
			}
		default:
			i++
		}
	}

	if best > max/2 {
		return best, bestStack
	}
	return fallback, fallbackStack
}
