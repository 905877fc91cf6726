package bot

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gotd/td/tg"
)

// parseMarkdown strips **bold**, `code` and ```pre``` markers from text and returns the
// plain text with matching entities. Offsets are in UTF-16 code units as
// Telegram expects.
func parseMarkdown(text string) (string, []tg.MessageEntityClass) {
	var (
		out      strings.Builder
		entities []tg.MessageEntityClass
		offset   int
	)

	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "```"):
			if end := strings.Index(text[i+3:], "```"); end >= 0 {
				inner := strings.Trim(text[i+3:i+3+end], "\n")
				length := utf16Len(inner)
				if length > 0 {
					entities = append(entities, &tg.MessageEntityPre{Offset: offset, Length: length})
				}
				out.WriteString(inner)
				offset += length
				i += end + 6
				continue
			}
		case text[i] == '`':
			if end := strings.IndexByte(text[i+1:], '`'); end >= 0 {
				inner := text[i+1 : i+1+end]
				length := utf16Len(inner)
				if length > 0 {
					entities = append(entities, &tg.MessageEntityCode{Offset: offset, Length: length})
				}
				out.WriteString(inner)
				offset += length
				i += end + 2
				continue
			}
		case strings.HasPrefix(text[i:], "**"):
			if end := strings.Index(text[i+2:], "**"); end >= 0 {
				inner := text[i+2 : i+2+end]
				length := utf16Len(inner)
				if length > 0 {
					entities = append(entities, &tg.MessageEntityBold{Offset: offset, Length: length})
				}
				out.WriteString(inner)
				offset += length
				i += end + 4
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		out.WriteString(text[i : i+size])
		offset += max(utf16.RuneLen(r), 1)
		i += size
	}

	return out.String(), entities
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// escapeMarkdown neutralises user supplied text before it is embedded in a
// formatted message.
func escapeMarkdown(s string) string {
	return strings.NewReplacer("`", "'", "**", "*").Replace(s)
}
