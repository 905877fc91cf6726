package bot

import (
	"strings"
	"unicode"

	"go-streamrip-bot/config"
	"go-streamrip-bot/downloader"
)

// maxBatchLinks bounds how many links one command may queue.
const maxBatchLinks = 20

// ParsedArgs is the validated form of a download or search command.
type ParsedArgs struct {
	Links []string
	Query string

	Quality  *downloader.Quality
	Codec    downloader.Codec
	Name     string
	Platform string
	Type     downloader.MediaType
}

// IsSearch reports whether the arguments are a free text query.
func (p ParsedArgs) IsSearch() bool {
	return len(p.Links) == 0 && p.Query != ""
}

// ParseArgs turns command arguments into links or a query plus flags.
// Supported flags: -q/-quality, -c/-codec, -n/-name, -p/-platform, -t/-type.
// Any failure is a *UserError.
func ParseArgs(args string) (ParsedArgs, error) {
	tokens, err := tokenize(args)
	if err != nil {
		return ParsedArgs{}, err
	}

	var parsed ParsedArgs
	var words []string

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		flag, isFlag := flagName(tok)
		if !isFlag {
			if downloader.IsLink(tok) {
				parsed.Links = append(parsed.Links, tok)
			} else {
				words = append(words, tok)
			}
			continue
		}

		if i+1 >= len(tokens) {
			return ParsedArgs{}, userErrorf("Flag %s needs a value.", tok)
		}
		value := tokens[i+1]
		i++

		switch flag {
		case "q", "quality":
			q, err := downloader.ParseQuality(value)
			if err != nil {
				return ParsedArgs{}, userErrorf("Invalid quality %q. Use 0-%d.", value, config.MaxQuality)
			}
			parsed.Quality = &q
		case "c", "codec":
			c, err := downloader.ParseCodec(value)
			if err != nil {
				return ParsedArgs{}, userErrorf("Invalid codec %q. Use one of: %s.", value, strings.Join(config.SupportedCodecs, ", "))
			}
			parsed.Codec = c
		case "n", "name":
			parsed.Name = strings.TrimSpace(value)
		case "p", "platform":
			parsed.Platform = strings.ToLower(value)
			if !knownPlatform(parsed.Platform) {
				return ParsedArgs{}, userErrorf("Unknown platform %q. Use one of: %s.", value, strings.Join(config.PlatformNames, ", "))
			}
		case "t", "type":
			parsed.Type = downloader.MediaType(strings.ToLower(value))
			if !searchableType(parsed.Type) {
				return ParsedArgs{}, userErrorf("Unknown type %q. Use track, album, playlist or artist.", value)
			}
		default:
			return ParsedArgs{}, userErrorf("Unknown flag %s.", tok)
		}
	}

	if len(parsed.Links) > 0 && len(words) > 0 {
		return ParsedArgs{}, userErrorf("Send either links or a search query, not both.")
	}
	if len(parsed.Links) > maxBatchLinks {
		return ParsedArgs{}, userErrorf("Too many links: %d. At most %d per command.", len(parsed.Links), maxBatchLinks)
	}
	if len(parsed.Links) > 1 && parsed.Name != "" {
		return ParsedArgs{}, userErrorf("A custom name only works with a single link.")
	}
	parsed.Query = strings.Join(words, " ")
	return parsed, nil
}

// flagName recognises -x, --x and -word forms. Negative numbers and a lone
// dash are not flags.
func flagName(tok string) (string, bool) {
	if len(tok) < 2 || tok[0] != '-' {
		return "", false
	}
	name := strings.TrimLeft(tok, "-")
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		return "", false
	}
	return strings.ToLower(name), true
}

// tokenize splits on whitespace and honours double or single quotes.
func tokenize(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		inToken bool
	)

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			// Apostrophes inside words are literal.
			if inToken && r == '\'' {
				current.WriteRune(r)
				continue
			}
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, userErrorf("Unclosed quote in arguments.")
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

func knownPlatform(name string) bool {
	for _, p := range config.PlatformNames {
		if p == name {
			return true
		}
	}
	return false
}

func searchableType(t downloader.MediaType) bool {
	switch t {
	case downloader.MediaTrack, downloader.MediaAlbum, downloader.MediaPlaylist, downloader.MediaArtist:
		return true
	}
	return false
}
