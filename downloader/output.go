package downloader

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	percentPattern     = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	trackCountPattern  = regexp.MustCompile(`(?i)(?:\[|\btrack\s+)(\d+)\s*(?:/|of)\s*(\d+)\]?`)
	downloadingPattern = regexp.MustCompile(`(?i)\b(?:downloading|ripping)\b\s*:?\s+(.+?)(?:\s+[━─█▏▎▍▌▋▊▉╸╺\-]{2,}.*|\s+\d{1,3}(?:\.\d+)?\s*%.*)?$`)
	convertingPattern  = regexp.MustCompile(`(?i)\bconvert(?:ing|ed)?\b`)
)

// failureRule maps streamrip output to an error type.
type failureRule struct {
	errorType ErrorType
	pattern   *regexp.Regexp
}

// phrases matches any of the given phrases as whole words, ignoring case.
func phrases(list ...string) string {
	quoted := make([]string, len(list))
	for i, p := range list {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return `\b(?:` + strings.Join(quoted, "|") + `)\b`
}

// httpStatus matches a status code only where it reads as one: after HTTP,
// status, error or code, in parentheses, or followed by its reason phrase.
func httpStatus(codes ...string) string {
	c := strings.Join(codes, "|")
	return `\b(?:http|status|error|code)[\s:/]*(?:` + c + `)\b|\((?:` + c + `)\)|\b(?:` + c + `)\s+(?:not found|too many requests|bad gateway|service unavailable|gateway time-?out)\b`
}

func rule(errorType ErrorType, parts ...string) failureRule {
	return failureRule{errorType: errorType, pattern: regexp.MustCompile(`(?i)` + strings.Join(parts, "|"))}
}

// Order matters: the first matching rule wins.
var failureRules = []failureRule{
	rule(ErrorAuthenticationFailed, phrases("authenticationerror", "authentication failed", "invalid credentials", "login failed", "invalid arl", "invalid app id", "invalidappsecret", "missingcredentials", "token expired", "401 unauthorized"), httpStatus("401")),
	rule(ErrorQualityUnavailable, phrases("quality not available", "quality unavailable", "ineligible", "not available in the requested quality", "nonstreamable", "nonstreamableerror", "not streamable", "requires a subscription")),
	rule(ErrorInvalidReference, phrases("invalid url", "could not parse", "not found", "does not exist", "unsupported url", "no results"), httpStatus("404")),
	rule(ErrorTransientNetwork, phrases("timed out", "timeout", "connection reset", "connection refused", "connection aborted", "temporary failure", "clientconnectorerror", "serverdisconnectederror", "too many requests", "network is unreachable"), httpStatus("429", "502", "503", "504")),
}

// outputParser turns streamrip output lines into progress reports and
// remembers the first recognised failure.
type outputParser struct {
	report ProgressFunc

	phase      Phase
	track      string
	trackIndex int
	trackCount int
	percent    float64

	lastFraction float64
	lastPhase    Phase
	lastTrack    string

	failure     ErrorType
	failureLine string
	lastLine    string
}

func newOutputParser(report ProgressFunc) *outputParser {
	return &outputParser{
		report:    report,
		phase:     PhaseDownloading,
		failure:   ErrorUnknown,
		lastPhase: -1,
	}
}

func (p *outputParser) onLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	p.lastLine = line
	p.detectFailure(line)

	counted := false
	if m := trackCountPattern.FindStringSubmatch(line); m != nil {
		index, _ := strconv.Atoi(m[1])
		count, _ := strconv.Atoi(m[2])
		if count > 0 && index <= count {
			p.trackIndex = index
			p.trackCount = count
			counted = true
		}
	}

	if m := downloadingPattern.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[1])
		if name != "" && name != p.track {
			p.track = name
			if !counted && (p.trackCount == 0 || p.trackIndex < p.trackCount) {
				p.trackIndex++
			}
			p.percent = 0
		}
		if p.phase != PhaseConverting {
			p.phase = PhaseDownloading
		}
	}

	if convertingPattern.MatchString(line) {
		p.phase = PhaseConverting
	}

	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct <= 100 {
			p.percent = pct
		}
	}

	p.emit()
}

func (p *outputParser) fraction() float64 {
	current := p.percent / 100
	if p.trackCount <= 0 {
		return clamp01(current)
	}
	done := float64(p.trackIndex - 1)
	if done < 0 {
		done = 0
	}
	return clamp01((done + current) / float64(p.trackCount))
}

// emit reports only when something visible changed.
func (p *outputParser) emit() {
	if p.report == nil {
		return
	}
	fraction := p.fraction()
	if p.phase == p.lastPhase && p.track == p.lastTrack && fraction-p.lastFraction < 0.01 {
		return
	}
	p.lastPhase = p.phase
	p.lastTrack = p.track
	p.lastFraction = fraction

	p.report(Progress{
		Phase:        p.phase,
		Fraction:     fraction,
		CurrentTrack: p.track,
		TrackIndex:   p.trackIndex,
		TrackCount:   p.trackCount,
	})
}

func (p *outputParser) detectFailure(line string) {
	if p.failure != ErrorUnknown {
		return
	}
	for _, rule := range failureRules {
		if rule.pattern.MatchString(line) {
			p.failure = rule.errorType
			p.failureLine = line
			return
		}
	}
}

// failureError returns the recognised failure, or nil.
func (p *outputParser) failureError() *DownloadError {
	if p.failure == ErrorUnknown {
		return nil
	}
	return NewDownloadError(p.failure, p.failureLine)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
