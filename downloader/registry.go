package downloader

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-streamrip-bot/config"
)

var referencePattern = regexp.MustCompile(`^([a-z]+):(track|album|playlist|artist|label):(\S+)$`)

// PlatformStatus summarises one platform for /settings and check-config.
type PlatformStatus struct {
	Name       string
	Emoji      string
	Enabled    bool
	Configured bool
	AuthFailed string // reason, empty when usable
	MaxQuality Quality
}

// Ready reports whether downloads may be attempted.
func (s PlatformStatus) Ready() bool {
	return s.Configured && s.AuthFailed == ""
}

// Registry selects platforms by URL pattern and tracks which ones are usable.
type Registry struct {
	mu         sync.RWMutex
	platforms  []Platform
	creds      map[string]config.PlatformCredentials
	authFailed map[string]string
	catalog    *Catalog
	logger     *zap.SugaredLogger
}

// NewRegistry creates a Registry for every known platform.
func NewRegistry(creds map[string]config.PlatformCredentials, catalog *Catalog, logger *zap.SugaredLogger) *Registry {
	if catalog == nil {
		catalog = NewCatalog(60, nil)
	}
	r := &Registry{
		catalog: catalog,
		logger:  logger,
	}
	r.Reload(creds)
	return r
}

// Reload swaps in new credentials and clears authentication failures.
func (r *Registry) Reload(creds map[string]config.PlatformCredentials) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make(map[string]config.PlatformCredentials, len(creds))
	for name, c := range creds {
		copied[name] = c
	}
	r.creds = copied
	r.platforms = newPlatforms(copied, r.catalog)
	r.authFailed = make(map[string]string)
}

// Platform returns the platform called name.
func (r *Registry) Platform(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.platforms {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Ready returns an AuthenticationFailed error when name cannot be used.
func (r *Registry) Ready(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readyLocked(name)
}

func (r *Registry) readyLocked(name string) error {
	creds, ok := r.creds[name]
	if !ok || !creds.Enabled {
		return NewDownloadError(ErrorAuthenticationFailed, fmt.Sprintf("%s is disabled", name)).WithContext("platform", name)
	}
	if !creds.Configured(name) {
		return NewDownloadError(ErrorAuthenticationFailed, fmt.Sprintf("%s credentials are not configured", name)).WithContext("platform", name)
	}
	if reason, failed := r.authFailed[name]; failed {
		return NewDownloadError(ErrorAuthenticationFailed, fmt.Sprintf("%s login failed earlier: %s", name, reason)).WithContext("platform", name)
	}
	if name == config.LastFM && creds.Source != config.LastFM {
		if err := r.readyLocked(creds.Source); err != nil {
			return NewDownloadErrorWithCause(ErrorAuthenticationFailed,
				fmt.Sprintf("lastfm source %s is not usable", creds.Source), err).WithContext("platform", name)
		}
	}
	return nil
}

// MarkAuthFailed disables name until credentials are reloaded.
func (r *Registry) MarkAuthFailed(name, reason string) {
	r.mu.Lock()
	r.authFailed[name] = reason
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Warnf("Platform %s marked unusable: %s", name, reason)
	}
}

// Statuses lists every platform in display order.
func (r *Registry) Statuses() []PlatformStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]PlatformStatus, 0, len(r.platforms))
	for _, p := range r.platforms {
		creds := r.creds[p.Name()]
		statuses = append(statuses, PlatformStatus{
			Name:       p.Name(),
			Emoji:      p.Emoji(),
			Enabled:    creds.Enabled,
			Configured: creds.Configured(p.Name()),
			AuthFailed: r.authFailed[p.Name()],
			MaxQuality: p.MaxQuality(),
		})
	}
	return statuses
}

// Credentials returns a copy of the credentials currently in use.
func (r *Registry) Credentials() map[string]config.PlatformCredentials {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[string]config.PlatformCredentials, len(r.creds))
	for name, c := range r.creds {
		copied[name] = c
	}
	return copied
}

// Resolve turns a URL or a platform:type:id reference into a descriptor.
func (r *Registry) Resolve(ref string) (MediaDescriptor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return MediaDescriptor{}, NewDownloadError(ErrorInvalidReference, "empty reference")
	}

	if m := referencePattern.FindStringSubmatch(ref); m != nil {
		desc := MediaDescriptor{Platform: m[1], Type: MediaType(m[2]), ID: m[3]}
		p, ok := r.Platform(desc.Platform)
		if !ok {
			return MediaDescriptor{}, NewDownloadError(ErrorUnsupportedPlatform, fmt.Sprintf("unknown platform %q", desc.Platform))
		}
		if !supportsType(p, desc.Type) && desc.Type != MediaLabel {
			return MediaDescriptor{}, NewDownloadError(ErrorInvalidReference, fmt.Sprintf("%s has no %s objects", desc.Platform, desc.Type))
		}
		if err := r.Ready(desc.Platform); err != nil {
			return MediaDescriptor{}, err
		}
		return desc, nil
	}

	u, err := parseReferenceURL(ref)
	if err != nil {
		return MediaDescriptor{}, NewDownloadErrorWithCause(ErrorUnsupportedPlatform, "not a supported link", err)
	}

	p := r.platformForHost(u.Hostname())
	if p == nil {
		return MediaDescriptor{}, NewDownloadError(ErrorUnsupportedPlatform, fmt.Sprintf("no platform handles %s", u.Hostname())).
			WithContext("url", ref)
	}

	desc, err := p.Parse(u)
	if err != nil {
		return MediaDescriptor{}, err
	}
	if err := r.Ready(p.Name()); err != nil {
		return MediaDescriptor{}, err
	}
	return desc, nil
}

// IsLink reports whether text looks like something Resolve should handle
// rather than a search query.
func IsLink(text string) bool {
	text = strings.TrimSpace(text)
	if referencePattern.MatchString(text) {
		return true
	}
	if strings.ContainsAny(text, " \t\n") {
		return false
	}
	u, err := parseReferenceURL(text)
	return err == nil && strings.Contains(u.Hostname(), ".")
}

func parseReferenceURL(ref string) (*url.URL, error) {
	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func (r *Registry) platformForHost(host string) Platform {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.platforms {
		for _, h := range p.Hosts() {
			if host == h {
				return p
			}
		}
	}
	return nil
}

func supportsType(p Platform, t MediaType) bool {
	for _, st := range p.SearchTypes() {
		if st == t {
			return true
		}
	}
	return false
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Platform string    // empty searches every ready platform
	Type     MediaType // empty searches every type the platform supports
	Limit    int       // per platform
}

// Search queries every matching ready platform in parallel. Failures of
// individual platforms are logged and skipped; an error is returned only
// when every platform failed.
func (r *Registry) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewDownloadError(ErrorInvalidReference, "empty search query")
	}

	var targets []Platform
	for _, status := range r.Statuses() {
		if opts.Platform != "" && status.Name != opts.Platform {
			continue
		}
		if !status.Ready() {
			continue
		}
		if p, ok := r.Platform(status.Name); ok && len(p.SearchTypes()) > 0 {
			targets = append(targets, p)
		}
	}
	if len(targets) == 0 {
		return nil, NewDownloadError(ErrorAuthenticationFailed, "no streamrip platforms are configured")
	}

	perPlatform := make([][]SearchResult, len(targets))
	failures := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range targets {
		i, p := i, p
		g.Go(func() error {
			types := p.SearchTypes()
			if opts.Type != "" {
				if !supportsType(p, opts.Type) {
					return nil
				}
				types = []MediaType{opts.Type}
			}
			for _, t := range types {
				results, err := p.Search(gctx, query, t, opts.Limit)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failures[i] = err
					if r.logger != nil {
						r.logger.Warnf("Search type %s failed on %s: %v", t, p.Name(), err)
					}
					continue
				}
				perPlatform[i] = append(perPlatform[i], results...)
			}
			perPlatform[i] = limitResults(perPlatform[i], opts.Limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, NewDownloadErrorWithCause(ErrorCancelled, "search cancelled", err)
	}

	var all []SearchResult
	failed := 0
	for i := range targets {
		all = append(all, perPlatform[i]...)
		if failures[i] != nil && len(perPlatform[i]) == 0 {
			failed++
		}
	}
	if len(all) == 0 && failed == len(targets) {
		return nil, failures[0]
	}

	order := map[string]int{}
	for i, name := range config.PlatformNames {
		order[name] = i
	}
	sort.SliceStable(all, func(a, b int) bool {
		return order[all[a].Platform] < order[all[b].Platform]
	})
	return all, nil
}
