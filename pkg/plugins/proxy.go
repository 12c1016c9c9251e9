package plugins

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pvs/pkg/preview"
)

const (
	// sessionCookie carries the signed session token.
	sessionCookie = "sessionid"

	// proxyCachePrefix namespaces resolved paths in redis.
	proxyCachePrefix = "preview:"

	proxyCacheSize = 4096
	proxyCacheTTL  = 10 * time.Minute
)

// ProxyPlugin resolves user files through an upstream file service. The
// caller authenticates with a signed session cookie; the upstream answers a
// metadata request with the file's internal location in an X-Accel-Redirect
// header, which is remapped onto the local mount. Origins are scoped per
// user so one user's previews never serve another's.
//
// Resolved locations are cached in-process and, when a cache URL is
// configured, in redis shared across instances.
type ProxyPlugin struct {
	manifest *Manifest

	pattern  string
	methods  []string
	key      []byte
	upstream string
	version  string

	remapFrom string
	remapTo   string

	cacheURL string
	l1       *lru.LRU[string, string]
	rdb      *redis.Client

	client *http.Client
	log    *logrus.Logger
}

// NewProxyPlugin builds a proxy plugin from its manifest. Required settings:
// pattern (with a {uri:.*} variable), key, upstream. Optional: api_version
// (default v1), remap ("from:to"), cache_url (redis URL; defaultCacheURL
// applies when unset).
func NewProxyPlugin(manifest *Manifest, defaultCacheURL string, log *logrus.Logger) (*ProxyPlugin, error) {
	if log == nil {
		log = logrus.New()
	}

	pattern, err := manifest.requireSetting("pattern")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(pattern, "{uri") {
		return nil, fmt.Errorf("plugin %s: pattern must capture a {uri:.*} variable", manifest.Name)
	}
	key, err := manifest.requireSetting("key")
	if err != nil {
		return nil, err
	}
	upstream, err := manifest.requireSetting("upstream")
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(upstream, "/") {
		upstream += "/"
	}

	p := &ProxyPlugin{
		manifest: manifest,
		pattern:  pattern,
		methods:  []string{http.MethodGet},
		key:      []byte(key),
		upstream: upstream,
		version:  manifest.setting("api_version", "v1"),
		cacheURL: manifest.setting("cache_url", defaultCacheURL),
		l1:       lru.NewLRU[string, string](proxyCacheSize, nil, proxyCacheTTL),
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}

	if remap := manifest.setting("remap", ""); remap != "" {
		from, to, ok := strings.Cut(remap, ":")
		if !ok || from == "" {
			return nil, fmt.Errorf("plugin %s: remap must be \"from:to\"", manifest.Name)
		}
		p.remapFrom, p.remapTo = from, to
	}

	return p, nil
}

func (p *ProxyPlugin) Manifest() *Manifest { return p.manifest }
func (p *ProxyPlugin) Pattern() string     { return p.pattern }
func (p *ProxyPlugin) Methods() []string   { return p.methods }

// Load connects the shared path cache. Redis being down is not fatal; the
// plugin degrades to its in-process cache.
func (p *ProxyPlugin) Load() error {
	if p.cacheURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(p.cacheURL)
	if err != nil {
		return fmt.Errorf("plugin %s: invalid cache_url: %w", p.manifest.Name, err)
	}
	p.rdb = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		p.log.WithField("plugin", p.manifest.Name).Warnf("path cache unreachable: %v", err)
	}
	return nil
}

func (p *ProxyPlugin) Unload() error {
	if p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}

// Resolve authenticates the session, scopes the origin to the session's
// user and asks the upstream where the file lives.
func (p *ProxyPlugin) Resolve(ctx context.Context, r *http.Request) (*Resolved, error) {
	uri := "/" + mux.Vars(r)["uri"]

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: no session provided", preview.ErrBadInput)
	}

	uid, err := p.userID(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid session: %v", preview.ErrBadInput, err)
	}

	origin := "/users/" + uid + uri

	if path, ok := p.cachedPath(ctx, origin); ok {
		return &Resolved{Path: path, Origin: origin}, nil
	}

	resolved, err := p.lookup(ctx, uri, cookie)
	if err != nil {
		return nil, err
	}

	p.cachePath(ctx, origin, resolved)
	return &Resolved{Path: resolved, Origin: origin}, nil
}

// userID verifies the session token and extracts the uid claim.
func (p *ProxyPlugin) userID(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.key, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	switch uid := claims["uid"].(type) {
	case string:
		if uid == "" {
			return "", fmt.Errorf("empty uid claim")
		}
		return uid, nil
	case float64:
		return strconv.FormatFloat(uid, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("missing uid claim")
	}
}

// lookup asks the upstream for the file's location and remaps it onto the
// local mount.
func (p *ProxyPlugin) lookup(ctx context.Context, uri string, cookie *http.Cookie) (string, error) {
	url := p.upstream + "api/" + p.version + "/path/data" + uri

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", preview.ErrInternal, err)
	}
	req.AddCookie(cookie)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upstream unreachable: %v", preview.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", preview.ErrNotFound, uri)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: upstream status %d for %s", preview.ErrBadInput, resp.StatusCode, uri)
	}

	location := resp.Header.Get("X-Accel-Redirect")
	if location == "" {
		return "", fmt.Errorf("%w: upstream did not disclose a file location", preview.ErrBadInput)
	}

	if p.remapFrom != "" {
		if !strings.HasPrefix(location, p.remapFrom) {
			return "", fmt.Errorf("%w: unexpected file location prefix", preview.ErrBadInput)
		}
		location = p.remapTo + strings.TrimPrefix(location, p.remapFrom)
	}
	return path.Clean(location), nil
}

func (p *ProxyPlugin) cachedPath(ctx context.Context, origin string) (string, bool) {
	if path, ok := p.l1.Get(origin); ok {
		return path, true
	}
	if p.rdb == nil {
		return "", false
	}
	path, err := p.rdb.Get(ctx, proxyCacheKey(origin)).Result()
	if err != nil {
		return "", false
	}
	p.l1.Add(origin, path)
	return path, true
}

func (p *ProxyPlugin) cachePath(ctx context.Context, origin, path string) {
	p.l1.Add(origin, path)
	if p.rdb != nil {
		if err := p.rdb.Set(ctx, proxyCacheKey(origin), path, proxyCacheTTL).Err(); err != nil {
			p.log.WithField("plugin", p.manifest.Name).Debugf("path cache write failed: %v", err)
		}
	}
}

func proxyCacheKey(origin string) string {
	sum := md5.Sum([]byte(origin))
	return proxyCachePrefix + hex.EncodeToString(sum[:])
}
