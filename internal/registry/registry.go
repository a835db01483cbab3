package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Source names where a digest came from.
type Source string

const (
	SourceEmbedded   Source = "embedded"
	SourceProvenance Source = "provenance-verified"
)

// Trust is the confidence attached to a digest.
type Trust string

const (
	TrustTrusted Trust = "trusted"
	TrustUnknown Trust = "unknown"
)

// VersionedDigest is the expected sha256 of one file at one version.
type VersionedDigest struct {
	Version string
	Path    string
	Digest  string
	Source  Source
	Trust   Trust
}

// ProvenanceSource yields verified digest sets per version.
type ProvenanceSource interface {
	VerifiedDigests(ctx context.Context, version string) (*provenance.VerifiedDigestSet, error)
}

// Failure records a provenance lookup that did not produce digests.
type Failure struct {
	Version string
	Err     error
}

// Trust reports whether the failure was a verification failure rather than
// an unavailable statement.
func (f Failure) Trust() bool {
	return errs.IsKind(f.Err, errs.KindTrust)
}

const defaultCacheSize = 512

type cacheKey struct {
	version string
	path    string
}

type provenanceResult struct {
	set *provenance.VerifiedDigestSet
	err error
}

// Registry resolves expected digests for one session.
type Registry struct {
	table     Table
	source    ProvenanceSource
	logger    *zap.Logger
	cacheSize int

	mu         sync.Mutex
	cache      *lru.Cache[cacheKey, VersionedDigest]
	provenance map[string]provenanceResult
	failures   []Failure
}

// Option configures a Registry.
type Option func(*Registry)

// WithProvenance enables provenance-sourced digests.
func WithProvenance(src ProvenanceSource) Option {
	return func(r *Registry) { r.source = src }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCacheSize bounds the per-session digest cache.
func WithCacheSize(n int) Option {
	return func(r *Registry) { r.cacheSize = n }
}

// New returns a registry over the given embedded table.
func New(table Table, opts ...Option) (*Registry, error) {
	r := &Registry{
		table:      table,
		cacheSize:  defaultCacheSize,
		provenance: make(map[string]provenanceResult),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)

	cache, err := lru.New[cacheKey, VersionedDigest](r.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating digest cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// ExpectedDigest returns the digest path should have at ver. The error is
// errs.KindNotFound when no trusted source records it.
func (r *Registry) ExpectedDigest(ctx context.Context, ver, path string) (VersionedDigest, error) {
	ver = version.Normalize(ver)
	key := cacheKey{version: ver, path: path}
	if d, ok := r.cache.Get(key); ok {
		return d, nil
	}

	if set := r.verifiedSet(ctx, ver); set != nil {
		if digest, ok := set.Lookup(path); ok {
			d := VersionedDigest{Version: ver, Path: path, Digest: digest, Source: SourceProvenance, Trust: TrustTrusted}
			r.cache.Add(key, d)
			return d, nil
		}
	}

	if digest, ok := r.table.Lookup(ver, path); ok {
		d := VersionedDigest{Version: ver, Path: path, Digest: digest, Source: SourceEmbedded, Trust: TrustTrusted}
		r.cache.Add(key, d)
		return d, nil
	}

	return VersionedDigest{}, errs.NotFound("looking up digest", path,
		fmt.Errorf("no recorded digest at version %s", ver)).
		WithHint("compare the file manually against release %s", version.Tag(ver))
}

// verifiedSet returns the provenance digests for ver, asking the source at
// most once per session.
func (r *Registry) verifiedSet(ctx context.Context, ver string) *provenance.VerifiedDigestSet {
	if r.source == nil {
		return nil
	}

	r.mu.Lock()
	res, done := r.provenance[ver]
	r.mu.Unlock()
	if done {
		return res.set
	}

	set, err := r.source.VerifiedDigests(ctx, ver)
	res = provenanceResult{set: set, err: err}

	r.mu.Lock()
	r.provenance[ver] = res
	if err != nil {
		r.failures = append(r.failures, Failure{Version: ver, Err: err})
	}
	r.mu.Unlock()

	if err != nil {
		r.logFailure(ver, err)
		return nil
	}
	r.logger.Debug("using verified provenance",
		zap.String("version", ver),
		zap.String("verifier", set.Verifier),
		zap.Int("subjects", len(set.Digests)),
	)
	return set
}

func (r *Registry) logFailure(ver string, err error) {
	fallback := "no embedded digests for this version, files will report Unknown"
	if r.table.Has(ver) {
		fallback = "falling back to embedded digests"
	}
	fields := []zap.Field{zap.String("version", ver), zap.Error(err), zap.String("fallback", fallback)}

	switch {
	case errors.Is(err, provenance.ErrNoVerifier):
		r.logger.Warn("no provenance verifier configured, statement not checked", fields...)
	case errs.IsKind(err, errs.KindTrust):
		r.logger.Error("provenance verification failed, statement rejected", fields...)
	case errors.Is(err, context.Canceled):
		r.logger.Debug("provenance lookup cancelled", fields...)
	default:
		r.logger.Warn("provenance unavailable", fields...)
	}
}

// Failures returns the provenance failures seen this session.
func (r *Registry) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// HasEmbedded reports whether the embedded table has rows for ver.
func (r *Registry) HasEmbedded(ver string) bool {
	return r.table.Has(ver)
}
