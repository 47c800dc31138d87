package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amorlabs/amorauth/pkg/cache"
	"github.com/amorlabs/amorauth/pkg/identity"
	"github.com/amorlabs/amorauth/pkg/observability"
)

// DefaultCacheTTL is how long a user stays cached when not refreshed.
const DefaultCacheTTL = time.Hour

// Directory is the cache-aside user directory. Every user is projected
// under three cache keys (internal id, google id, email) with independent
// expiry; the backing store stays authoritative, so the three writes are
// not transactionally linked and a brief window of per-key staleness
// after an update is accepted.
type Directory struct {
	store   Store
	cache   cache.Store
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithCacheTTL overrides the default one-hour cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithMetrics attaches cache hit/miss counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Directory) { d.metrics = m }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// New creates a Directory over the given store and cache.
func New(store Store, cacheStore cache.Store, logger *logrus.Logger, opts ...Option) *Directory {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Directory{
		store:  store,
		cache:  cacheStore,
		ttl:    DefaultCacheTTL,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Upsert creates or refreshes the user for the given claims and
// repopulates all cache keys. Two logins racing to insert the same
// external id are resolved by the store's uniqueness constraint: the
// loser re-reads the winner's row and proceeds as an update.
func (d *Directory) Upsert(ctx context.Context, claims identity.Claims) (*User, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("claims without subject must not reach the directory")
	}

	now := d.now()

	user, err := d.store.FindByExternalID(ctx, claims.Subject)
	switch {
	case err == nil:
		d.applyClaims(user, claims, now)
		if err := d.store.Update(ctx, user); err != nil {
			return nil, err
		}
		d.logger.WithField("user_id", user.ID).Info("updated existing user")

	case errors.Is(err, ErrNotFound):
		user, err = d.insertOrRecover(ctx, claims, now)
		if err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	d.cacheUser(ctx, user)
	return user, nil
}

// insertOrRecover inserts a new user, falling back to an update when the
// insert loses a uniqueness race.
func (d *Directory) insertOrRecover(ctx context.Context, claims identity.Claims, now time.Time) (*User, error) {
	user := &User{
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		PictureURL:  claims.PictureURL,
		Locale:      claims.Locale,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := d.store.Insert(ctx, user)
	if err == nil {
		d.logger.WithField("user_id", created.ID).Info("created new user")
		return created, nil
	}

	if !IsUniqueViolation(err) {
		return nil, err
	}

	// Lost the insert race; the row now exists under this external id.
	d.logger.WithField("google_id", claims.Subject).Info("insert race detected, retrying as update")

	existing, ferr := d.store.FindByExternalID(ctx, claims.Subject)
	if ferr != nil {
		return nil, ferr
	}
	d.applyClaims(existing, claims, now)
	if uerr := d.store.Update(ctx, existing); uerr != nil {
		return nil, uerr
	}
	return existing, nil
}

// applyClaims refreshes the mutable profile fields. ExternalID, ID and
// CreatedAt stay untouched.
func (d *Directory) applyClaims(user *User, claims identity.Claims, now time.Time) {
	if claims.Email != "" {
		user.Email = claims.Email
	}
	user.DisplayName = claims.DisplayName
	user.PictureURL = claims.PictureURL
	user.Locale = claims.Locale
	user.UpdatedAt = now
}

// FindByID returns the user with the given internal id.
func (d *Directory) FindByID(ctx context.Context, id int64) (*User, error) {
	return d.find(ctx, keyByID(id), "id", func(ctx context.Context) (*User, error) {
		return d.store.FindByID(ctx, id)
	})
}

// FindByExternalID returns the user with the given provider subject.
func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return d.find(ctx, keyByExternalID(externalID), "google", func(ctx context.Context) (*User, error) {
		return d.store.FindByExternalID(ctx, externalID)
	})
}

// FindByEmail returns the user with the given email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return d.find(ctx, keyByEmail(email), "email", func(ctx context.Context) (*User, error) {
		return d.store.FindByEmail(ctx, email)
	})
}

// find is the cache-aside read path: cache hit, else store, then
// repopulate every key. Store misses are never cached.
func (d *Directory) find(ctx context.Context, key, kind string, fetch func(context.Context) (*User, error)) (*User, error) {
	if user, ok := d.cacheGet(ctx, key, kind); ok {
		return user, nil
	}

	user, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	d.cacheUser(ctx, user)
	return user, nil
}

// cacheGet reads one key, downgrading every cache failure to a miss.
func (d *Directory) cacheGet(ctx context.Context, key, kind string) (*User, bool) {
	data, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			d.logger.WithError(err).WithField("key", key).Warn("cache unavailable, falling back to store")
		}
		d.recordCacheMiss(kind)
		return nil, false
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		// Corrupt entry; drop it and fall through to the store.
		_ = d.cache.Delete(ctx, key)
		d.recordCacheMiss(kind)
		return nil, false
	}

	d.recordCacheHit(kind)
	return &user, true
}

// cacheUser writes the user under all of its keys. Failures are logged
// and ignored; the store remains the source of truth.
func (d *Directory) cacheUser(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		d.logger.WithError(err).Warn("failed to marshal user for cache")
		return
	}

	keys := []string{keyByID(user.ID), keyByExternalID(user.ExternalID)}
	if user.Email != "" {
		keys = append(keys, keyByEmail(user.Email))
	}
	for _, key := range keys {
		if err := d.cache.Set(ctx, key, data, d.ttl); err != nil {
			d.logger.WithError(err).WithField("key", key).Warn("failed to cache user")
		}
	}
}

// Evict removes every cache key for the user. Exposed for admin and
// session tooling; not part of the login hot path.
func (d *Directory) Evict(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	keys := []string{keyByID(user.ID), keyByExternalID(user.ExternalID)}
	if user.Email != "" {
		keys = append(keys, keyByEmail(user.Email))
	}
	for _, key := range keys {
		if err := d.cache.Delete(ctx, key); err != nil {
			d.logger.WithError(err).WithField("key", key).Warn("failed to evict cache key")
		}
	}
	d.logger.WithField("user_id", user.ID).Debug("cleared user cache")
}

func (d *Directory) recordCacheHit(kind string) {
	if d.metrics != nil {
		d.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	}
}

func (d *Directory) recordCacheMiss(kind string) {
	if d.metrics != nil {
		d.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

// Cache key prefixes mirror the layout the service has always used in
// Redis, so existing entries survive upgrades.
func keyByID(id int64) string           { return fmt.Sprintf("user:id:%d", id) }
func keyByExternalID(gid string) string { return fmt.Sprintf("user:google:%s", gid) }
func keyByEmail(email string) string    { return fmt.Sprintf("user:email:%s", email) }
