// Package rotation rotates the key-encryption key across the fleet.
//
// Rotation has two phases. StageNewKey generates the next KEK, which operators
// load on every instance as a staged secondary. RotateEncryptionKeys then
// rewraps every DEK under that staged key and promotes it to primary only when
// nothing failed. A run never generates a key itself, so nothing is committed
// under a KEK the serving instances cannot read.
//
// Ciphertext bodies are never rewritten. A run killed midway leaves some
// records under the new key and the rest under the old one; both stay readable
// and the next run resumes. While the demoted key is retiring, a run sweeps
// records still wrapped under it onto the primary.
package rotation

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
	"github.com/allisson/tenantconfig/internal/database"
	"github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/metrics"
	platformDomain "github.com/allisson/tenantconfig/internal/platformuser/domain"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	configDomain "github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

const metricsDomain = "key_rotation"

var (
	// ErrRotationInProgress indicates another rotation is running in this process.
	ErrRotationInProgress = errors.Wrap(errors.ErrConflict, "key rotation already in progress")

	// ErrGracePeriodActive indicates the previous primary is still retiring.
	ErrGracePeriodActive = errors.Wrap(errors.ErrConflict, "previous key is still in its grace period")

	// ErrNoStagedKey indicates no staged secondary is loaded. The key comes from
	// StageNewKey and must be rolled out to every instance before a run.
	ErrNoStagedKey = errors.Wrap(errors.ErrConflict, "no staged key loaded, stage one and roll it out first")

	// ErrDatasourceUnavailable indicates a datasource breaker is open.
	ErrDatasourceUnavailable = errors.Wrap(errors.ErrUnavailable, "datasource unavailable")

	// ErrUnknownDatasource indicates a tenant references an unregistered datasource.
	ErrUnknownDatasource = errors.Wrap(errors.ErrNotFound, "unknown datasource")
)

// Keys is the mutable key material the job drives.
type Keys interface {
	Primary() []byte
	Secondary() ([]byte, cryptoDomain.SecondaryRole)
	SetSecondary(key []byte, role cryptoDomain.SecondaryRole) error
	Rotate(oldHex, newHex string) error
	RetireSecondaryAfter(d time.Duration)
}

// Rewrapper moves sealed values from one KEK to another.
type Rewrapper interface {
	RewrapDek(wrappedDek, oldKeyHex, newKeyHex string) (string, error)
	RewrapCiphertext(ciphertext, oldKeyHex, newKeyHex string) (string, error)
	WrappedUnder(wrappedDek, keyHex string) bool
	CiphertextUnder(ciphertext, keyHex string) bool
}

// TenantLister lists the tenants to rotate.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]*tenantDomain.Tenant, error)
}

// ConfigStore is the tenant config persistence touched by rotation.
type ConfigStore interface {
	ListEncryptedForUpdate(ctx context.Context, tenantID uuid.UUID) ([]*configDomain.ConfigRecord, error)
	UpdateWrappedDek(ctx context.Context, tenantID uuid.UUID, key configDomain.Key, wrappedDek string) error
}

// GlobalConfigStore is the platform config persistence touched by rotation.
type GlobalConfigStore interface {
	Get(ctx context.Context, key string) (*configDomain.GlobalConfigRecord, error)
	Upsert(ctx context.Context, record *configDomain.GlobalConfigRecord) error
	ListEncryptedForUpdate(ctx context.Context) ([]*configDomain.GlobalConfigRecord, error)
	UpdateWrappedDek(ctx context.Context, key, wrappedDek string) error
}

// MFASecretStore holds platform user MFA secrets sealed under the KEK.
type MFASecretStore interface {
	ListMFASecrets(ctx context.Context) ([]platformDomain.MFASecretRecord, error)
	UpdateMFASecret(ctx context.Context, userID uuid.UUID, sealed string) error
}

// Preflight gates work on a datasource.
type Preflight interface {
	Probe(ctx context.Context, ds *database.Datasource) error
	ProbeAll(ctx context.Context, sources []*database.Datasource) map[string]error
	BreakersHealthy() bool
}

// Datasources resolves a tenant's datasource name.
type Datasources interface {
	Get(name string) (*database.Datasource, bool)
	All() []*database.Datasource
}

// CacheEvictor drops a cached tenant config.
type CacheEvictor interface {
	EvictTenantConfig(ctx context.Context, tenantID uuid.UUID, key string)
}

// ScopeFunc returns the config store and transaction manager bound to a datasource.
type ScopeFunc func(ds *database.Datasource) (ConfigStore, database.TxManager, error)

// Options configures a Job.
type Options struct {
	Keys        Keys
	Envelope    Rewrapper
	Tenants     TenantLister
	Datasources Datasources
	Scope       ScopeFunc
	Preflight   Preflight
	Cache       CacheEvictor

	// Platform scope. Global is nil when the deployment has no platform config store.
	PlatformTx database.TxManager
	MFA        MFASecretStore
	Global     GlobalConfigStore

	GracePeriod         time.Duration
	// SecondaryExpiresAt is when a retiring secondary expires, as printed by
	// the promoting run. Zero falls back to the retired key registry.
	SecondaryExpiresAt  time.Time
	StrictPlatformScope bool
	Logger              *slog.Logger
	Metrics             metrics.BusinessMetrics
	Now                 func() time.Time
}

// Report summarizes one rotation run.
type Report struct {
	OldKeyFingerprint string
	NewKeyFingerprint string
	// NewKeyHex is the staged or promoted KEK, printed for operators to persist.
	NewKeyHex         string
	OldKeyHex         string
	TenantsRotated    int
	TenantsFailed     int
	FailedTenants     []uuid.UUID
	RecordsRewrapped  int
	RecordsSkipped    int
	PlatformRewrapped int
	PlatformFailed    int
	Promoted          bool
	// Sweep marks a run that moved stragglers from the retiring key onto the
	// current primary instead of rotating.
	Sweep             bool
	// RetiringExpiresAt is when the demoted key may be dropped. Set on promotion.
	RetiringExpiresAt time.Time
}

// Job runs key rotations. At most one run is active per Job.
type Job struct {
	opts    Options
	running sync.Mutex
}

// NewJob creates a Job.
func NewJob(opts Options) *Job {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpBusinessMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{opts: opts}
}

// StageNewKey generates the next KEK and loads it as the staged secondary of
// this process. The caller prints it so every instance can load it as
// KEK_SECONDARY with KEK_SECONDARY_ROLE=staged before RotateEncryptionKeys runs.
//
// An already staged key is returned as is. A retiring key blocks staging until
// it expires; an expired one is dropped.
func (j *Job) StageNewKey(ctx context.Context) ([]byte, error) {
	if !j.running.TryLock() {
		return nil, ErrRotationInProgress
	}
	defer j.running.Unlock()

	if j.opts.Keys.Primary() == nil {
		return nil, cryptoDomain.ErrNoPrimaryKey
	}

	secondary, role := j.opts.Keys.Secondary()
	switch {
	case secondary != nil && role == cryptoDomain.RoleStaged:
		return bytes.Clone(secondary), nil
	case secondary != nil && role == cryptoDomain.RoleRetiring:
		if err := j.dropExpiredRetiring(ctx, secondary); err != nil {
			return nil, err
		}
	}

	key, err := cryptoDomain.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := j.opts.Keys.SetSecondary(key, cryptoDomain.RoleStaged); err != nil {
		cryptoDomain.Zero(key)
		return nil, err
	}
	j.opts.Logger.Info("key staged", slog.String("staged_key", cryptoDomain.Fingerprint(key)))
	return key, nil
}

// ArmRetirement schedules the drop of a retiring secondary loaded from the
// environment, using SecondaryExpiresAt or the retired key registry. A key
// already past its expiry is dropped at once. Servers call it at startup.
func (j *Job) ArmRetirement(ctx context.Context) error {
	secondary, role := j.opts.Keys.Secondary()
	if secondary == nil || role != cryptoDomain.RoleRetiring {
		return nil
	}
	fingerprint := cryptoDomain.Fingerprint(secondary)

	expiresAt, known, err := j.retiringExpiry(ctx, fingerprint)
	if err != nil {
		return err
	}
	if !known {
		j.opts.Logger.Warn("retiring key has no known expiry, it stays loaded until KEK_SECONDARY is removed",
			slog.String("retiring_key", fingerprint),
		)
		return nil
	}

	remaining := expiresAt.Sub(j.opts.Now())
	if remaining <= 0 {
		if err := j.opts.Keys.SetSecondary(nil, cryptoDomain.RoleNone); err != nil {
			return err
		}
		j.opts.Logger.Info("retiring key expired, dropped", slog.String("retiring_key", fingerprint))
		return nil
	}
	j.opts.Keys.RetireSecondaryAfter(remaining)
	j.opts.Logger.Info("retiring key scheduled for removal",
		slog.String("retiring_key", fingerprint),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// RotateEncryptionKeys runs one rotation. Per-record and per-tenant failures are
// reported, not returned: an incomplete run keeps the old primary and returns
// the report with a nil error so it can be re-run after the data is fixed.
//
// The run needs a staged secondary, see StageNewKey. With a retiring secondary
// still in its grace period the run is a sweep: records left under the retiring
// key, e.g. written by an instance that had not restarted yet, are rewrapped
// under the primary and nothing is promoted.
func (j *Job) RotateEncryptionKeys(ctx context.Context) (report *Report, err error) {
	if !j.running.TryLock() {
		return nil, ErrRotationInProgress
	}
	defer j.running.Unlock()

	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case report.Sweep:
			status = "swept"
		case !report.Promoted:
			status = "aborted"
		}
		j.opts.Metrics.RecordOperation(ctx, metricsDomain, "rotate", status)
		j.opts.Metrics.RecordDuration(ctx, metricsDomain, "rotate", time.Since(start), status)
	}()

	if err := j.preflight(ctx); err != nil {
		return nil, err
	}

	primary := j.opts.Keys.Primary()
	if primary == nil {
		return nil, cryptoDomain.ErrNoPrimaryKey
	}
	oldKey, newKey, sweep, err := j.plan(ctx, primary)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(oldKey)
	defer cryptoDomain.Zero(newKey)

	oldHex, newHex := hex.EncodeToString(oldKey), hex.EncodeToString(newKey)
	report = &Report{
		OldKeyFingerprint: cryptoDomain.Fingerprint(oldKey),
		NewKeyFingerprint: cryptoDomain.Fingerprint(newKey),
		OldKeyHex:         oldHex,
		NewKeyHex:         newHex,
		Sweep:             sweep,
	}
	logger := j.opts.Logger.With(
		slog.String("old_key", report.OldKeyFingerprint),
		slog.String("new_key", report.NewKeyFingerprint),
		slog.Bool("sweep", sweep),
	)
	logger.Info("key rotation started")

	j.rotatePlatformScope(ctx, logger, report, oldHex, newHex)

	tenants, err := j.opts.Tenants.ListActiveTenants(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tenants")
	}
	for _, t := range tenants {
		rewrapped, skipped, err := j.rotateTenant(ctx, t, oldHex, newHex)
		if err != nil {
			report.TenantsFailed++
			report.FailedTenants = append(report.FailedTenants, t.ID)
			logger.Error("tenant key rotation failed",
				slog.String("tenant_id", t.ID.String()),
				slog.String("datasource", t.Datasource),
				slog.Any("error", err),
			)
			continue
		}
		report.TenantsRotated++
		report.RecordsRewrapped += rewrapped
		report.RecordsSkipped += skipped
	}

	if sweep {
		logger.Info("retiring key sweep completed",
			slog.Int("tenants_rotated", report.TenantsRotated),
			slog.Int("tenants_failed", report.TenantsFailed),
			slog.Int("records_rewrapped", report.RecordsRewrapped),
			slog.Int("platform_rewrapped", report.PlatformRewrapped),
		)
		return report, nil
	}

	if !j.canPromote(report) {
		logger.Warn("key rotation incomplete, primary key unchanged",
			slog.Int("tenants_rotated", report.TenantsRotated),
			slog.Int("tenants_failed", report.TenantsFailed),
			slog.Int("platform_rewrapped", report.PlatformRewrapped),
			slog.Int("platform_failed", report.PlatformFailed),
		)
		return report, nil
	}

	if err := j.opts.Keys.Rotate(oldHex, newHex); err != nil {
		return nil, errors.Wrap(err, "failed to promote new key")
	}
	report.Promoted = true
	report.RetiringExpiresAt = j.opts.Now().UTC().Add(j.opts.GracePeriod).Truncate(time.Second)
	j.opts.Keys.RetireSecondaryAfter(j.opts.GracePeriod)

	if err := j.recordRetiredKey(ctx, report.OldKeyFingerprint, report.RetiringExpiresAt); err != nil {
		logger.Warn("failed to record retired key", slog.Any("error", err))
	}

	logger.Info("key rotation completed",
		slog.Int("tenants_rotated", report.TenantsRotated),
		slog.Int("records_rewrapped", report.RecordsRewrapped),
		slog.Int("records_skipped", report.RecordsSkipped),
		slog.Int("platform_rewrapped", report.PlatformRewrapped),
		slog.Duration("grace_period", j.opts.GracePeriod),
	)
	return report, nil
}

// preflight probes every registered datasource so breakers reflect their
// current state, then refuses to start while any is unreachable.
func (j *Job) preflight(ctx context.Context) error {
	failures := j.opts.Preflight.ProbeAll(ctx, j.opts.Datasources.All())
	if len(failures) > 0 {
		names := slices.Sorted(maps.Keys(failures))
		return fmt.Errorf("%w: %s", ErrDatasourceUnavailable, strings.Join(names, ", "))
	}
	if !j.opts.Preflight.BreakersHealthy() {
		return ErrDatasourceUnavailable
	}
	return nil
}

// plan picks the keys of a run. A staged secondary is rotated to. A retiring
// one inside its grace period is swept from onto the primary. Both returned
// keys are copies the caller zeroes.
func (j *Job) plan(ctx context.Context, primary []byte) (oldKey, newKey []byte, sweep bool, err error) {
	secondary, role := j.opts.Keys.Secondary()
	switch {
	case secondary != nil && role == cryptoDomain.RoleStaged:
		return bytes.Clone(primary), bytes.Clone(secondary), false, nil
	case secondary != nil && role == cryptoDomain.RoleRetiring:
		err := j.dropExpiredRetiring(ctx, secondary)
		switch {
		case errors.Is(err, ErrGracePeriodActive):
			return bytes.Clone(secondary), bytes.Clone(primary), true, nil
		case err != nil:
			return nil, nil, false, err
		}
	}
	return nil, nil, false, ErrNoStagedKey
}

// dropExpiredRetiring clears the retiring secondary when its grace period is
// over and returns ErrGracePeriodActive when it is not. A key with no known
// expiry counts as still in its grace period.
func (j *Job) dropExpiredRetiring(ctx context.Context, secondary []byte) error {
	fingerprint := cryptoDomain.Fingerprint(secondary)
	expiresAt, known, err := j.retiringExpiry(ctx, fingerprint)
	if err != nil {
		return err
	}
	if !known || j.opts.Now().Before(expiresAt) {
		return ErrGracePeriodActive
	}
	if err := j.opts.Keys.SetSecondary(nil, cryptoDomain.RoleNone); err != nil {
		return err
	}
	j.opts.Logger.Info("expired retiring key dropped", slog.String("retiring_key", fingerprint))
	return nil
}

// retiringExpiry resolves when the retiring key with fingerprint expires.
func (j *Job) retiringExpiry(ctx context.Context, fingerprint string) (time.Time, bool, error) {
	if !j.opts.SecondaryExpiresAt.IsZero() {
		return j.opts.SecondaryExpiresAt, true, nil
	}
	if j.opts.Global == nil {
		return time.Time{}, false, nil
	}

	record, err := j.opts.Global.Get(ctx, cryptoDomain.RetiredKeysConfigKey)
	switch {
	case errors.Is(err, configDomain.ErrConfigNotFound):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, errors.Wrap(err, "failed to read retired key registry")
	}
	keys, err := cryptoDomain.ParseRetiredKeys(record.ValuePlain)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, k := range keys {
		if k.Fingerprint == fingerprint {
			return k.ExpiresAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (j *Job) canPromote(report *Report) bool {
	if report.TenantsFailed > 0 {
		return false
	}
	if j.opts.StrictPlatformScope && report.PlatformFailed > 0 {
		return false
	}
	return true
}

func (j *Job) rotatePlatformScope(ctx context.Context, logger *slog.Logger, report *Report, oldHex, newHex string) {
	if j.opts.MFA != nil {
		j.rotateMFASecrets(ctx, logger, report, oldHex, newHex)
	}
	if j.opts.Global != nil {
		j.rotateGlobalConfigs(ctx, logger, report, oldHex, newHex)
	}
}

func (j *Job) rotateMFASecrets(ctx context.Context, logger *slog.Logger, report *Report, oldHex, newHex string) {
	records, err := j.opts.MFA.ListMFASecrets(ctx)
	if err != nil {
		report.PlatformFailed++
		logger.Error("failed to list mfa secrets", slog.Any("error", err))
		return
	}
	for _, rec := range records {
		if j.opts.Envelope.CiphertextUnder(rec.MFASecret, newHex) {
			continue
		}
		sealed, err := j.opts.Envelope.RewrapCiphertext(rec.MFASecret, oldHex, newHex)
		if err == nil {
			err = j.opts.MFA.UpdateMFASecret(ctx, rec.UserID, sealed)
		}
		if err != nil {
			report.PlatformFailed++
			logger.Error("failed to rewrap mfa secret",
				slog.String("user_id", rec.UserID.String()),
				slog.Any("error", err),
			)
			continue
		}
		report.PlatformRewrapped++
	}
}

func (j *Job) rotateGlobalConfigs(ctx context.Context, logger *slog.Logger, report *Report, oldHex, newHex string) {
	var rewrapped, failed int
	err := j.opts.PlatformTx.WithTx(ctx, func(ctx context.Context) error {
		rewrapped, failed = 0, 0
		records, err := j.opts.Global.ListEncryptedForUpdate(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if j.opts.Envelope.WrappedUnder(rec.WrappedDek, newHex) {
				continue
			}
			wrapped, err := j.opts.Envelope.RewrapDek(rec.WrappedDek, oldHex, newHex)
			if err != nil {
				failed++
				logger.Error("failed to rewrap global config",
					slog.String("key", rec.Key),
					slog.Any("error", err),
				)
				continue
			}
			if err := j.opts.Global.UpdateWrappedDek(ctx, rec.Key, wrapped); err != nil {
				return fmt.Errorf("update global config %s: %w", rec.Key, err)
			}
			rewrapped++
		}
		return nil
	})
	if err != nil {
		report.PlatformFailed++
		logger.Error("global config rotation rolled back", slog.Any("error", err))
		return
	}
	report.PlatformRewrapped += rewrapped
	report.PlatformFailed += failed
}

// rotateTenant rewraps one tenant inside a single transaction. Any failure
// rolls the whole tenant back.
func (j *Job) rotateTenant(ctx context.Context, t *tenantDomain.Tenant, oldHex, newHex string) (rewrapped, skipped int, err error) {
	ds, ok := j.opts.Datasources.Get(t.Datasource)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownDatasource, t.Datasource)
	}
	if err := j.opts.Preflight.Probe(ctx, ds); err != nil {
		return 0, 0, err
	}

	store, txManager, err := j.opts.Scope(ds)
	if err != nil {
		return 0, 0, err
	}
	tenantCtx := tenantDomain.WithTenant(ctx, t.ID)
	err = txManager.WithTx(tenantCtx, func(ctx context.Context) error {
		rewrapped, skipped = 0, 0
		records, err := store.ListEncryptedForUpdate(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if j.opts.Envelope.WrappedUnder(rec.WrappedDek, newHex) {
				skipped++
				continue
			}
			wrapped, err := j.opts.Envelope.RewrapDek(rec.WrappedDek, oldHex, newHex)
			if err != nil {
				return fmt.Errorf("rewrap %s: %w", rec.Key, err)
			}
			if err := store.UpdateWrappedDek(ctx, t.ID, rec.Key, wrapped); err != nil {
				return fmt.Errorf("update %s: %w", rec.Key, err)
			}
			j.opts.Cache.EvictTenantConfig(ctx, t.ID, string(rec.Key))
			rewrapped++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return rewrapped, skipped, nil
}

func (j *Job) recordRetiredKey(ctx context.Context, fingerprint string, expiresAt time.Time) error {
	if j.opts.Global == nil {
		return nil
	}
	now := j.opts.Now().UTC()
	return j.updateRegistry(ctx, func(keys []cryptoDomain.RetiredKey) []cryptoDomain.RetiredKey {
		return append(keys, cryptoDomain.RetiredKey{
			Fingerprint: fingerprint,
			RetiredAt:   now,
			ExpiresAt:   expiresAt,
		})
	})
}

// CleanupExpiredKeys drops expired entries from the retired key registry and
// returns how many were removed. Legacy registry values are rewritten as JSON.
func (j *Job) CleanupExpiredKeys(ctx context.Context) (int, error) {
	if j.opts.Global == nil {
		return 0, nil
	}
	var removed int
	err := j.updateRegistry(ctx, func(keys []cryptoDomain.RetiredKey) []cryptoDomain.RetiredKey {
		var kept []cryptoDomain.RetiredKey
		kept, removed = cryptoDomain.PruneRetiredKeys(keys, j.opts.Now())
		return kept
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		j.opts.Logger.Info("expired retired keys removed", slog.Int("removed", removed))
	}
	return removed, nil
}

func (j *Job) updateRegistry(ctx context.Context, fn func([]cryptoDomain.RetiredKey) []cryptoDomain.RetiredKey) error {
	return j.opts.PlatformTx.WithTx(ctx, func(ctx context.Context) error {
		var keys []cryptoDomain.RetiredKey
		record, err := j.opts.Global.Get(ctx, cryptoDomain.RetiredKeysConfigKey)
		switch {
		case errors.Is(err, configDomain.ErrConfigNotFound):
		case err != nil:
			return err
		default:
			if keys, err = cryptoDomain.ParseRetiredKeys(record.ValuePlain); err != nil {
				return err
			}
		}

		raw, err := cryptoDomain.MarshalRetiredKeys(fn(keys))
		if err != nil {
			return err
		}
		return j.opts.Global.Upsert(ctx, &configDomain.GlobalConfigRecord{
			Key:        cryptoDomain.RetiredKeysConfigKey,
			ValuePlain: raw,
			UpdatedAt:  j.opts.Now().UTC(),
		})
	})
}
