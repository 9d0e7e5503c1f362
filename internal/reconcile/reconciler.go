// Package reconcile converges the set of persisted instance records for a
// sample onto the quantity declared by its receiving line. Instances are
// generated from quantity, not hand-managed: whenever the count differs the
// existing records are discarded and a fresh contiguous serial run is
// created. Codes are cheap and carry no state, so regeneration is the
// intended behavior rather than a diff.
package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/labtrack/internal/domain"
	"github.com/yourorg/labtrack/internal/observability/metrics"
)

// ErrInFlight is returned when a reconciliation for this Reconciler is
// already running. The trigger is dropped, not queued.
var ErrInFlight = errors.New("reconciliation already in flight")

// ErrLockedElsewhere is returned when another process holds the sample's
// distributed reconciliation lock.
var ErrLockedElsewhere = errors.New("sample is being reconciled by another client")

// Locker is the optional cross-process lease lock. Nil disables it and
// mutual exclusion is process-local only, matching single-client behavior.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Reconciler drives instance create/delete calls for one dialog or command
// invocation. At most one run is in flight per Reconciler; the slot channel
// is the single-slot lock whose lifetime is tied to the run it protects.
type Reconciler struct {
	instances domain.InstanceAPI
	partners  domain.PartnerAPI
	locker    Locker
	lockTTL   time.Duration
	logger    *slog.Logger
	slot      chan struct{}
	now       func() time.Time
}

// New creates a reconciler. locker may be nil.
func New(instances domain.InstanceAPI, partners domain.PartnerAPI, locker Locker, lockTTL time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Reconciler{
		instances: instances,
		partners:  partners,
		locker:    locker,
		lockTTL:   lockTTL,
		logger:    logger,
		slot:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Reconcile converges the persisted instance count for sample onto quantity.
// A quantity at or below zero converges to zero instances. When the counts
// already match, no mutating request is issued. On any delete or create
// failure the remaining steps are abandoned and whatever partial state the
// server already holds is left in place; there is no compensating rollback.
func (r *Reconciler) Reconcile(ctx context.Context, sample domain.Sample, quantity int) error {
	select {
	case r.slot <- struct{}{}:
	default:
		return ErrInFlight
	}
	defer func() { <-r.slot }()

	start := time.Now()
	mutated, err := r.run(ctx, sample, quantity)
	switch {
	case err != nil:
		metrics.ObserveReconcile("error", time.Since(start))
	case mutated:
		metrics.ObserveReconcile("converged", time.Since(start))
	default:
		metrics.ObserveReconcile("noop", time.Since(start))
	}
	return err
}

func (r *Reconciler) run(ctx context.Context, sample domain.Sample, quantity int) (bool, error) {
	if quantity < 0 {
		quantity = 0
	}
	logger := r.logger.With(
		slog.String("sample_id", sample.ID),
		slog.String("sample_code", sample.Code),
		slog.Int("target_quantity", quantity),
	)

	if r.locker != nil {
		owner := lockOwner()
		key := "reconcile:" + sample.ID
		held, err := r.locker.AcquireLock(ctx, key, owner, r.lockTTL)
		if err != nil {
			return false, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !held {
			return false, ErrLockedElsewhere
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
				logger.Warn("release reconcile lock failed", slog.String("error", err.Error()))
			}
		}()
	}

	all, err := r.instances.ListInstances(ctx)
	if err != nil {
		return false, fmt.Errorf("list instances: %w", err)
	}

	matching := matchSample(all, sample)
	if len(matching) == quantity {
		logger.Debug("instance count already matches, nothing to do")
		return false, nil
	}

	logger.Info("reconciling instances", slog.Int("existing", len(matching)))

	if err := r.deleteAll(ctx, matching); err != nil {
		return true, fmt.Errorf("delete phase: %w", err)
	}
	if quantity == 0 {
		return true, nil
	}

	codes, err := r.nextCodes(ctx, sample, all, matching, quantity)
	if err != nil {
		return true, err
	}
	if err := r.createAll(ctx, sample, codes); err != nil {
		return true, fmt.Errorf("create phase: %w", err)
	}

	logger.Info("reconciliation converged", slog.Int("created", quantity))
	return true, nil
}

// deleteAll issues one delete per instance concurrently and joins them
// all-or-nothing. Partial failure is reported as a single failure with no
// per-item bookkeeping.
func (r *Reconciler) deleteAll(ctx context.Context, instances []domain.Instance) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		g.Go(func() error {
			return r.instances.DeleteInstance(gctx, inst.ID)
		})
	}
	return g.Wait()
}

func (r *Reconciler) createAll(ctx context.Context, sample domain.Sample, codes []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, code := range codes {
		g.Go(func() error {
			_, err := r.instances.CreateInstance(gctx, domain.Instance{
				Code:       code,
				SampleID:   sample.ID,
				SampleCode: sample.Code,
			})
			return err
		})
	}
	return g.Wait()
}

// nextCodes derives the codes for the new run: YYYYMMDD-PPPP-NNN, where NNN
// continues one past the highest serial among surviving codes with the same
// date+partner prefix. The just-deleted batch is excluded from the scan.
func (r *Reconciler) nextCodes(ctx context.Context, sample domain.Sample, all, deleted []domain.Instance, quantity int) ([]string, error) {
	partner, err := r.partners.GetBusinessPartner(ctx, sample.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve partner: %w", err)
	}

	prefix := r.now().Format("20060102") + "-" + partnerSuffix(partner.Code) + "-"

	gone := make(map[string]struct{}, len(deleted))
	for _, inst := range deleted {
		gone[inst.ID] = struct{}{}
	}

	maxSerial := 0
	for _, inst := range all {
		if _, wasDeleted := gone[inst.ID]; wasDeleted {
			continue
		}
		if !strings.HasPrefix(inst.Code, prefix) {
			continue
		}
		serial, err := strconv.Atoi(inst.Code[len(prefix):])
		if err != nil {
			continue
		}
		if serial > maxSerial {
			maxSerial = serial
		}
	}

	codes := make([]string, quantity)
	for i := range codes {
		codes[i] = fmt.Sprintf("%s%03d", prefix, maxSerial+i+1)
	}
	return codes, nil
}

// matchSample filters instances belonging to the sample. Upstream data is
// inconsistent about whether SampleCode or SampleID is populated, so either
// identifier links a record.
func matchSample(instances []domain.Instance, sample domain.Sample) []domain.Instance {
	var out []domain.Instance
	for _, inst := range instances {
		if sample.Code != "" && inst.SampleCode == sample.Code {
			out = append(out, inst)
			continue
		}
		if sample.ID != "" && inst.SampleID == sample.ID {
			out = append(out, inst)
		}
	}
	return out
}

// partnerSuffix normalizes a partner code to the 4-character segment used in
// instance codes
func partnerSuffix(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) >= 4 {
		return code[:4]
	}
	return code + strings.Repeat("X", 4-len(code))
}

func lockOwner() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("owner-%d", time.Now().UnixNano())
}
