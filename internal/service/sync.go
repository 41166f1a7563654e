package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/repository"
)

// RemoteVault is the transport-facing view of the other store. The syncer
// treats it as a black box: a call either returns typed payloads or a
// transport error.
type RemoteVault interface {
	// FetchCredentials returns the full remote credential set of the
	// authenticated user.
	FetchCredentials(ctx context.Context) ([]model.SyncRecord, error)
	// PushCredential sends one record; the remote applies the same
	// last-write-wins rule on its copy.
	PushCredential(ctx context.Context, rec model.SyncRecord) error
}

// SyncResult reports what one reconciliation did. A transport failure in
// one pass is recorded here rather than failing the run: the merge rule is
// idempotent, so the half-merged state heals on the next sync.
type SyncResult struct {
	Pushed  int // records sent to the remote
	Created int // local credentials created from remote records
	Updated int // local credentials overwritten by newer remote records

	PushErr error // transport failure that aborted the push pass, if any
	PullErr error // transport failure that aborted the pull pass, if any
}

// Partial reports whether a pass was cut short by a transport failure.
func (r SyncResult) Partial() bool { return r.PushErr != nil || r.PullErr != nil }

// Applier applies incoming sync records to a store under the
// last-write-wins rule. The server uses it directly for pushed records;
// the syncer uses it for its pull pass.
type Applier struct {
	creds repository.CredentialRepository
	locks *Locks
}

// NewApplier constructs an Applier sharing the store's lock table.
func NewApplier(creds repository.CredentialRepository, locks *Locks) *Applier {
	return &Applier{creds: creds, locks: locks}
}

// Apply merges one record into the user's set. Records are matched by name.
// A missing credential is created with the record's data and timestamp; an
// existing one is overwritten only when the record is strictly newer. Equal
// timestamps keep the stored version.
func (a *Applier) Apply(ctx context.Context, userID uuid.UUID, rec model.SyncRecord) (applied bool, err error) {
	unlock := a.locks.Lock(userID)
	defer unlock()
	return a.applyLocked(ctx, userID, rec)
}

func (a *Applier) applyLocked(ctx context.Context, userID uuid.UUID, rec model.SyncRecord) (bool, error) {
	if rec.Name == "" || len(rec.Data) == 0 || rec.LastModified.IsZero() {
		return false, fmt.Errorf("malformed sync record %q: %w", rec.Name, errs.ErrInvalidInput)
	}

	cur, err := a.creds.GetByName(ctx, userID, rec.Name)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		id, err := uuid.NewV4()
		if err != nil {
			return false, err
		}
		c := &model.Credential{
			ID:         id,
			UserID:     userID,
			Name:       rec.Name,
			Ciphertext: rec.Data,
			CreatedAt:  rec.LastModified,
			UpdatedAt:  rec.LastModified,
		}
		return true, a.creds.Create(ctx, c)
	case err != nil:
		return false, err
	}

	if !rec.LastModified.After(cur.UpdatedAt) {
		// local is newer or tied; ties favor no change
		return false, nil
	}
	cur.Ciphertext = rec.Data
	cur.UpdatedAt = rec.LastModified
	return true, a.creds.Update(ctx, cur)
}

// Syncer reconciles one user's credential set between the local store and a
// remote vault. The reconciliation is two independent one-directional
// passes (push, then pull), not an atomic merge: a failure between passes
// leaves a half-merged state that the next run repairs.
type Syncer struct {
	creds   repository.CredentialRepository
	remote  RemoteVault
	applier *Applier
	locks   *Locks
}

// NewSyncer constructs a Syncer. locks must be shared with the vault
// service of the same store.
func NewSyncer(creds repository.CredentialRepository, remote RemoteVault, locks *Locks) *Syncer {
	return &Syncer{
		creds:   creds,
		remote:  remote,
		applier: NewApplier(creds, locks),
		locks:   locks,
	}
}

// Sync runs a full push-then-pull reconciliation for the user. Transport
// errors abort the affected pass only and are reported in the result;
// storage errors abort the whole run. Running Sync again with no
// intervening writes changes nothing on either side.
func (s *Syncer) Sync(ctx context.Context, userID uuid.UUID) (SyncResult, error) {
	if userID == uuid.Nil {
		return SyncResult{}, fmt.Errorf("empty userID: %w", errs.ErrInvalidInput)
	}
	var res SyncResult

	if err := s.push(ctx, userID, &res); err != nil {
		return res, err
	}
	if err := s.pull(ctx, userID, &res); err != nil {
		return res, err
	}
	return res, nil
}

// push sends every local credential to the remote. Already-delivered
// records stay delivered when the pass aborts; the rule is idempotent so
// resending them later is safe.
func (s *Syncer) push(ctx context.Context, userID uuid.UUID, res *SyncResult) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	local, err := s.creds.List(ctx, userID)
	if err != nil {
		return err
	}
	for i := range local {
		rec := model.SyncRecord{
			Name:         local[i].Name,
			Data:         local[i].Ciphertext,
			LastModified: local[i].UpdatedAt,
		}
		if err := s.remote.PushCredential(ctx, rec); err != nil {
			if errors.Is(err, errs.ErrTransport) {
				res.PushErr = err
				return nil
			}
			return err
		}
		res.Pushed++
	}
	return nil
}

// pull fetches the remote set and merges it into the local store.
func (s *Syncer) pull(ctx context.Context, userID uuid.UUID, res *SyncResult) error {
	remote, err := s.remote.FetchCredentials(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrTransport) {
			res.PullErr = err
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	for _, rec := range remote {
		existed := true
		if _, err := s.creds.GetByName(ctx, userID, rec.Name); errors.Is(err, errs.ErrNotFound) {
			existed = false
		}
		applied, err := s.applier.applyLocked(ctx, userID, rec)
		if err != nil {
			return err
		}
		switch {
		case applied && existed:
			res.Updated++
		case applied:
			res.Created++
		}
	}
	return nil
}
