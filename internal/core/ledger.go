package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/douit-app/douit/internal/docstore"
	"github.com/douit-app/douit/internal/models"
)

// RefSource lists the current references of a term set.
type RefSource interface {
	Refs(ctx context.Context, setID string) ([]*models.FragmentRef, error)
}

// FragmentGetter loads a live fragment; nil means it does not exist.
type FragmentGetter interface {
	Get(ctx context.Context, id string) (*models.Fragment, error)
}

// FragmentStatus reports whether a user has acknowledged a fragment of a set.
// UnderstoodAt and Version describe the latest acknowledgement, if any.
type FragmentStatus struct {
	FragmentID   string     `json:"fragmentId"`
	IsUnderstood bool       `json:"isUnderstood"`
	UnderstoodAt *time.Time `json:"understoodAt,omitempty"`
	Version      *int       `json:"version,omitempty"`
}

// StaleFragment is a fragment acknowledged at a version older than its
// current one.
type StaleFragment struct {
	FragmentID          string `json:"fragmentId"`
	AcknowledgedVersion int    `json:"acknowledgedVersion"`
	CurrentVersion      int    `json:"currentVersion"`
}

// Ledger records which fragment versions each user has understood.
type Ledger struct {
	store     docstore.Store
	sets      RefSource
	fragments FragmentGetter
	opts      options
}

// NewLedger creates an understanding ledger over st. sets and fragments
// resolve set membership for StatusForSet and StaleForSet.
func NewLedger(st docstore.Store, sets RefSource, fragments FragmentGetter, opts ...Option) *Ledger {
	return &Ledger{store: st, sets: sets, fragments: fragments, opts: buildOptions(opts)}
}

// AddRecord records that userID understood version of fragmentID and returns
// the record id. A second record for the same version fails with ErrConflict.
//
// The duplicate check and the insert are separate transactions, so
// concurrent calls can both succeed.
func (l *Ledger) AddRecord(ctx context.Context, userID, fragmentID string, version int) (string, error) {
	switch {
	case userID == "":
		return "", fmt.Errorf("add understood record: user id is required: %w", ErrValidation)
	case fragmentID == "":
		return "", fmt.Errorf("add understood record: fragment id is required: %w", ErrValidation)
	case version < 1:
		return "", fmt.Errorf("add understood record: version %d: %w", version, ErrValidation)
	}

	records, err := l.records(ctx, userID)
	if err != nil {
		return "", storeErr("add understood record", err)
	}
	for _, r := range records {
		if r.FragmentID == fragmentID && r.Version == version {
			return "", fmt.Errorf("fragment %q version %d: already recorded: %w", fragmentID, version, ErrConflict)
		}
	}

	rec := &models.UnderstoodRecord{
		ID:           l.opts.newID(),
		FragmentID:   fragmentID,
		Version:      version,
		UnderstoodAt: l.opts.now(),
	}
	err = l.store.Update(ctx, func(tx docstore.Tx) error {
		return docstore.PutJSON(tx, understoodColl(userID), rec.ID, rec)
	})
	if err != nil {
		return "", storeErr("add understood record", err)
	}

	l.opts.logger.Debug("understood recorded", "user", userID, "fragment_id", fragmentID, "version", version)
	return rec.ID, nil
}

// RemoveRecord deletes every acknowledgement of fragmentID by userID. Having
// nothing to delete is not an error.
func (l *Ledger) RemoveRecord(ctx context.Context, userID, fragmentID string) error {
	removed := 0
	err := l.store.Update(ctx, func(tx docstore.Tx) error {
		coll := understoodColl(userID)
		records, err := docstore.ListJSON[models.UnderstoodRecord](tx, coll)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.FragmentID != fragmentID {
				continue
			}
			if err := tx.Delete(coll, r.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return storeErr("remove understood record", err)
	}

	l.opts.logger.Debug("understood removed", "user", userID, "fragment_id", fragmentID, "records", removed)
	return nil
}

// IsUnderstood reports whether userID acknowledged fragmentID. With a nil
// version any version counts; otherwise only that exact version.
func (l *Ledger) IsUnderstood(ctx context.Context, userID, fragmentID string, version *int) (bool, error) {
	records, err := l.records(ctx, userID)
	if err != nil {
		return false, storeErr("check understood", err)
	}
	for _, r := range records {
		if r.FragmentID != fragmentID {
			continue
		}
		if version == nil || r.Version == *version {
			return true, nil
		}
	}
	return false, nil
}

// ListForUser returns a user's records, most recent first.
func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]*models.UnderstoodRecord, error) {
	records, err := l.records(ctx, userID)
	if err != nil {
		return nil, storeErr("list understood records", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].UnderstoodAt.Equal(records[j].UnderstoodAt) {
			return records[i].UnderstoodAt.After(records[j].UnderstoodAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// StatusForSet reports, for each distinct fragment referenced by the set in
// display order, whether userID acknowledged any version of it. Versions are
// not compared against the fragment's current version; see StaleForSet.
func (l *Ledger) StatusForSet(ctx context.Context, userID, setID string) ([]FragmentStatus, error) {
	refs, err := l.sets.Refs(ctx, setID)
	if err != nil {
		return nil, err
	}
	latest, err := l.latestByFragment(ctx, userID)
	if err != nil {
		return nil, storeErr("set status", err)
	}

	out := make([]FragmentStatus, 0, len(refs))
	for _, id := range distinctFragments(refs) {
		st := FragmentStatus{FragmentID: id}
		if r, ok := latest[id]; ok {
			at, v := r.UnderstoodAt, r.Version
			st.IsUnderstood = true
			st.UnderstoodAt = &at
			st.Version = &v
		}
		out = append(out, st)
	}
	return out, nil
}

// StaleForSet returns the fragments of the set that userID acknowledged only
// at versions older than the fragment's current version. Fragments never
// acknowledged, and fragments that no longer exist, are not reported.
func (l *Ledger) StaleForSet(ctx context.Context, userID, setID string) ([]StaleFragment, error) {
	refs, err := l.sets.Refs(ctx, setID)
	if err != nil {
		return nil, err
	}
	records, err := l.records(ctx, userID)
	if err != nil {
		return nil, storeErr("stale fragments", err)
	}
	highest := make(map[string]int)
	for _, r := range records {
		if r.Version > highest[r.FragmentID] {
			highest[r.FragmentID] = r.Version
		}
	}

	out := make([]StaleFragment, 0)
	for _, id := range distinctFragments(refs) {
		acked, ok := highest[id]
		if !ok {
			continue
		}
		frag, err := l.fragments.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if frag == nil || acked >= frag.CurrentVersion {
			continue
		}
		out = append(out, StaleFragment{
			FragmentID:          id,
			AcknowledgedVersion: acked,
			CurrentVersion:      frag.CurrentVersion,
		})
	}
	return out, nil
}

func (l *Ledger) records(ctx context.Context, userID string) ([]*models.UnderstoodRecord, error) {
	var records []*models.UnderstoodRecord
	err := l.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		records, err = docstore.ListJSON[models.UnderstoodRecord](tx, understoodColl(userID))
		return err
	})
	return records, err
}

// latestByFragment keeps the most recent acknowledgement per fragment.
func (l *Ledger) latestByFragment(ctx context.Context, userID string) (map[string]*models.UnderstoodRecord, error) {
	records, err := l.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*models.UnderstoodRecord, len(records))
	for _, r := range records {
		cur, ok := latest[r.FragmentID]
		if !ok || r.UnderstoodAt.After(cur.UnderstoodAt) ||
			(r.UnderstoodAt.Equal(cur.UnderstoodAt) && r.Version > cur.Version) {
			latest[r.FragmentID] = r
		}
	}
	return latest, nil
}

func distinctFragments(refs []*models.FragmentRef) []string {
	ids := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if seen[r.FragmentID] {
			continue
		}
		seen[r.FragmentID] = true
		ids = append(ids, r.FragmentID)
	}
	return ids
}
