package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// Profile is the long-term psychological picture of a user.
type Profile struct {
	CoreDesire      string            `json:"core_desire"`
	LimitingBeliefs []string          `json:"limiting_beliefs"`
	Goals           map[string]string `json:"goals"`
}

// MergeProfiles applies delta onto base without blind overwrites:
// beliefs append deduped, goals merge by key (delta wins), core desire
// is only set when base has none. Pure function, separately testable.
func MergeProfiles(base, delta Profile) Profile {
	merged := Profile{
		CoreDesire:      base.CoreDesire,
		LimitingBeliefs: slices.Clone(base.LimitingBeliefs),
		Goals:           make(map[string]string, len(base.Goals)+len(delta.Goals)),
	}
	if merged.CoreDesire == "" {
		merged.CoreDesire = delta.CoreDesire
	}
	for _, b := range delta.LimitingBeliefs {
		if b != "" && !slices.Contains(merged.LimitingBeliefs, b) {
			merged.LimitingBeliefs = append(merged.LimitingBeliefs, b)
		}
	}
	for k, v := range base.Goals {
		merged.Goals[k] = v
	}
	for k, v := range delta.Goals {
		if k != "" && v != "" {
			merged.Goals[k] = v
		}
	}
	return merged
}

const psychSelectForUpdateSQL = `
SELECT traits FROM psych_profiles WHERE user_id = $1 FOR UPDATE`

const psychUpsertSQL = `
INSERT INTO psych_profiles (user_id, traits, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id)
DO UPDATE SET traits = EXCLUDED.traits, updated_at = now()`

// Merge atomically applies delta to the stored profile inside a
// transaction with a row lock, so concurrent merges never lose updates.
// Anonymous users are silently skipped.
func (s *Store) Merge(ctx context.Context, userID string, delta Profile) error {
	if IsAnonymous(userID) {
		s.logger.Debug("skipping psych profile merge for anonymous user")
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning psych merge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var base Profile
	var raw []byte
	err = tx.QueryRow(ctx, psychSelectForUpdateSQL, userID).Scan(&raw)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &base); err != nil {
			return fmt.Errorf("decoding stored psych profile: %w", err)
		}
	case isNoRows(err):
		// First write for this user.
	default:
		return fmt.Errorf("loading psych profile: %w", err)
	}

	merged := MergeProfiles(base, delta)
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding merged psych profile: %w", err)
	}

	if _, err := tx.Exec(ctx, psychUpsertSQL, userID, data); err != nil {
		return fmt.Errorf("storing psych profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing psych merge: %w", err)
	}
	return nil
}

const psychGetSQL = `SELECT traits FROM psych_profiles WHERE user_id = $1`

// Get returns the stored profile, or a zero profile when none exists.
func (s *Store) Get(ctx context.Context, userID string) (Profile, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, psychGetSQL, userID).Scan(&raw)
	if isNoRows(err) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("loading psych profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decoding psych profile: %w", err)
	}
	return p, nil
}
