package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeProfilesCoreDesireOnlySetWhenEmpty(t *testing.T) {
	base := Profile{CoreDesire: "autonomy"}
	delta := Profile{CoreDesire: "recognition"}

	merged := MergeProfiles(base, delta)
	assert.Equal(t, "autonomy", merged.CoreDesire, "existing core desire must never be overwritten")

	merged = MergeProfiles(Profile{}, delta)
	assert.Equal(t, "recognition", merged.CoreDesire)
}

func TestMergeProfilesBeliefsAppendDeduped(t *testing.T) {
	base := Profile{LimitingBeliefs: []string{"not good enough"}}
	delta := Profile{LimitingBeliefs: []string{"not good enough", "too late to change", ""}}

	merged := MergeProfiles(base, delta)

	assert.Equal(t, []string{"not good enough", "too late to change"}, merged.LimitingBeliefs)
}

func TestMergeProfilesGoalsMergeByKey(t *testing.T) {
	base := Profile{Goals: map[string]string{
		"career": "get promoted",
		"health": "sleep more",
	}}
	delta := Profile{Goals: map[string]string{
		"career": "change careers",
		"family": "more time with kids",
	}}

	merged := MergeProfiles(base, delta)

	assert.Equal(t, "change careers", merged.Goals["career"], "delta wins on key collision")
	assert.Equal(t, "sleep more", merged.Goals["health"])
	assert.Equal(t, "more time with kids", merged.Goals["family"])
}

func TestMergeProfilesDoesNotMutateBase(t *testing.T) {
	base := Profile{
		LimitingBeliefs: []string{"a"},
		Goals:           map[string]string{"k": "v"},
	}
	_ = MergeProfiles(base, Profile{
		LimitingBeliefs: []string{"b"},
		Goals:           map[string]string{"k": "changed"},
	})

	assert.Equal(t, []string{"a"}, base.LimitingBeliefs)
	assert.Equal(t, "v", base.Goals["k"])
}

func TestIsAnonymous(t *testing.T) {
	assert.True(t, IsAnonymous("anon-a1b2c3d4e5f6"))
	assert.False(t, IsAnonymous("user-123"))
	assert.False(t, IsAnonymous(""))
}
