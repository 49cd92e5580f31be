package data

import (
	"testing"

	"github.com/mchmarny/triage/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetProfile(t *testing.T) {
	db := setupTestDB(t)

	p := &Profile{
		Name:        " winter ",
		Description: "respiratory season",
		Weights:     map[string]int{"Asthma": 6, "copd": 8},
	}
	require.NoError(t, SaveProfile(db, p))
	assert.Equal(t, "winter", p.Name)
	assert.False(t, p.UpdatedAt.IsZero())

	got, err := GetProfile(db, "winter")
	require.NoError(t, err)
	assert.Equal(t, "winter", got.Name)
	assert.Equal(t, "respiratory season", got.Description)
	assert.Equal(t, map[string]int{"asthma": 6, "copd": 8}, got.Weights)
	assert.True(t, p.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSaveProfile_Replaces(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SaveProfile(db, &Profile{Name: "p", Weights: map[string]int{"asthma": 6, "copd": 8}}))
	require.NoError(t, SaveProfile(db, &Profile{Name: "p", Weights: map[string]int{"diabetes": 1}}))

	got, err := GetProfile(db, "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"diabetes": 1}, got.Weights)
}

func TestSaveProfile_Invalid(t *testing.T) {
	db := setupTestDB(t)

	err := SaveProfile(db, &Profile{Name: "neg", Weights: map[string]int{"asthma": -1}})
	assert.ErrorIs(t, err, risk.ErrConfiguration)

	assert.Error(t, SaveProfile(db, &Profile{Name: "  "}))
	assert.Error(t, SaveProfile(db, nil))
	assert.Error(t, SaveProfile(nil, &Profile{Name: "x"}))

	_, err = GetProfile(db, "neg")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestSaveProfile_Empty(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveProfile(db, &Profile{Name: "blank"}))

	got, err := GetProfile(db, "blank")
	require.NoError(t, err)
	assert.Empty(t, got.Weights)
}

func TestListProfiles(t *testing.T) {
	db := setupTestDB(t)

	list, err := ListProfiles(db)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, SaveProfile(db, &Profile{Name: "b", Weights: map[string]int{"asthma": 1}}))
	require.NoError(t, SaveProfile(db, &Profile{Name: "a", Weights: map[string]int{"asthma": 1, "copd": 2}}))
	require.NoError(t, SaveProfile(db, &Profile{Name: "c"}))

	list, err = ListProfiles(db)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, 2, list[0].Conditions)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, 1, list[1].Conditions)
	assert.Equal(t, 0, list[2].Conditions)
}

func TestDeleteProfile(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveProfile(db, &Profile{Name: "gone", Weights: map[string]int{"asthma": 1}}))

	require.NoError(t, DeleteProfile(db, "gone"))

	_, err := GetProfile(db, "gone")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	assert.ErrorIs(t, DeleteProfile(db, "gone"), ErrProfileNotFound)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM profile_weight").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestProfiles_NilDB(t *testing.T) {
	_, err := GetProfile(nil, "x")
	assert.Error(t, err)
	_, err = ListProfiles(nil)
	assert.Error(t, err)
	assert.Error(t, DeleteProfile(nil, "x"))
}
