package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mchmarny/triage/pkg/risk"
)

const (
	upsertProfileSQL = `INSERT INTO profile (name, description, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = ?, updated_at = ?
	`

	deleteProfileWeightsSQL = `DELETE FROM profile_weight WHERE profile = ?`

	insertProfileWeightSQL = `INSERT INTO profile_weight (profile, condition_key, weight) VALUES (?, ?, ?)`

	selectProfileSQL = `SELECT name, description, updated_at FROM profile WHERE name = ?`

	selectProfileWeightsSQL = `SELECT condition_key, weight FROM profile_weight WHERE profile = ?`

	selectProfilesSQL = `SELECT p.name, p.description, p.updated_at, COUNT(w.condition_key)
		FROM profile p
		LEFT JOIN profile_weight w ON p.name = w.profile
		GROUP BY p.name, p.description, p.updated_at
		ORDER BY p.name
	`

	deleteProfileSQL = `DELETE FROM profile WHERE name = ?`

	timeFormat = time.RFC3339
)

// ErrProfileNotFound is returned when a named profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named set of risk weight overrides.
type Profile struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Weights     map[string]int `json:"weights" yaml:"weights"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updatedAt"`
}

// ProfileItem is a profile listing entry.
type ProfileItem struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Conditions  int       `json:"conditions" yaml:"conditions"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updatedAt"`
}

// SaveProfile creates or replaces a profile. Weights are validated the same
// way the risk index validates them.
func SaveProfile(db *sql.DB, p *Profile) error {
	if db == nil {
		return errDBNotInitialized
	}
	if p == nil {
		return errors.New("profile required")
	}

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("profile name required")
	}

	idx, err := risk.NewIndex(p.Weights)
	if err != nil {
		return fmt.Errorf("invalid weights for profile %s: %w", p.Name, err)
	}
	p.Weights = idx.Weights()
	p.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	updated := p.UpdatedAt.Format(timeFormat)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(upsertProfileSQL, p.Name, p.Description, updated, p.Description, updated); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.Name, err)
	}

	if _, err := tx.Exec(deleteProfileWeightsSQL, p.Name); err != nil {
		return fmt.Errorf("failed to clear weights for profile %s: %w", p.Name, err)
	}

	stmt, err := tx.Prepare(insertProfileWeightSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare weight insert statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range idx.Conditions() {
		if _, err := stmt.Exec(p.Name, k, idx.Weight(k)); err != nil {
			return fmt.Errorf("failed to insert weight %s for profile %s: %w", k, p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("profile saved", "name", p.Name, "conditions", idx.Len())
	return nil
}

// GetProfile returns the named profile or ErrProfileNotFound.
func GetProfile(db *sql.DB, name string) (*Profile, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	name = strings.TrimSpace(name)

	p := &Profile{Weights: make(map[string]int)}
	var updated string
	err := db.QueryRow(selectProfileSQL, name).Scan(&p.Name, &p.Description, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return nil, fmt.Errorf("failed to scan profile %s: %w", name, err)
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
		return nil, fmt.Errorf("invalid updated_at for profile %s: %w", name, err)
	}

	rows, err := db.Query(selectProfileWeightsSQL, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights for profile %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k string
			w int
		)
		if err := rows.Scan(&k, &w); err != nil {
			return nil, fmt.Errorf("failed to scan weight row: %w", err)
		}
		p.Weights[k] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weight rows: %w", err)
	}

	return p, nil
}

// ListProfiles returns all profiles ordered by name.
func ListProfiles(db *sql.DB) ([]*ProfileItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectProfilesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	list := make([]*ProfileItem, 0)
	for rows.Next() {
		item := &ProfileItem{}
		var updated string
		if err := rows.Scan(&item.Name, &item.Description, &updated, &item.Conditions); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		if item.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
			return nil, fmt.Errorf("invalid updated_at for profile %s: %w", item.Name, err)
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}

	return list, nil
}

// DeleteProfile removes the profile and its weights.
func DeleteProfile(db *sql.DB, name string) error {
	if db == nil {
		return errDBNotInitialized
	}

	name = strings.TrimSpace(name)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(deleteProfileWeightsSQL, name); err != nil {
		return fmt.Errorf("failed to delete weights for profile %s: %w", name, err)
	}

	res, err := tx.Exec(deleteProfileSQL, name)
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
