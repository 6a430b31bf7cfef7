package store

import (
	"database/sql"
)

// SetMetadata upserts a key-value pair in the deployment_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO deployment_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM deployment_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RecordDeploymentVersions stores the bank and scorer versions this
// deployment serves, so exports can state them even for old databases.
func (s *Store) RecordDeploymentVersions(bankVersion, scorerVersion string) error {
	if err := s.SetMetadata("bank_version", bankVersion); err != nil {
		return err
	}
	return s.SetMetadata("scorer_version", scorerVersion)
}

// DeploymentVersions reads the recorded bank and scorer versions.
func (s *Store) DeploymentVersions() (bankVersion, scorerVersion string, err error) {
	if bankVersion, err = s.GetMetadata("bank_version"); err != nil {
		return "", "", err
	}
	if scorerVersion, err = s.GetMetadata("scorer_version"); err != nil {
		return "", "", err
	}
	return bankVersion, scorerVersion, nil
}
