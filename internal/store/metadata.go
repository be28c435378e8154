package store

import (
	"database/sql"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.queryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) setMetadataTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(s.rebind(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`),
		key, value, value,
	)
	return err
}

func importKeyPrefix(classID string) string {
	return "roster_import:" + classID + ":"
}

func importKey(classID, path string) string {
	return importKeyPrefix(classID) + path
}

// forgetImports drops the roster file hashes recorded for a class, so the
// same files can be imported again once its roster is gone.
func (s *Store) forgetImports(tx *sql.Tx, classID string) error {
	_, err := tx.Exec(s.rebind(`DELETE FROM metadata WHERE key LIKE ?`), importKeyPrefix(classID)+"%")
	return err
}

// GetImportedFileHash returns the hash recorded for a roster file imported
// into a class, or "" if it was never imported.
func (s *Store) GetImportedFileHash(classID, path string) (string, error) {
	return s.GetMetadata(importKey(classID, path))
}

// SetImportedFileHash records the hash of a roster file imported into a class.
func (s *Store) SetImportedFileHash(classID, path, hash string) error {
	return s.SetMetadata(importKey(classID, path), hash)
}
