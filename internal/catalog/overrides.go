package catalog

import "time"

// Override is a single config_overrides row: a key from the configuration
// allow-list, its raw text value, and when it was last written.
type Override struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// GetAllOverrides returns every persisted config override.
func (c *Catalog) GetAllOverrides() ([]Override, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`SELECT key, value, updated_at FROM config_overrides ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Override
	for rows.Next() {
		var o Override
		var updatedAt string
		if err := rows.Scan(&o.Key, &o.Value, &updatedAt); err != nil {
			return nil, err
		}
		o.UpdatedAt = parseTime(updatedAt)
		result = append(result, o)
	}
	return result, rows.Err()
}

// UpsertOverride writes (or replaces) the override for key.
func (c *Catalog) UpsertOverride(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO config_overrides (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, formatTime(timeNow()))
	return err
}

// timeNow is a thin indirection so tests can't accidentally depend on
// wall-clock behavior beyond what formatTime already normalizes.
func timeNow() time.Time { return time.Now().UTC() }
