package store

import (
	"encoding/json"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SeedEntry is one URL offered to the frontier.
type SeedEntry struct {
	URL       string
	Depth     int
	Priority  float64
	ParentURL string
	Source    string
}

// Seed inserts entries into the audit's frontier. Idempotent: an entry whose
// normalized URL already exists is kept, taking the minimum depth and
// priority seen across discoveries. Returns the number of new rows.
func (s *Store) Seed(auditID string, entries []SeedEntry) (int, error) {
	inserted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, true)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		for _, e := range entries {
			if e.URL == "" {
				continue
			}
			key := []byte(e.URL)
			if data := b.Get(key); data != nil {
				var existing FrontierEntry
				if err := json.Unmarshal(data, &existing); err != nil {
					continue
				}
				changed := false
				if e.Depth < existing.Depth {
					existing.Depth = e.Depth
					changed = true
				}
				if e.Priority < existing.Priority {
					existing.Priority = e.Priority
					changed = true
				}
				if changed {
					existing.UpdatedAt = now
					if out, err := json.Marshal(&existing); err == nil {
						if err := b.Put(key, out); err != nil {
							return err
						}
					}
				}
				continue
			}

			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			entry := FrontierEntry{
				AuditID:   auditID,
				URL:       e.URL,
				Depth:     e.Depth,
				Priority:  e.Priority,
				Status:    FrontierPending,
				ParentURL: e.ParentURL,
				Source:    e.Source,
				Seq:       seq,
				CreatedAt: now,
				UpdatedAt: now,
			}
			out, err := json.Marshal(&entry)
			if err != nil {
				return err
			}
			if err := b.Put(key, out); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LeaseBatch atomically claims up to n pending entries, ordered by
// (depth, priority, insertion order), flipping them to visiting in the same
// transaction. Bolt serializes Update transactions, so two concurrent ticks
// can never lease the same row.
func (s *Store) LeaseBatch(auditID string, n int) ([]*FrontierEntry, error) {
	if n < 1 {
		return nil, nil
	}
	var leased []*FrontierEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, true)
		if err != nil {
			return err
		}

		var pending []*FrontierEntry
		b.ForEach(func(k, v []byte) error {
			var e FrontierEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			if e.Status == FrontierPending {
				pending = append(pending, &e)
			}
			return nil
		})

		sort.Slice(pending, func(i, j int) bool {
			if pending[i].Depth != pending[j].Depth {
				return pending[i].Depth < pending[j].Depth
			}
			if pending[i].Priority != pending[j].Priority {
				return pending[i].Priority < pending[j].Priority
			}
			return pending[i].Seq < pending[j].Seq
		})

		if len(pending) > n {
			pending = pending[:n]
		}

		now := s.now().UTC()
		for _, e := range pending {
			e.Status = FrontierVisiting
			e.LeasedAt = now
			e.UpdatedAt = now
			out, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.URL), out); err != nil {
				return err
			}
			leased = append(leased, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// LeaseOne claims the single best pending entry, or nil when none remain.
func (s *Store) LeaseOne(auditID string) (*FrontierEntry, error) {
	batch, err := s.LeaseBatch(auditID, 1)
	if err != nil || len(batch) == 0 {
		return nil, err
	}
	return batch[0], nil
}

// Complete transitions a visiting entry to done or skipped. Completing a row
// that is not visiting is a no-op: the false return lets the caller log the
// double-completion instead of corrupting state.
func (s *Store) Complete(auditID, url string, outcome FrontierStatus) (bool, error) {
	if outcome != FrontierDone && outcome != FrontierSkipped {
		outcome = FrontierDone
	}
	applied := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, true)
		if err != nil {
			return err
		}
		data := b.Get([]byte(url))
		if data == nil {
			return nil
		}
		var e FrontierEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		if e.Status != FrontierVisiting {
			return nil
		}
		e.Status = outcome
		e.UpdatedAt = s.now().UTC()
		out, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(url), out); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// ReclaimStale demotes visiting entries whose lease is older than ttl back
// to pending. This is the only recovery path for a worker that died or timed
// out mid-fetch. Returns the reclaimed URLs.
func (s *Store) ReclaimStale(auditID string, ttl time.Duration) ([]string, error) {
	var reclaimed []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, true)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		cutoff := now.Add(-ttl)

		type stale struct {
			key   []byte
			entry FrontierEntry
		}
		var found []stale
		b.ForEach(func(k, v []byte) error {
			var e FrontierEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			if e.Status == FrontierVisiting && e.LeasedAt.Before(cutoff) {
				found = append(found, stale{key: append([]byte(nil), k...), entry: e})
			}
			return nil
		})

		for _, f := range found {
			f.entry.Status = FrontierPending
			f.entry.LeasedAt = time.Time{}
			f.entry.UpdatedAt = now
			out, err := json.Marshal(&f.entry)
			if err != nil {
				return err
			}
			if err := b.Put(f.key, out); err != nil {
				return err
			}
			reclaimed = append(reclaimed, f.entry.URL)
		}
		return nil
	})
	return reclaimed, err
}

// Counts returns the frontier's per-status totals.
func (s *Store) Counts(auditID string) (FrontierCounts, error) {
	var counts FrontierCounts
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, false)
		if err != nil || b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var e FrontierEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			switch e.Status {
			case FrontierPending:
				counts.Pending++
			case FrontierVisiting:
				counts.Visiting++
			case FrontierDone:
				counts.Done++
			case FrontierSkipped:
				counts.Skipped++
			}
			return nil
		})
	})
	return counts, err
}

// FrontierEntry loads a single frontier row.
func (s *Store) FrontierEntry(auditID, url string) (*FrontierEntry, error) {
	var entry *FrontierEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketFrontier, auditID, false)
		if err != nil || b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(url))
		if data == nil {
			return ErrNotFound
		}
		entry = &FrontierEntry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
