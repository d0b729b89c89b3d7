package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// CreateAudit creates a new audit row in the discovery phase.
func (s *Store) CreateAudit(domain, origin string) (*Audit, error) {
	a := &Audit{
		ID:        newAuditID(),
		Domain:    domain,
		Origin:    origin,
		Status:    AuditRunning,
		Phase:     "discovery",
		Attempts:  make(map[string]int),
		CreatedAt: s.now().UTC(),
	}
	if err := s.putAudit(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Audit loads one audit by id.
func (s *Store) Audit(id string) (*Audit, error) {
	var a *Audit
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAudits).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		a = &Audit{}
		return json.Unmarshal(data, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Audits lists all audits, newest first.
func (s *Store) Audits() ([]*Audit, error) {
	var out []*Audit
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudits).ForEach(func(k, v []byte) error {
			a := &Audit{}
			if err := json.Unmarshal(v, a); err != nil {
				return nil // skip corrupt rows
			}
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdateAudit applies fn to the audit row inside one transaction, so
// concurrent ticks cannot interleave a read-decide-write across calls.
func (s *Store) UpdateAudit(id string, fn func(a *Audit) error) (*Audit, error) {
	var updated *Audit
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudits)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		a := &Audit{}
		if err := json.Unmarshal(data, a); err != nil {
			return fmt.Errorf("decode audit %s: %w", id, err)
		}
		if a.Attempts == nil {
			a.Attempts = make(map[string]int)
		}
		if err := fn(a); err != nil {
			return err
		}
		out, err := json.Marshal(a)
		if err != nil {
			return err
		}
		updated = a
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Heartbeat refreshes the audit's heartbeat timestamp so a watchdog can
// tell a working audit from a stalled one.
func (s *Store) Heartbeat(id string) error {
	_, err := s.UpdateAudit(id, func(a *Audit) error {
		a.HeartbeatAt = s.now().UTC()
		return nil
	})
	return err
}

func (s *Store) putAudit(a *Audit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAudits).Put([]byte(a.ID), data)
	})
}

func newAuditID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return fmt.Sprintf("%d-%s", time.Now().Unix(), hex.EncodeToString(buf)[:8])
}
