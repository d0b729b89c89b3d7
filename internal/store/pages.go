package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// UpsertPage writes the page record for (audit, URL), replacing any earlier
// row. A successful re-render after a reclaim therefore overwrites the
// failed attempt instead of duplicating it.
func (s *Store) UpsertPage(p *PageRecord) error {
	if p.FetchedAt.IsZero() {
		p.FetchedAt = s.now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketPages, p.AuditID, true)
		if err != nil {
			return err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.URL), data)
	})
}

// Page loads one page record.
func (s *Store) Page(auditID, url string) (*PageRecord, error) {
	var p *PageRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketPages, auditID, false)
		if err != nil || b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(url))
		if data == nil {
			return ErrNotFound
		}
		p = &PageRecord{}
		return json.Unmarshal(data, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Pages returns all page records for an audit.
func (s *Store) Pages(auditID string) ([]*PageRecord, error) {
	var out []*PageRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketPages, auditID, false)
		if err != nil || b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			p := &PageRecord{}
			if err := json.Unmarshal(v, p); err != nil {
				return nil
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// PutAnalysis stores the derived analysis for (audit, URL). Re-running
// analysis replaces the previous row wholesale.
func (s *Store) PutAnalysis(a *PageAnalysis) error {
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = s.now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketAnalyses, a.AuditID, true)
		if err != nil {
			return err
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.URL), data)
	})
}

// Analyses returns all page analyses for an audit.
func (s *Store) Analyses(auditID string) ([]*PageAnalysis, error) {
	var out []*PageAnalysis
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketAnalyses, auditID, false)
		if err != nil || b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			a := &PageAnalysis{}
			if err := json.Unmarshal(v, a); err != nil {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

// AppendIssue appends a finding to the audit's issue list.
func (s *Store) AppendIssue(issue *Issue) error {
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = s.now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketIssues, issue.AuditID, true)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(issue)
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%010d", seq)), data)
	})
}

// Issues returns all findings for an audit in insertion order.
func (s *Store) Issues(auditID string) ([]*Issue, error) {
	var out []*Issue
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := auditBucket(tx, bucketIssues, auditID, false)
		if err != nil || b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			i := &Issue{}
			if err := json.Unmarshal(v, i); err != nil {
				return nil
			}
			out = append(out, i)
			return nil
		})
	})
	return out, err
}
