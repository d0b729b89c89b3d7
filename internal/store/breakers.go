package store

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/answerscope/answerscope/internal/limit"
)

// BreakerState loads persisted circuit breaker state for a service.
// Implements limit.BreakerStore.
func (s *Store) BreakerState(service string) (*limit.BreakerState, error) {
	var st *limit.BreakerState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBreakers).Get([]byte(service))
		if data == nil {
			return nil
		}
		st = &limit.BreakerState{}
		return json.Unmarshal(data, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// PutBreakerState persists circuit breaker state for a service.
func (s *Store) PutBreakerState(st *limit.BreakerState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBreakers).Put([]byte(st.Service), data)
	})
}
