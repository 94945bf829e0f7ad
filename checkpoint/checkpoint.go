// Package checkpoint provides periodic persistence of refinement
// state to a bolt database, so interrupted runs can be resumed.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all checkpoints.
var MAIN = []byte("main")

// State stores the refinement state of a motif-finder run.
type State struct {
	// Iter is the last finished iteration.
	Iter int `json:"iter"`
	// LogLikelihood is the consensus log-likelihood (Gibbs).
	LogLikelihood float64 `json:"logLikelihood,omitempty"`
	// Consensus is the current consensus motif.
	Consensus string `json:"consensus,omitempty"`
	// Offsets are the latent motif start offsets (Gibbs).
	Offsets []int `json:"offsets,omitempty"`
	// PFM is the position frequency matrix in row-major order (EM).
	PFM []float64 `json:"pfm,omitempty"`
	// Final marks a finished run.
	Final bool `json:"final"`
}

// IO saves and loads checkpoints.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewIO creates a new checkpoint IO writing under the given key at
// most every seconds seconds.
func NewIO(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save saves a checkpoint to the database.
func (s *IO) Save(state *State) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	data, err := json.Marshal(state)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, data)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the stored state, nil if no checkpoint was saved
// under the key.
func (s *IO) Load() (*State, error) {
	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	var state *State
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	if state.Final {
		log.Noticef("Found finished run checkpoint (iter=%v, lnL=%v)", state.Iter, state.LogLikelihood)
	} else {
		log.Noticef("Found unfinished run checkpoint (iter=%v, lnL=%v)", state.Iter, state.LogLikelihood)
	}

	return state, nil
}

// Old returns true if the last checkpoint save was too long ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets the last checkpoint time to now.
func (s *IO) SetNow() {
	s.last = time.Now()
}

// SaveData saves a value in the bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return err
}

// LoadData loads a value from the bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
