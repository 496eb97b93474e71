// Package store persists telemetry packets and flight metadata in an ordered
// embedded key-value store (bbolt).
//
// Key scheme, ordering significant:
//
//	flight:<flight_id>                per-flight metadata
//	telem:<flight_id>:<timestamp>     one packet, timestamp zero-padded to 20
//	                                  digits so lexicographic order matches
//	                                  numeric order
//
// Phases are never stored; GetTelemetry recomputes them at read time so that
// classifier changes apply retroactively to historical flights.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/saviobatista/telemetry-server/internal/phase"
	"github.com/saviobatista/telemetry-server/internal/types"
)

// ErrNotFound is returned when a flight id has no metadata record.
var ErrNotFound = errors.New("flight not found")

var bucketName = []byte("telemetry")

const (
	flightPrefix = "flight:"
	telemPrefix  = "telem:"
)

// Store is a bbolt-backed storage engine. bbolt allows one writer and any
// number of concurrent readers, each with a consistent snapshot, which covers
// the single ingest writer overlapping REST readers.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func flightKey(flightID string) []byte {
	return []byte(flightPrefix + flightID)
}

func telemetryKey(flightID string, timestamp uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", telemPrefix, flightID, timestamp))
}

func telemetryPrefixKey(flightID string) []byte {
	return []byte(telemPrefix + flightID + ":")
}

// PutPacket appends a packet under telem:<flightID>:<timestamp>. Packets
// arrive in non-decreasing timestamp order and are written as received.
func (s *Store) PutPacket(flightID string, p *types.TelemetryPacket) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(telemetryKey(flightID, p.Timestamp), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store packet: %w", err)
	}
	return nil
}

// UpsertMetadata writes flight:<id>. The write happens inside a single bbolt
// transaction, so readers never observe a partially updated record.
func (s *Store) UpsertMetadata(meta *types.FlightMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal flight metadata: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(flightKey(meta.FlightID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store flight metadata: %w", err)
	}
	return nil
}

// ListFlights returns every flight's metadata sorted by start time.
func (s *Store) ListFlights() ([]types.FlightMetadata, error) {
	flights := make([]types.FlightMetadata, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		prefix := []byte(flightPrefix)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var meta types.FlightMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("corrupt metadata at %s: %w", k, err)
			}
			flights = append(flights, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(flights, func(i, j int) bool {
		return flights[i].StartTime < flights[j].StartTime
	})
	return flights, nil
}

// GetFlight returns the metadata for one flight, or ErrNotFound.
func (s *Store) GetFlight(flightID string) (*types.FlightMetadata, error) {
	var meta types.FlightMetadata

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(flightKey(flightID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &meta)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetTelemetry returns a flight's packets in ascending timestamp order, each
// annotated with a freshly classified phase. An unknown or empty flight
// yields an empty slice.
func (s *Store) GetTelemetry(flightID string) ([]types.AnnotatedPacket, error) {
	packets := make([]types.AnnotatedPacket, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		prefix := telemetryPrefixKey(flightID)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p types.TelemetryPacket
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("corrupt packet at %s: %w", k, err)
			}
			packets = append(packets, types.AnnotatedPacket{
				TelemetryPacket: p,
				FlightPhase:     phase.Classify(&p).String(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return packets, nil
}

// DeleteFlight removes flight:<id> and every telem:<id>:* key in a single
// transaction, so concurrent readers see either the whole flight or none of
// it. Deleting an absent flight is not an error.
func (s *Store) DeleteFlight(flightID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if err := b.Delete(flightKey(flightID)); err != nil {
			return err
		}

		c := b.Cursor()
		prefix := telemetryPrefixKey(flightID)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete flight %s: %w", flightID, err)
	}
	return nil
}

// MaxFlightNumber scans flight ids of the form flight_<n> and returns the
// highest n, so the lifecycle tracker can resume its counter across restarts.
func (s *Store) MaxFlightNumber() (int, error) {
	max := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		prefix := []byte(flightPrefix + "flight_")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			numStr := strings.TrimPrefix(string(k), flightPrefix+"flight_")
			if n, err := strconv.Atoi(numStr); err == nil && n > max {
				max = n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}
