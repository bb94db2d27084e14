// Package raftstore is a Raft-replicated, BoltDB-persisted JobModel
// implementation for deployments that run the allocator/coordinator
// control plane across a manager quorum and need the job model's
// container-to-host mapping to survive a manager failover. It is an
// optional default implementation of the external job-model collaborator;
// the allocator/coordinator core itself still implements neither leader
// election nor state-store replication — those apply to this reference
// adapter, not to the core.
package raftstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	bolt "go.etcd.io/bbolt"
)

var bucketHosts = []byte("last_known_hosts")
var bucketContainers = []byte("containers")
var keyContainers = []byte("all")

// boltView is the locally-persisted, Raft-applied view of the job model.
// Every mutation flows through the Raft FSM; reads go straight to BoltDB
// since a committed log entry has already been applied by the time a
// caller can observe it.
type boltView struct {
	mu sync.RWMutex
	db *bolt.DB
}

func newBoltView(path string) (*boltView, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("raftstore: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHosts); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketContainers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("raftstore: create buckets: %w", err)
	}
	return &boltView{db: db}, nil
}

func (v *boltView) close() error {
	return v.db.Close()
}

func (v *boltView) setContainers(ids []clustertypes.ProcessorId) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return v.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Put(keyContainers, data)
	})
}

func (v *boltView) containers() ([]clustertypes.ProcessorId, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var ids []clustertypes.ProcessorId
	err := v.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContainers).Get(keyContainers)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ids)
	})
	return ids, err
}

func (v *boltView) setHost(id clustertypes.ProcessorId, host clustertypes.Host) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).Put([]byte(id), []byte(host))
	})
}

func (v *boltView) host(id clustertypes.ProcessorId) clustertypes.Host {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var host clustertypes.Host
	_ = v.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketHosts).Get([]byte(id)); data != nil {
			host = clustertypes.Host(data)
		}
		return nil
	})
	return host
}

// snapshot returns every (id, host) pair currently recorded, for Raft
// snapshotting.
func (v *boltView) snapshot() (map[clustertypes.ProcessorId]clustertypes.Host, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[clustertypes.ProcessorId]clustertypes.Host)
	err := v.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(k, val []byte) error {
			out[clustertypes.ProcessorId(k)] = clustertypes.Host(val)
			return nil
		})
	})
	return out, err
}

// restore replaces the host index wholesale from a snapshot.
func (v *boltView) restore(hosts map[clustertypes.ProcessorId]clustertypes.Host) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketHosts); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketHosts)
		if err != nil {
			return err
		}
		for id, host := range hosts {
			if err := b.Put([]byte(id), []byte(host)); err != nil {
				return err
			}
		}
		return nil
	})
}
