package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var tasksBucket = []byte("tasks")

// BoltStore keeps one nested bucket per principal under "tasks", keyed by
// task id. Ids are ULIDs, so cursor order is creation order.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	if db == nil {
		return nil, fmt.Errorf("tasks: nil bolt db")
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tasksBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: initializing bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Create(ctx context.Context, t Task) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		owned, err := tx.Bucket(tasksBucket).CreateBucketIfNotExists([]byte(t.PrincipalID))
		if err != nil {
			return err
		}
		return putTask(owned, t)
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *BoltStore) List(ctx context.Context, principalID string) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []Task{}
	err := s.db.View(func(tx *bolt.Tx) error {
		owned := tx.Bucket(tasksBucket).Bucket([]byte(principalID))
		if owned == nil {
			return nil
		}
		return owned.ForEach(func(_, v []byte) error {
			var t Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Get(ctx context.Context, principalID, id string) (Task, error) {
	const op = "tasks.Get"
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return Task{}, err
	}
	var t Task
	err = s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = getTask(tx, op, principalID, id)
		return err
	})
	return t, err
}

func (s *BoltStore) Update(ctx context.Context, t Task) (Task, error) {
	const op = "tasks.Update"
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getTask(tx, op, t.PrincipalID, t.ID); err != nil {
			return err
		}
		return putTask(tx.Bucket(tasksBucket).Bucket([]byte(t.PrincipalID)), t)
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *BoltStore) Delete(ctx context.Context, principalID, id string) error {
	const op = "tasks.Delete"
	if err := ctx.Err(); err != nil {
		return err
	}
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getTask(tx, op, principalID, id); err != nil {
			return err
		}
		return tx.Bucket(tasksBucket).Bucket([]byte(principalID)).Delete([]byte(id))
	})
}

func getTask(tx *bolt.Tx, op, principalID, id string) (Task, error) {
	owned := tx.Bucket(tasksBucket).Bucket([]byte(principalID))
	if owned == nil {
		return Task{}, notFound(op)
	}
	raw := owned.Get([]byte(id))
	if raw == nil {
		return Task{}, notFound(op)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, fmt.Errorf("%s: decoding task: %w", op, err)
	}
	return t, nil
}

func putTask(b *bolt.Bucket, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put([]byte(t.ID), raw)
}
