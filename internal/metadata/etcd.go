package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/soltixdb/forecaster/internal/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// maxUpdateRetries bounds optimistic-concurrency retries.
const maxUpdateRetries = 10

// errConflict signals that a job changed between read and write.
var errConflict = errors.New("concurrent job update")

// EtcdStore keeps jobs as JSON values under <prefix>/jobs/<id>.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdStore connects to etcd.
func NewEtcdStore(cfg config.EtcdConfig, prefix string) (*EtcdStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return NewEtcdStoreWithClient(client, prefix), nil
}

// NewEtcdStoreWithClient wraps an existing client.
func NewEtcdStoreWithClient(client *clientv3.Client, prefix string) *EtcdStore {
	if prefix == "" {
		prefix = "/forecaster"
	}
	return &EtcdStore{client: client, prefix: path.Join(prefix, "jobs")}
}

func (s *EtcdStore) key(id string) string {
	return path.Join(s.prefix, id)
}

func (s *EtcdStore) Create(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := s.key(job.ID)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to store job in etcd: %w", err)
	}
	if !resp.Succeeded {
		return ErrJobExists
	}
	return nil
}

func (s *EtcdStore) Get(ctx context.Context, id string) (*Job, error) {
	job, _, err := s.get(ctx, id)
	return job, err
}

func (s *EtcdStore) get(ctx context.Context, id string) (*Job, int64, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get job from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, ErrJobNotFound
	}

	var job Job
	if err := json.Unmarshal(resp.Kvs[0].Value, &job); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, resp.Kvs[0].ModRevision, nil
}

func (s *EtcdStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	resp, err := s.client.Get(ctx, s.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}

	jobs := make([]*Job, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var job Job
		if err := json.Unmarshal(kv.Value, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	sortNewestFirst(jobs)
	return page(jobs, limit, offset), nil
}

// Update applies fn and writes back only if the key was not modified in
// between, retrying on conflict.
func (s *EtcdStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		job, rev, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return nil, err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}

		key := s.key(id)
		resp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, string(data))).
			Commit()
		if err != nil {
			return nil, fmt.Errorf("failed to update job in etcd: %w", err)
		}
		if resp.Succeeded {
			return job, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errConflict, id)
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
