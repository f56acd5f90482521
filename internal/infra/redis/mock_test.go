package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
)

type mockRedisClient struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	deleted []string

	GetFunc func(ctx context.Context, key string) (string, error)
}

func newMockRedis() *mockRedisClient {
	return &mockRedisClient{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.expires[key] = expiration
	return nil
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = expiration
	return nil
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *mockRedisClient) Close() error { return nil }

type mockJobRepo struct {
	jobs      map[string]*model.AnalysisJob
	findCalls int
}

func (m *mockJobRepo) Save(ctx context.Context, job *model.AnalysisJob) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	m.findCalls++
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	return nil, domain.ErrNotFound
}

func (m *mockJobRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (m *mockJobRepo) ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	return nil, nil
}
