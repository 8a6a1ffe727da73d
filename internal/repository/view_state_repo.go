package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/redis"
)

// ViewStateRepository 每个浏览器会话的视图状态存储
//
// 加载序号独立于视图状态保存：每次加载先取得新序号，
// 完成时若序号已不是最新，说明期间发起了更新的加载，结果应丢弃。
type ViewStateRepository interface {
	// Get 读取视图状态；不存在时返回空状态
	Get(ctx context.Context, sessionID string) (*model.ViewState, error)
	Save(ctx context.Context, sessionID string, state *model.ViewState) error
	// NextLoadSeq 分配新的加载序号
	NextLoadSeq(ctx context.Context, sessionID string) (int64, error)
	// LatestLoadSeq 最近分配的加载序号
	LatestLoadSeq(ctx context.Context, sessionID string) (int64, error)
}

// kvStore redis.Client 中视图状态用到的子集
type kvStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetInt64(ctx context.Context, key string) (int64, error)
}

const (
	viewStatePrefix     = "attendance:view:"
	defaultViewStateTTL = 7 * 24 * time.Hour
)

type redisViewStateRepo struct {
	kv  kvStore
	ttl time.Duration
}

// NewRedisViewStateRepo 创建基于 Redis 的视图状态存储
func NewRedisViewStateRepo(client *redis.Client, ttl time.Duration) ViewStateRepository {
	return newKVViewStateRepo(client, ttl)
}

func newKVViewStateRepo(kv kvStore, ttl time.Duration) *redisViewStateRepo {
	if ttl <= 0 {
		ttl = defaultViewStateTTL
	}
	return &redisViewStateRepo{kv: kv, ttl: ttl}
}

func (r *redisViewStateRepo) Get(ctx context.Context, sessionID string) (*model.ViewState, error) {
	raw, err := r.kv.GetBytes(ctx, viewStatePrefix+sessionID)
	if errors.Is(err, redis.ErrNil) {
		return &model.ViewState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取视图状态失败: %w", err)
	}
	var state model.ViewState
	if err := json.Unmarshal(raw, &state); err != nil {
		// 损坏的状态按新会话处理
		return &model.ViewState{}, nil
	}
	return &state, nil
}

func (r *redisViewStateRepo) Save(ctx context.Context, sessionID string, state *model.ViewState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.kv.SetBytes(ctx, viewStatePrefix+sessionID, raw, r.ttl); err != nil {
		return fmt.Errorf("保存视图状态失败: %w", err)
	}
	return nil
}

func (r *redisViewStateRepo) NextLoadSeq(ctx context.Context, sessionID string) (int64, error) {
	return r.kv.Incr(ctx, viewStatePrefix+sessionID+":seq", r.ttl)
}

func (r *redisViewStateRepo) LatestLoadSeq(ctx context.Context, sessionID string) (int64, error) {
	return r.kv.GetInt64(ctx, viewStatePrefix+sessionID+":seq")
}

// memoryViewStateRepo Redis 不可用时的进程内降级实现
// 条目在最后一次访问 ttl 之后过期，过期条目定期清理
type memoryViewStateRepo struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

type memoryEntry struct {
	state   model.ViewState
	seq     int64
	expires time.Time
}

// memorySweepInterval 过期条目的清理间隔
const memorySweepInterval = time.Minute

// NewMemoryViewStateRepo 创建进程内视图状态存储
func NewMemoryViewStateRepo(ttl time.Duration) ViewStateRepository {
	return newMemoryViewStateRepo(ttl, time.Now)
}

func newMemoryViewStateRepo(ttl time.Duration, now func() time.Time) *memoryViewStateRepo {
	if ttl <= 0 {
		ttl = defaultViewStateTTL
	}
	return &memoryViewStateRepo{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

// entry 返回未过期的条目并续期；create 为 false 且不存在时返回 nil
// 调用方须持有锁
func (r *memoryViewStateRepo) entry(sessionID string, create bool) *memoryEntry {
	now := r.now()
	r.sweep(now)

	e, ok := r.entries[sessionID]
	if ok && now.After(e.expires) {
		delete(r.entries, sessionID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memoryEntry{}
		r.entries[sessionID] = e
	}
	e.expires = now.Add(r.ttl)
	return e
}

func (r *memoryViewStateRepo) sweep(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	for sid, e := range r.entries {
		if now.After(e.expires) {
			delete(r.entries, sid)
		}
	}
	r.nextSweep = now.Add(memorySweepInterval)
}

func (r *memoryViewStateRepo) Get(_ context.Context, sessionID string) (*model.ViewState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entry(sessionID, false); e != nil {
		st := e.state
		return &st, nil
	}
	return &model.ViewState{}, nil
}

func (r *memoryViewStateRepo) Save(_ context.Context, sessionID string, state *model.ViewState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(sessionID, true).state = *state
	return nil
}

func (r *memoryViewStateRepo) NextLoadSeq(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(sessionID, true)
	e.seq++
	return e.seq, nil
}

func (r *memoryViewStateRepo) LatestLoadSeq(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entry(sessionID, false); e != nil {
		return e.seq, nil
	}
	return 0, nil
}
