// Package lock 提供按资源 key 加锁的能力。
// 账本的正确性由数据库条件更新保证，锁只用来削减同一资源上的并发冲突。
package lock

import (
	"context"
	"sync"
)

// Locker 获取一个资源锁，返回的 unlock 必须调用且只能调用一次
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

type refMutex struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 是进程内的按 key 互斥锁，未启用 ZooKeeper 时使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*refMutex)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, m, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, m, true) }) }, nil
}

func (l *LocalLocker) release(key string, m *refMutex, held bool) {
	if held {
		<-m.ch
	}
	l.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// With 在锁内执行 fn
func With(ctx context.Context, l Locker, key string, fn func() error) error {
	unlock, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
