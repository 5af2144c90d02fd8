package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"storefront/internal/pkg/logger"
)

const lockRoot = "/storefront_locks" // 所有分布式锁的根节点

// zkConn 是 *zk.Conn 中加锁用到的部分
type zkConn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
}

// ZKLocker 基于临时顺序节点实现公平的分布式锁
type ZKLocker struct {
	conn zkConn
}

// DialZooKeeper 连接 ZooKeeper 集群。servers 形如 "zk1:2181,zk2:2181"。
func DialZooKeeper(servers string, sessionTimeout time.Duration) (*ZKLocker, func(), error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	conn, _, err := zk.Connect(list, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, nil, fmt.Errorf("connect zookeeper: %w", err)
	}
	l, err := NewZKLocker(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.L().Info().Strs("servers", list).Msg("✅ Successfully connected to ZooKeeper.")
	return l, conn.Close, nil
}

func NewZKLocker(conn zkConn) (*ZKLocker, error) {
	if err := ensureNode(conn, lockRoot); err != nil {
		return nil, fmt.Errorf("failed to create lock root node: %w", err)
	}
	return &ZKLocker{conn: conn}, nil
}

func ensureNode(conn zkConn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return err
	}
	return nil
}

// Acquire 在 /storefront_locks/<key>/ 下创建临时顺序节点，编号最小者持有锁
func (l *ZKLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockPath := lockRoot + "/" + key
	if err := ensureNode(l.conn, lockPath); err != nil {
		return nil, fmt.Errorf("failed to create lock path node %s: %w", lockPath, err)
	}

	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}
	unlock := func() {
		if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			logger.L().Error().Err(err).Str("node", nodePath).Msg("failed to delete lock node")
		}
	}
	myNode := strings.TrimPrefix(nodePath, lockPath+"/")

	for {
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("failed to get children nodes: %w", err)
		}
		// 受保护节点带有 _c_<guid>- 前缀，按序号排序
		sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNode {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			unlock()
			return nil, errors.New("lock node disappeared, session probably expired")
		case idx == 0:
			return unlock, nil
		}

		// 只监听前一个节点，避免惊群
		exists, _, events, err := l.conn.ExistsW(lockPath + "/" + children[idx-1])
		if err != nil {
			unlock()
			return nil, fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}
}

func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}
