// Package peerstore 记录对端的已知地址
//
// 地址带过期时间，底层用 BadgerDB 保存；未指定数据目录时使用
// Badger 内存模式，重启后即丢失。
package peerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("peerstore")

// 地址 TTL
const (
	// ConnectedAddrTTL 曾成功连接的地址
	ConnectedAddrTTL = 30 * time.Minute

	// DiscoveredAddrTTL 发现层给出的地址
	DiscoveredAddrTTL = 10 * time.Minute
)

var keyPrefix = []byte("addr/")

// ErrClosed 已关闭
var ErrClosed = errors.New("peerstore: closed")

type record struct {
	Addr   string `json:"addr"`
	Expiry int64  `json:"expiry"` // unix 纳秒
}

// Store 地址簿
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	clock  clock.Clock
	addrs  map[types.PeerID]map[string]time.Time
	closed bool
}

// Open 打开地址簿。dir 为空时使用内存模式
func Open(dir string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{}).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("peerstore: open %q: %w", dir, err)
	}
	s := &Store{db: db, clock: clk, addrs: make(map[types.PeerID]map[string]time.Time)}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	now := s.clock.Now()
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id, err := types.PeerIDFromBytes(item.Key()[len(keyPrefix):])
			if err != nil {
				continue
			}
			var recs []record
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &recs) }); err != nil {
				log.Debug("跳过损坏的地址记录", "peer", id.ShortString(), "err", err)
				continue
			}
			for _, r := range recs {
				exp := time.Unix(0, r.Expiry)
				if exp.After(now) {
					s.set(id, r.Addr, exp)
				}
			}
		}
		return nil
	})
}

func (s *Store) set(id types.PeerID, addr string, exp time.Time) {
	m, ok := s.addrs[id]
	if !ok {
		m = make(map[string]time.Time)
		s.addrs[id] = m
	}
	if cur, ok := m[addr]; !ok || exp.After(cur) {
		m[addr] = exp
	}
}

// AddAddrs 记录地址；已有地址只会延长有效期
func (s *Store) AddAddrs(id types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) error {
	if id.IsEmpty() || len(addrs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	exp := s.clock.Now().Add(ttl)
	for _, a := range addrs {
		s.set(id, a.String(), exp)
	}
	return s.persist(id)
}

// Addrs 未过期的地址
func (s *Store) Addrs(id types.PeerID) []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock.Now()
	var out []ma.Multiaddr
	for a, exp := range s.addrs[id] {
		if !exp.After(now) {
			continue
		}
		if m, err := ma.NewMultiaddr(a); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Peers 至少有一个未过期地址的节点
func (s *Store) Peers() []types.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock.Now()
	var out []types.PeerID
	for id, m := range s.addrs {
		for _, exp := range m {
			if exp.After(now) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// RemovePeer 删除节点的全部地址
func (s *Store) RemovePeer(id types.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.addrs, id)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(id))
	})
}

// GC 清理过期地址
func (s *Store) GC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.clock.Now()
	for id, m := range s.addrs {
		changed := false
		for a, exp := range m {
			if !exp.After(now) {
				delete(m, a)
				changed = true
			}
		}
		if changed {
			if err := s.persist(id); err != nil {
				log.Debug("地址簿写入失败", "peer", id.ShortString(), "err", err)
			}
		}
		if len(m) == 0 {
			delete(s.addrs, id)
		}
	}
}

// persist 调用方持有写锁
func (s *Store) persist(id types.PeerID) error {
	m := s.addrs[id]
	if len(m) == 0 {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(storeKey(id))
		})
	}
	recs := make([]record, 0, len(m))
	for a, exp := range m {
		recs = append(recs, record{Addr: a, Expiry: exp.UnixNano()})
	}
	v, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(id), v)
	})
}

// Close 关闭数据库，重复调用无副作用
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func storeKey(id types.PeerID) []byte {
	return append(append([]byte(nil), keyPrefix...), id...)
}

// badgerLogger 把 badger 日志转给 slog，Info 以下降级为 Debug
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...interface{}) {
	log.Error(fmt.Sprintf(f, args...))
}

func (badgerLogger) Warningf(f string, args ...interface{}) {
	log.Warn(fmt.Sprintf(f, args...))
}

func (badgerLogger) Infof(f string, args ...interface{}) {
	log.Debug(fmt.Sprintf(f, args...))
}

func (badgerLogger) Debugf(f string, args ...interface{}) {
	log.Debug(fmt.Sprintf(f, args...))
}
