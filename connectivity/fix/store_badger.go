package fix

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// BadgerStore 是 Store 契约的默认实现：每个会话一个嵌入式 badger 库，键
// 编码 (direction, seq_num) 以支持有序区间扫描，值是带时间戳与 MsgType 前缀
// 的原始线上字节；epoch 记在单独的元数据键中，epoch 变化时整库清空。
// 键形状与 highest_seq 计数器键的设计取自
// Aidin1998-finalex/internal/trading/orderqueue/badger_queue.go 的
// BadgerQueue（格式化定长键 + 单独的计数器）。
type BadgerStore struct {
	db    *badger.DB
	epoch string
}

// NewBadgerStore 在 path 打开（或创建）一个 badger 库作为 Store 后端。
func NewBadgerStore(path string, epoch string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("fix: opening badger store: %w", err)
	}
	s := &BadgerStore{db: db, epoch: epoch}
	if err := s.ensureEpoch(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func epochKey() []byte { return []byte("meta:epoch") }

func highWaterKey(dir Direction) []byte {
	return []byte(fmt.Sprintf("meta:highseq:%s", dir))
}

func msgKey(dir Direction, seqNum uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", dir, seqNum))
}

func seqFromKey(key []byte) (uint64, error) {
	s := string(key)
	idx := len(s) - 20
	if idx < 0 {
		return 0, fmt.Errorf("fix: malformed store key %q", s)
	}
	var seq uint64
	for _, c := range s[idx:] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("fix: malformed store key %q", s)
		}
		seq = seq*10 + uint64(c-'0')
	}
	return seq, nil
}

func (s *BadgerStore) ensureEpoch() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(epochKey())
		if err == badger.ErrKeyNotFound {
			return txn.Set(epochKey(), []byte(s.epoch))
		}
		if err != nil {
			return err
		}
		var stored string
		if err := item.Value(func(v []byte) error {
			stored = string(v)
			return nil
		}); err != nil {
			return err
		}
		if stored != s.epoch {
			return s.resetLocked(txn)
		}
		return nil
	})
}

// Append 实现 Store.Append：幂等写入，已存在的 (direction, seqNum) 直接返回。
func (s *BadgerStore) Append(_ context.Context, msg StoredMessage) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := msgKey(msg.Direction, msg.SeqNum)
		if _, err := txn.Get(key); err == nil {
			return nil // 已存在，幂等返回
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		value := encodeStoredMessage(msg)
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return bumpHighWater(txn, msg.Direction, msg.SeqNum)
	})
}

func bumpHighWater(txn *badger.Txn, dir Direction, seqNum uint64) error {
	current, err := readHighWater(txn, dir)
	if err != nil {
		return err
	}
	if seqNum <= current {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seqNum)
	return txn.Set(highWaterKey(dir), buf)
}

func readHighWater(txn *badger.Txn, dir Direction) (uint64, error) {
	item, err := txn.Get(highWaterKey(dir))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(b []byte) error {
		v = binary.BigEndian.Uint64(b)
		return nil
	})
	return v, err
}

// HighestSeq 实现 Store.HighestSeq：读取维护中的单独计数器键，避免全表扫描。
func (s *BadgerStore) HighestSeq(_ context.Context, dir Direction) (uint64, error) {
	var v uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = readHighWater(txn, dir)
		return err
	})
	return v, err
}

// FetchRange 实现 Store.FetchRange：按序号区间顺序扫描指定方向。
func (s *BadgerStore) FetchRange(_ context.Context, dir Direction, fromInclusive, toInclusive uint64) ([]StoredMessage, error) {
	var out []StoredMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fmt.Sprintf("msg:%s:", dir))
		it := txn.NewIterator(opts)
		defer it.Close()
		start := msgKey(dir, fromInclusive)
		for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			seqNum, err := seqFromKey(item.Key())
			if err != nil {
				return err
			}
			var stored StoredMessage
			if err := item.Value(func(v []byte) error {
				decoded, err := decodeStoredMessage(v)
				if err != nil {
					return err
				}
				stored = decoded
				return nil
			}); err != nil {
				return err
			}
			stored.SeqNum = seqNum
			if stored.SeqNum > toInclusive {
				break
			}
			stored.Direction = dir
			out = append(out, stored)
		}
		return nil
	})
	return out, err
}

// Reset 实现 Store.Reset：epoch 不同则清空全库并记录新 epoch。
func (s *BadgerStore) Reset(_ context.Context, epoch string) error {
	if epoch == s.epoch {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.resetLocked(txn)
	})
	if err != nil {
		return err
	}
	s.epoch = epoch
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(epochKey(), []byte(epoch))
	})
}

func (s *BadgerStore) resetLocked(txn *badger.Txn) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, append([]byte{}, it.Item().Key()...))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Close 实现 Store.Close。
func (s *BadgerStore) Close() error { return s.db.Close() }

// encodeStoredMessage/decodeStoredMessage 是一个最小编码：
// [unixNano int64 大端 8 字节][msgType 长度 1 字节][msgType][raw bytes]。
func encodeStoredMessage(msg StoredMessage) []byte {
	mt := []byte(msg.MsgType)
	buf := make([]byte, 8+1+len(mt)+len(msg.RawBytes))
	binary.BigEndian.PutUint64(buf[0:8], uint64(msg.Timestamp.UnixNano()))
	buf[8] = byte(len(mt))
	copy(buf[9:9+len(mt)], mt)
	copy(buf[9+len(mt):], msg.RawBytes)
	return buf
}

func decodeStoredMessage(v []byte) (StoredMessage, error) {
	if len(v) < 9 {
		return StoredMessage{}, fmt.Errorf("fix: corrupt stored message record")
	}
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(v[0:8])))
	mtLen := int(v[8])
	if len(v) < 9+mtLen {
		return StoredMessage{}, fmt.Errorf("fix: corrupt stored message record")
	}
	mt := MsgType(v[9 : 9+mtLen])
	raw := append([]byte{}, v[9+mtLen:]...)
	return StoredMessage{MsgType: mt, RawBytes: raw, Timestamp: ts}, nil
}
