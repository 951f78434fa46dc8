package fix

import (
	"context"
	"time"

	"github.com/wyfcoding/pkg/breaker"
	"github.com/wyfcoding/pkg/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqlStoredMessage 镜像原始 Rust 实现的 actor-store 表结构
// (original_source/forgefix/src/fix/store.rs: incoming_messages /
// outgoing_messages / sequences，均以 epoch_guid 分区)。
type sqlStoredMessage struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	EpochGUID  string `gorm:"index:idx_epoch_dir_seq,priority:1"`
	Direction  string `gorm:"index:idx_epoch_dir_seq,priority:2"`
	MsgSeqNum  uint64 `gorm:"index:idx_epoch_dir_seq,priority:3"`
	MsgType    string
	SendTime   time.Time
	Message    []byte
}

func (sqlStoredMessage) TableName() string { return "fix_messages" }

type sqlSequenceRow struct {
	EpochGUID    string `gorm:"primaryKey"`
	NextIncoming uint64
	NextOutgoing uint64
}

func (sqlSequenceRow) TableName() string { return "fix_sequences" }

// SQLStore 是 Store 的 gorm/SQLite 实现，是 badger 之外的可选后端，通过
// EngineConfig.Store.Kind=sql 选用。和 badger 不同，这是对独立进程/
// 文件锁定层的调用，因此 Append 包一层 breaker.Breaker（与教师仓库
// database/database.go 的 DB.Transaction 完全一致的做法）；FetchRange、
// HighestSeq 与 Reset 不经过熔断器。
type SQLStore struct {
	db      *gorm.DB
	breaker *breaker.Breaker
	epoch   string
}

// NewSQLStore 打开（或创建）dsn 指向的 SQLite 文件作为 Store 后端。
func NewSQLStore(dsn string, epoch string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, newEngineError(ErrKindIoError, "opening sqlite store", err)
	}
	if err := db.AutoMigrate(&sqlStoredMessage{}, &sqlSequenceRow{}); err != nil {
		return nil, newEngineError(ErrKindIoError, "migrating sqlite store schema", err)
	}
	s := &SQLStore{
		db: db,
		breaker: breaker.NewBreaker(breaker.Settings{
			Name: "fix-sql-store",
			Config: config.CircuitBreakerConfig{
				Enabled:     true,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		}, nil),
		epoch: epoch,
	}
	if err := s.ensureEpochRow(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureEpochRow() error {
	row := sqlSequenceRow{EpochGUID: s.epoch, NextIncoming: 1, NextOutgoing: 1}
	return s.db.Where(sqlSequenceRow{EpochGUID: s.epoch}).FirstOrCreate(&row).Error
}

// Append 实现 Store.Append：幂等写入，breaker 包裹的 SQL 事务。
func (s *SQLStore) Append(ctx context.Context, msg StoredMessage) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing sqlStoredMessage
			err := tx.Where("epoch_guid = ? AND direction = ? AND msg_seq_num = ?", s.epoch, msg.Direction.String(), msg.SeqNum).
				First(&existing).Error
			if err == nil {
				return nil // 已存在，幂等
			}
			if err != gorm.ErrRecordNotFound {
				return err
			}
			row := sqlStoredMessage{
				EpochGUID: s.epoch,
				Direction: msg.Direction.String(),
				MsgSeqNum: msg.SeqNum,
				MsgType:   string(msg.MsgType),
				SendTime:  msg.Timestamp,
				Message:   msg.RawBytes,
			}
			return tx.Create(&row).Error
		})
	})
	return err
}

// FetchRange 实现 Store.FetchRange。
func (s *SQLStore) FetchRange(ctx context.Context, dir Direction, fromInclusive, toInclusive uint64) ([]StoredMessage, error) {
	var rows []sqlStoredMessage
	err := s.db.WithContext(ctx).
		Where("epoch_guid = ? AND direction = ? AND msg_seq_num BETWEEN ? AND ?", s.epoch, dir.String(), fromInclusive, toInclusive).
		Order("msg_seq_num ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]StoredMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, StoredMessage{
			Direction: dir,
			SeqNum:    r.MsgSeqNum,
			MsgType:   MsgType(r.MsgType),
			RawBytes:  r.Message,
			Timestamp: r.SendTime,
		})
	}
	return out, nil
}

// HighestSeq 实现 Store.HighestSeq.
func (s *SQLStore) HighestSeq(ctx context.Context, dir Direction) (uint64, error) {
	var max uint64
	err := s.db.WithContext(ctx).Model(&sqlStoredMessage{}).
		Where("epoch_guid = ? AND direction = ?", s.epoch, dir.String()).
		Select("COALESCE(MAX(msg_seq_num), 0)").Scan(&max).Error
	return max, err
}

// Reset 实现 Store.Reset.
func (s *SQLStore) Reset(ctx context.Context, epoch string) error {
	if epoch == s.epoch {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&sqlStoredMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&sqlSequenceRow{}).Error
	})
	if err != nil {
		return err
	}
	s.epoch = epoch
	return s.ensureEpochRow()
}

// Close 实现 Store.Close.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
