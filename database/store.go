// database/store.go - Record Store on top of gorm
package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Record is a document addressable by collection and key.
type Record interface {
	TableName() string
	RecordID() string
}

// Store is the document-store contract the services run against. Every
// method is a single atomic write or read of one record unless it says
// otherwise; nothing spanning two keys is atomic outside Transaction.
type Store interface {
	Get(ctx context.Context, id string, dst Record) error
	Query(ctx context.Context, dst any, q Query) error
	Count(ctx context.Context, model Record, filters ...Filter) (int64, error)

	// Set inserts rec or overwrites every column of the existing record.
	Set(ctx context.Context, rec Record) error
	// Create inserts rec and fails with ErrDuplicate if the key exists.
	Create(ctx context.Context, rec Record) error
	// CreateIfAbsent inserts rec unless the key exists, reporting whether it
	// inserted. A conflict does not abort an enclosing transaction.
	CreateIfAbsent(ctx context.Context, rec Record) (bool, error)
	// Update writes the named columns of rec.
	Update(ctx context.Context, rec Record, columns ...string) error
	// UpdateIf writes the named columns only when every condition holds on
	// the stored record, reporting whether the write applied.
	UpdateIf(ctx context.Context, rec Record, conds []Filter, columns ...string) (bool, error)
	// Increment atomically adds delta to a numeric column and reloads model.
	Increment(ctx context.Context, model Record, id, column string, delta any) error
	Delete(ctx context.Context, model Record, id string) error
	DeleteWhere(ctx context.Context, model Record, filters ...Filter) (int64, error)

	Transaction(ctx context.Context, fn func(tx Store) error) error
	OnChange(collection string, fn func(Change)) *Subscription
}

// GormStore implements Store with gorm. Changes are published to the feed
// after the write (or its enclosing transaction) commits.
type GormStore struct {
	db      *gorm.DB
	feed    *Feed
	pending *[]Change
}

func NewStore(db *gorm.DB, feed *Feed) *GormStore {
	if feed == nil {
		feed = NewFeed()
	}
	return &GormStore{db: db, feed: feed}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Feed() *Feed {
	return s.feed
}

func (s *GormStore) publish(ch Change) {
	if s.pending != nil {
		*s.pending = append(*s.pending, ch)
		return
	}
	s.feed.Publish(ch)
}

func (s *GormStore) Get(ctx context.Context, id string, dst Record) error {
	reset(dst)
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", dst.TableName(), id, ErrNotFound)
	}
	return err
}

func (s *GormStore) Query(ctx context.Context, dst any, q Query) error {
	tx, err := applyFilters(s.db.WithContext(ctx), q.Filters)
	if err != nil {
		return err
	}
	if q.OrderBy != "" {
		if !orderPattern.MatchString(q.OrderBy) {
			return fmt.Errorf("invalid order clause %q", q.OrderBy)
		}
		tx = tx.Order(q.OrderBy)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx.Find(dst).Error
}

func (s *GormStore) Count(ctx context.Context, model Record, filters ...Filter) (int64, error) {
	tx, err := applyFilters(s.db.WithContext(ctx).Model(model), filters)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.Count(&n).Error
	return n, err
}

func (s *GormStore) Set(ctx context.Context, rec Record) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return err
	}
	s.publish(Change{Collection: rec.TableName(), Key: rec.RecordID(), Kind: ChangeSet, Record: rec})
	return nil
}

func (s *GormStore) Create(ctx context.Context, rec Record) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%s %s: %w", rec.TableName(), rec.RecordID(), ErrDuplicate)
		}
		return err
	}
	s.publish(Change{Collection: rec.TableName(), Key: rec.RecordID(), Kind: ChangeSet, Record: rec})
	return nil
}

func (s *GormStore) CreateIfAbsent(ctx context.Context, rec Record) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	s.publish(Change{Collection: rec.TableName(), Key: rec.RecordID(), Kind: ChangeSet, Record: rec})
	return true, nil
}

func (s *GormStore) Update(ctx context.Context, rec Record, columns ...string) error {
	ok, err := s.UpdateIf(ctx, rec, nil, columns...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", rec.TableName(), rec.RecordID(), ErrNotFound)
	}
	return nil
}

func (s *GormStore) UpdateIf(ctx context.Context, rec Record, conds []Filter, columns ...string) (bool, error) {
	if len(columns) == 0 {
		return false, errors.New("update requires at least one column")
	}

	tx := s.db.WithContext(ctx).Model(rec).Where("id = ?", rec.RecordID())
	tx, err := applyFilters(tx, conds)
	if err != nil {
		return false, err
	}

	result := tx.Select(columns).Updates(rec)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	s.publish(Change{Collection: rec.TableName(), Key: rec.RecordID(), Kind: ChangeUpdate, Record: rec})
	return true, nil
}

func (s *GormStore) Increment(ctx context.Context, model Record, id, column string, delta any) error {
	if !columnPattern.MatchString(column) {
		return fmt.Errorf("invalid increment column %q", column)
	}

	db := s.db.WithContext(ctx)
	result := db.Model(model).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", model.TableName(), id, ErrNotFound)
	}

	reset(model)
	if err := db.Where("id = ?", id).Take(model).Error; err != nil {
		return err
	}
	s.publish(Change{Collection: model.TableName(), Key: id, Kind: ChangeUpdate, Record: model})
	return nil
}

func (s *GormStore) Delete(ctx context.Context, model Record, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", model.TableName(), id, ErrNotFound)
	}
	s.publish(Change{Collection: model.TableName(), Key: id, Kind: ChangeDelete})
	return nil
}

func (s *GormStore) DeleteWhere(ctx context.Context, model Record, filters ...Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, errors.New("delete requires at least one filter")
	}

	tx, err := applyFilters(s.db.WithContext(ctx).Model(model), filters)
	if err != nil {
		return 0, err
	}
	var ids []string
	if err := tx.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// A fresh instance keeps gorm from adding model's own key to the WHERE.
	empty := reflect.New(reflect.TypeOf(model).Elem()).Interface()
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(empty)
	if result.Error != nil {
		return 0, result.Error
	}
	for _, id := range ids {
		s.publish(Change{Collection: model.TableName(), Key: id, Kind: ChangeDelete})
	}
	return result.RowsAffected, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	var pending []Change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, feed: s.feed, pending: &pending})
	})
	if err != nil {
		return err
	}

	for _, ch := range pending {
		s.publish(ch)
	}
	return nil
}

func (s *GormStore) OnChange(collection string, fn func(Change)) *Subscription {
	return s.feed.Subscribe(collection, fn)
}

// reset zeroes the record a read scans into, so a key left over from an
// earlier read is not added to the WHERE clause.
func reset(dst any) {
	v := reflect.ValueOf(dst)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
