// Package repotest はテスト用のインメモリリポジトリを提供する。
//
// EntriesとTagsは同じ状態を共有し、記事の削除で関連付けが消える挙動など
// PostgreSQLのスキーマが持つ制約を再現する。
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
)

// ErrInjected はテストで注入する失敗を表す。
var ErrInjected = errors.New("injected failure")

type link struct {
	entryID int64
	tagID   int64
}

// Store は記事とタグのインメモリ状態を保持する。
type Store struct {
	mu          sync.Mutex
	entries     map[int64]*model.Entry
	tags        map[int64]*model.Tag
	links       map[link]struct{}
	nextEntryID int64
	nextTagID   int64

	// 以下はテスト用の失敗注入フラグ
	FailInsert      bool
	FailDelete      bool
	FailFind        bool
	FailUpdate      bool
	FailReassign    bool
	FailTagDelete   bool
	FailInsertAfter int // 0より大きい場合、この件数の挿入後に失敗する

	inserts int
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		entries: make(map[int64]*model.Entry),
		tags:    make(map[int64]*model.Tag),
		links:   make(map[link]struct{}),
	}
}

// Entries はEntryRepositoryとしてのビューを返す。
func (s *Store) Entries() *EntryRepo { return &EntryRepo{s: s} }

// Tags はTagRepositoryとしてのビューを返す。
func (s *Store) Tags() *TagRepo { return &TagRepo{s: s} }

// Entry は記事のコピーを返す。存在しない場合はnilを返す。
func (s *Store) Entry(id int64) *model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// EntriesByOwner はユーザーの記事のコピーをID昇順で返す。
func (s *Store) EntriesByOwner(ownerID string) []*model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ownerID, func(*model.Entry) bool { return true }, 0)
}

// TagValues は記事に付いているタグの値をID昇順で返す。
func (s *Store) TagValues(entryID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var values []string
	for _, t := range s.tagsForLocked(entryID) {
		values = append(values, t.Value)
	}
	return values
}

// TagCount は存在するタグの数を返す。
func (s *Store) TagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

// SeedTag は関連付けの無いタグを直接作成する。
func (s *Store) SeedTag(value string) *model.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTagLocked(value)
}

func (s *Store) listLocked(ownerID string, keep func(*model.Entry) bool, limit int) []*model.Entry {
	ids := make([]int64, 0, len(s.entries))
	for id, e := range s.entries {
		if e.OwnerID == ownerID && keep(e) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*model.Entry, 0, len(ids))
	for _, id := range ids {
		cp := *s.entries[id]
		out = append(out, &cp)
	}
	return out
}

func (s *Store) tagsForLocked(entryID int64) []*model.Tag {
	var out []*model.Tag
	for l := range s.links {
		if l.entryID == entryID {
			cp := *s.tags[l.tagID]
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) createTagLocked(value string) *model.Tag {
	for _, t := range s.tags {
		if t.Value == value {
			cp := *t
			return &cp
		}
	}
	s.nextTagID++
	t := &model.Tag{ID: s.nextTagID, Value: value}
	s.tags[t.ID] = t
	cp := *t
	return &cp
}

// EntryRepo はStoreをrepository.EntryRepositoryとして扱う。
type EntryRepo struct{ s *Store }

func (r *EntryRepo) Insert(_ context.Context, entry *model.Entry) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert || (s.FailInsertAfter > 0 && s.inserts >= s.FailInsertAfter) {
		return 0, ErrInjected
	}
	s.inserts++
	s.nextEntryID++
	now := time.Now()
	cp := *entry
	cp.ID = s.nextEntryID
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.entries[cp.ID] = &cp
	entry.ID, entry.CreatedAt, entry.UpdatedAt = cp.ID, now, now
	return cp.ID, nil
}

func (r *EntryRepo) FindByID(_ context.Context, id int64, ownerID string) (*model.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, ErrInjected
	}
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *EntryRepo) FindByURL(_ context.Context, ownerID, url string) (*model.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, ErrInjected
	}
	matches := s.listLocked(ownerID, func(e *model.Entry) bool { return e.URL == url }, 0)
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[len(matches)-1], nil
}

func (r *EntryRepo) Delete(_ context.Context, id int64, ownerID string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete {
		return false, ErrInjected
	}
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return false, nil
	}
	delete(s.entries, id)
	for l := range s.links {
		if l.entryID == id {
			delete(s.links, l)
		}
	}
	return true, nil
}

func (r *EntryRepo) SetFavorite(_ context.Context, id int64, ownerID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate {
		return ErrInjected
	}
	if e, ok := s.entries[id]; ok && e.OwnerID == ownerID {
		e.IsFavorite = true
	}
	return nil
}

func (r *EntryRepo) ToggleFavorite(_ context.Context, id int64, ownerID string) (*model.Entry, error) {
	return r.toggle(id, ownerID, func(e *model.Entry) { e.IsFavorite = !e.IsFavorite })
}

func (r *EntryRepo) ToggleArchive(_ context.Context, id int64, ownerID string) (*model.Entry, error) {
	return r.toggle(id, ownerID, func(e *model.Entry) { e.IsRead = !e.IsRead })
}

func (r *EntryRepo) toggle(id int64, ownerID string, flip func(*model.Entry)) (*model.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate {
		return nil, ErrInjected
	}
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return nil, nil
	}
	flip(e)
	cp := *e
	return &cp, nil
}

func (r *EntryRepo) ArchiveAll(_ context.Context, ownerID string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate {
		return 0, ErrInjected
	}
	var n int64
	for _, e := range s.entries {
		if e.OwnerID == ownerID && !e.IsRead {
			e.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *EntryRepo) CountPendingContent(_ context.Context, ownerID string) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return 0, ErrInjected
	}
	return len(s.listLocked(ownerID, (*model.Entry).ContentPending, 0)), nil
}

func (r *EntryRepo) ListPendingContent(_ context.Context, ownerID string, limit int) ([]*model.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, ErrInjected
	}
	return s.listLocked(ownerID, (*model.Entry).ContentPending, limit), nil
}

func (r *EntryRepo) UpdateContent(_ context.Context, id int64, ownerID, title, content string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate {
		return ErrInjected
	}
	if e, ok := s.entries[id]; ok && e.OwnerID == ownerID {
		e.Title = title
		e.Content = content
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (r *EntryRepo) Search(_ context.Context, ownerID, term string) ([]int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, ErrInjected
	}
	needle := strings.ToLower(term)
	matches := s.listLocked(ownerID, func(e *model.Entry) bool {
		return strings.Contains(strings.ToLower(e.Title), needle) ||
			strings.Contains(strings.ToLower(e.Content), needle)
	}, 0)
	ids := make([]int64, 0, len(matches))
	for _, e := range matches {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *EntryRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, ErrInjected
	}
	return s.listLocked(ownerID, func(*model.Entry) bool { return true }, 0), nil
}

// TagRepo はStoreをrepository.TagRepositoryとして扱う。
type TagRepo struct{ s *Store }

func (r *TagRepo) FindByValue(_ context.Context, value string) (*model.Tag, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.Value == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TagRepo) Create(_ context.Context, value string) (*model.Tag, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTagLocked(value), nil
}

func (r *TagRepo) Link(_ context.Context, tagID, entryID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryID]; !ok {
		return errors.New("entry does not exist")
	}
	if _, ok := s.tags[tagID]; !ok {
		return errors.New("tag does not exist")
	}
	s.links[link{entryID: entryID, tagID: tagID}] = struct{}{}
	return nil
}

func (r *TagRepo) Unlink(_ context.Context, entryID, tagID int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l := link{entryID: entryID, tagID: tagID}
	if _, ok := s.links[l]; !ok {
		return false, nil
	}
	delete(s.links, l)
	return true, nil
}

func (r *TagRepo) CountLinks(_ context.Context, tagID int64) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLinksLocked(tagID), nil
}

func (s *Store) countLinksLocked(tagID int64) int {
	n := 0
	for l := range s.links {
		if l.tagID == tagID {
			n++
		}
	}
	return n
}

func (r *TagRepo) Delete(_ context.Context, tagID int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTagDelete {
		return false, ErrInjected
	}
	if _, ok := s.tags[tagID]; !ok || s.countLinksLocked(tagID) > 0 {
		return false, nil
	}
	delete(s.tags, tagID)
	return true, nil
}

func (r *TagRepo) ListForEntry(_ context.Context, entryID int64) ([]*model.Tag, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tagsForLocked(entryID), nil
}

func (r *TagRepo) ReassignTags(_ context.Context, fromEntryID, toEntryID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReassign {
		return ErrInjected
	}
	for l := range s.links {
		if l.entryID != fromEntryID {
			continue
		}
		moved := link{entryID: toEntryID, tagID: l.tagID}
		if _, exists := s.links[moved]; exists {
			continue
		}
		delete(s.links, l)
		s.links[moved] = struct{}{}
	}
	return nil
}

func (r *TagRepo) DeleteOrphans(_ context.Context) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id := range s.tags {
		if s.countLinksLocked(id) == 0 {
			delete(s.tags, id)
			n++
		}
	}
	return n, nil
}

var (
	_ repository.EntryRepository = (*EntryRepo)(nil)
	_ repository.TagRepository   = (*TagRepo)(nil)
)
