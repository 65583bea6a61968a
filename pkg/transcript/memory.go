package transcript

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"botpipe/pkg/models"
	"botpipe/pkg/utils"
)

// convLog holds one conversation's records under its own lock, so appends
// for different conversations never block one another.
type convLog struct {
	mu      sync.Mutex
	records []*models.Activity
}

// MemoryStore is the in-memory reference implementation of Store, keyed
// by (channel, conversation). It is safe for concurrent use from
// independent turns.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]map[string]*convLog
}

// NewMemoryStore returns an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]map[string]*convLog)}
}

func (s *MemoryStore) conv(channelID, conversation string) *convLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.logs[channelID]
	if !ok {
		ch = make(map[string]*convLog)
		s.logs[channelID] = ch
	}
	cl, ok := ch[conversation]
	if !ok {
		cl = &convLog{}
		ch[conversation] = cl
	}
	return cl
}

// LogActivity implements Store. The stored record is a snapshot; later
// caller mutations do not affect it.
func (s *MemoryStore) LogActivity(ctx context.Context, act *models.Activity) error {
	if act == nil {
		return fmt.Errorf("activity is nil")
	}
	if act.ChannelID == "" || act.Conversation == "" {
		return fmt.Errorf("activity missing channel or conversation")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := act.Clone()
	if rec.ID == "" {
		rec.ID = utils.GenID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	cl := s.conv(rec.ChannelID, rec.Conversation)
	cl.mu.Lock()
	cl.records = append(cl.records, rec)
	cl.mu.Unlock()
	return nil
}

// ListActivities implements Store. The continuation token is a numeric
// offset into the filtered record sequence.
func (s *MemoryStore) ListActivities(ctx context.Context, channelID, conversation, token string, start time.Time) (PagedActivities, error) {
	if err := ctx.Err(); err != nil {
		return PagedActivities{}, err
	}
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return PagedActivities{}, fmt.Errorf("%w: %q", ErrBadToken, token)
		}
		offset = n
	}

	s.mu.RLock()
	cl := s.logs[channelID][conversation]
	s.mu.RUnlock()
	if cl == nil {
		return PagedActivities{}, nil
	}

	cl.mu.Lock()
	var filtered []*models.Activity
	for _, rec := range cl.records {
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		filtered = append(filtered, rec)
	}
	cl.mu.Unlock()

	if offset >= len(filtered) {
		return PagedActivities{}, nil
	}
	end := offset + PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := PagedActivities{Items: make([]*models.Activity, 0, end-offset)}
	for _, rec := range filtered[offset:end] {
		page.Items = append(page.Items, rec.Clone())
	}
	if end < len(filtered) {
		page.ContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

// ListTranscripts implements Store. Conversations are enumerated in
// lexical order so pagination is stable across calls.
func (s *MemoryStore) ListTranscripts(ctx context.Context, channelID, token string) (PagedTranscripts, error) {
	if err := ctx.Err(); err != nil {
		return PagedTranscripts{}, err
	}
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return PagedTranscripts{}, fmt.Errorf("%w: %q", ErrBadToken, token)
		}
		offset = n
	}

	s.mu.RLock()
	ch := s.logs[channelID]
	keys := make([]string, 0, len(ch))
	for k := range ch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	infos := make([]models.TranscriptInfo, 0, len(keys))
	for _, k := range keys {
		cl := ch[k]
		cl.mu.Lock()
		n := len(cl.records)
		cl.mu.Unlock()
		infos = append(infos, models.TranscriptInfo{ChannelID: channelID, Conversation: k, Count: n})
	}
	s.mu.RUnlock()

	if offset >= len(infos) {
		return PagedTranscripts{}, nil
	}
	end := offset + PageSize
	if end > len(infos) {
		end = len(infos)
	}
	page := PagedTranscripts{Items: infos[offset:end]}
	if end < len(infos) {
		page.ContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

// DeleteTranscript implements Store.
func (s *MemoryStore) DeleteTranscript(ctx context.Context, channelID, conversation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.logs[channelID]; ok {
		delete(ch, conversation)
	}
	return nil
}
