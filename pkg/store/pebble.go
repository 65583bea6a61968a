// Package store provides the durable, Pebble-backed transcript store. It
// satisfies the same contract as the in-memory reference store; pipeline
// code does not change across backends.
package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
	"botpipe/pkg/transcript"
	"botpipe/pkg/utils"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// PebbleStore is an append-only transcript log over a Pebble database.
//
// Key schema:
//
//	t:<channel>:<conversation>:act:<unix_nano_padded>-<seq>  -> activity JSON
//	t:<channel>:<conversation>:meta                          -> transcript summary JSON
//
// The padded-nanosecond prefix plus a process-wide counter keeps records
// in insertion order even when several share a nanosecond. Channel and
// conversation ids are query-escaped inside keys so external ids cannot
// break prefix iteration.
type PebbleStore struct {
	db   *pebble.DB
	path string
	seq  uint64

	// convMu serializes same-conversation appends (the meta row is
	// read-modify-write); different conversations use different locks.
	mu     sync.Mutex
	convMu map[string]*sync.Mutex
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*PebbleStore, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &PebbleStore{db: db, path: path, convMu: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is open.
func (s *PebbleStore) Ready() bool { return s.db != nil }

func convKey(channelID, conversation string) string {
	return "t:" + url.QueryEscape(channelID) + ":" + url.QueryEscape(conversation)
}

func (s *PebbleStore) lockConv(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.convMu[key]
	if !ok {
		mu = &sync.Mutex{}
		s.convMu[key] = mu
	}
	return mu
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, for use as a range upper bound.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// LogActivity implements transcript.Store. The insert is synced to disk
// before returning.
func (s *PebbleStore) LogActivity(ctx context.Context, act *models.Activity) error {
	if s.db == nil {
		return ErrClosed
	}
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
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	ck := convKey(rec.ChannelID, rec.Conversation)
	mu := s.lockConv(ck)
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("%s:act:%020d-%06d", ck, ts, n)
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("log_activity_failed", "key", key, "error", err)
		return err
	}

	// meta row carries the record count for transcript enumeration.
	info := models.TranscriptInfo{ChannelID: rec.ChannelID, Conversation: rec.Conversation}
	metaKey := []byte(ck + ":meta")
	if v, closer, err := s.db.Get(metaKey); err == nil {
		_ = json.Unmarshal(v, &info)
		_ = closer.Close()
	}
	info.Count++
	mb, _ := json.Marshal(info)
	if err := s.db.Set(metaKey, mb, pebble.Sync); err != nil {
		logger.Error("log_activity_meta_failed", "key", string(metaKey), "error", err)
		return err
	}
	logger.Debug("activity_logged", "channel", rec.ChannelID, "conversation", rec.Conversation, "id", rec.ID, "type", string(rec.Type))
	return nil
}

// ListActivities implements transcript.Store. The continuation token is
// the base64 of the last returned record key.
func (s *PebbleStore) ListActivities(ctx context.Context, channelID, conversation, token string, start time.Time) (transcript.PagedActivities, error) {
	if s.db == nil {
		return transcript.PagedActivities{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return transcript.PagedActivities{}, err
	}
	prefix := []byte(convKey(channelID, conversation) + ":act:")
	seek := prefix
	if token != "" {
		last, err := base64.URLEncoding.DecodeString(token)
		if err != nil || !bytes.HasPrefix(last, prefix) {
			return transcript.PagedActivities{}, transcript.ErrBadToken
		}
		// resume strictly after the last seen key
		seek = append(append([]byte(nil), last...), 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return transcript.PagedActivities{}, err
	}
	defer iter.Close()

	var page transcript.PagedActivities
	var lastKey []byte
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec models.Activity
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			logger.Warn("transcript_record_invalid", "key", string(iter.Key()), "error", err)
			continue
		}
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		if len(page.Items) == transcript.PageSize {
			// a further matching record exists, so hand out a token
			page.ContinuationToken = base64.URLEncoding.EncodeToString(lastKey)
			return page, iter.Error()
		}
		page.Items = append(page.Items, &rec)
		lastKey = append(lastKey[:0], iter.Key()...)
	}
	return page, iter.Error()
}

// ListTranscripts implements transcript.Store.
func (s *PebbleStore) ListTranscripts(ctx context.Context, channelID, token string) (transcript.PagedTranscripts, error) {
	if s.db == nil {
		return transcript.PagedTranscripts{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return transcript.PagedTranscripts{}, err
	}
	prefix := []byte("t:" + url.QueryEscape(channelID) + ":")
	seek := prefix
	if token != "" {
		last, err := base64.URLEncoding.DecodeString(token)
		if err != nil || !bytes.HasPrefix(last, prefix) {
			return transcript.PagedTranscripts{}, transcript.ErrBadToken
		}
		seek = append(append([]byte(nil), last...), 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return transcript.PagedTranscripts{}, err
	}
	defer iter.Close()

	var page transcript.PagedTranscripts
	var lastKey []byte
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var info models.TranscriptInfo
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			logger.Warn("transcript_meta_invalid", "key", string(iter.Key()), "error", err)
			continue
		}
		if len(page.Items) == transcript.PageSize {
			page.ContinuationToken = base64.URLEncoding.EncodeToString(lastKey)
			return page, iter.Error()
		}
		page.Items = append(page.Items, info)
		lastKey = append(lastKey[:0], iter.Key()...)
	}
	return page, iter.Error()
}

// DeleteTranscript implements transcript.Store. The whole key range for
// the conversation is dropped, meta row included.
func (s *PebbleStore) DeleteTranscript(ctx context.Context, channelID, conversation string) error {
	if s.db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ck := convKey(channelID, conversation)
	mu := s.lockConv(ck)
	mu.Lock()
	defer mu.Unlock()

	prefix := []byte(ck + ":")
	if err := s.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		logger.Error("delete_transcript_failed", "channel", channelID, "conversation", conversation, "error", err)
		return err
	}
	logger.Info("transcript_deleted", "channel", channelID, "conversation", conversation)
	return nil
}
