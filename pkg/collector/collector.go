// Package collector runs the chat side of the pipeline: it banks incoming
// images per user, hands finished batches to the worker, and keeps the
// session map durable across restarts.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapdoc/snapdoc/pkg/cleanup"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/history"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/manifest"
	"github.com/snapdoc/snapdoc/pkg/pdf"
	"github.com/snapdoc/snapdoc/pkg/processor"
	"github.com/snapdoc/snapdoc/pkg/session"
	"github.com/snapdoc/snapdoc/pkg/utils"
	"github.com/snapdoc/snapdoc/pkg/worker"
)

var (
	// ErrCapacityExceeded means the per-batch image cap is full. Checked
	// before anything touches disk, so a rejected image leaves no trace.
	ErrCapacityExceeded = errors.New("batch is at capacity")

	// ErrEmptyBatch means generate was asked with nothing to build from.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrCooldown is a pacing guard, not a failure: the previous trigger
	// is either too recent or still running. No state changed.
	ErrCooldown = errors.New("generate is cooling down")
)

type Collector struct {
	cfg        *config.Config
	store      *session.Store
	history    *history.Store
	invoker    worker.Invoker
	uploadRoot string

	mu     sync.Mutex
	userMu map[string]*sync.Mutex
}

func New(cfg *config.Config, store *session.Store, hist *history.Store, invoker worker.Invoker) (*Collector, error) {
	uploadRoot := cfg.UploadPath()
	if err := os.MkdirAll(uploadRoot, 0755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Collector{
		cfg:        cfg,
		store:      store,
		history:    hist,
		invoker:    invoker,
		uploadRoot: uploadRoot,
		userMu:     make(map[string]*sync.Mutex),
	}, nil
}

// lockUser serializes all mutations for one user key. Different users
// never contend.
func (c *Collector) lockUser(userKey string) func() {
	c.mu.Lock()
	m, ok := c.userMu[userKey]
	if !ok {
		m = &sync.Mutex{}
		c.userMu[userKey] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (c *Collector) userDir(userKey string) string {
	return filepath.Join(c.uploadRoot, userKey)
}

// IsLive reports whether a user key still has a session; the janitor uses
// it to spare active upload directories.
func (c *Collector) IsLive(userKey string) bool {
	_, ok := c.store.Get(userKey)
	return ok
}

// AcceptImage validates one incoming image, banks it under the user's
// batch directory, and reports the batch fill level. The file is synced
// to disk before the call returns, so an acknowledged image survives a
// crash. On any error nothing is written and nothing is acknowledged.
func (c *Collector) AcceptImage(userKey, channel, chatID string, item MediaInput) (int, int, error) {
	unlock := c.lockUser(userKey)
	defer unlock()

	data, err := os.ReadFile(item.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: payload unreadable: %v", processor.ErrCorruptedImage, err)
	}
	contentType, ok := utils.NormalizeImageContentType(item.ContentType, data)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unsupported content type %q", processor.ErrCorruptedImage, item.ContentType)
	}

	sess, found := c.store.Get(userKey)
	if !found || sess.Status == session.StatusCompleted {
		sess = session.Session{
			UserKey:       userKey,
			Channel:       channel,
			ChatID:        chatID,
			Status:        session.StatusCollecting,
			CreatedAt:     time.Now().UTC(),
			LastTriggerAt: sess.LastTriggerAt, // generate pacing survives batch turnover
		}
	}
	sess.Channel = channel
	sess.ChatID = chatID

	max := c.cfg.Collector.MaxImages
	if sess.ImageCount() >= max {
		return sess.ImageCount(), max, ErrCapacityExceeded
	}

	seq := sess.NextSeqNo()
	name := fmt.Sprintf("img_%03d%s", seq, utils.ExtForContentType(contentType))
	dir := c.userDir(userKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, 0, fmt.Errorf("create batch dir: %w", err)
	}
	if err := writeSynced(filepath.Join(dir, name), data); err != nil {
		return 0, 0, fmt.Errorf("bank image: %w", err)
	}

	sess.Images = append(sess.Images, session.ImageRef{
		Name:         name,
		OriginalName: item.OriginalName,
		SeqNo:        seq,
		Size:         int64(len(data)),
		AddedAt:      time.Now().UTC(),
	})
	if sess.Status != session.StatusProcessing {
		sess.Status = session.StatusCollecting
	}
	c.store.Put(sess)
	c.saveManifest(userKey, sess)

	// spool copy is banked now
	os.Remove(item.Path)

	logger.DebugCF("collector", "Image banked", map[string]interface{}{
		"user":  userKey,
		"name":  name,
		"bytes": len(data),
		"count": sess.ImageCount(),
	})
	return sess.ImageCount(), max, nil
}

// MediaInput is one downloaded attachment as the channels hand it over.
type MediaInput struct {
	Path         string
	ContentType  string
	OriginalName string
}

// CanTrigger runs the generate guards without side effects.
func (c *Collector) CanTrigger(userKey string) error {
	unlock := c.lockUser(userKey)
	defer unlock()
	_, err := c.triggerChecks(userKey)
	return err
}

func (c *Collector) triggerChecks(userKey string) (session.Session, error) {
	sess, found := c.store.Get(userKey)
	if !found || sess.ImageCount() == 0 {
		return session.Session{}, ErrEmptyBatch
	}
	if sess.Status == session.StatusProcessing {
		return session.Session{}, ErrCooldown
	}
	if cd := c.cfg.GenerateCooldown(); cd > 0 && !sess.LastTriggerAt.IsZero() {
		if since := time.Since(sess.LastTriggerAt); since < cd {
			return session.Session{}, ErrCooldown
		}
	}
	return sess, nil
}

// Trigger closes the current batch and drives it to a delivered document.
// The user lock is held only around state flips, not the processing
// itself, so images for the next batch keep landing while the worker runs.
func (c *Collector) Trigger(ctx context.Context, userKey string) (worker.Response, error) {
	unlock := c.lockUser(userKey)
	sess, err := c.triggerChecks(userKey)
	if err != nil {
		unlock()
		return worker.Response{}, err
	}

	token := uuid.NewString()
	batchSeq := sess.NextSeqNo() - 1 // marker count closes the batch at the highest banked slot
	sess.Status = session.StatusProcessing
	sess.BatchToken = token
	sess.LastTriggerAt = time.Now().UTC()
	c.store.Put(sess)
	c.saveManifest(userKey, sess)

	dir := c.userDir(userKey)
	if err := handshake.Write(dir, token, batchSeq); err != nil {
		sess.Status = session.StatusCollecting
		c.store.Put(sess)
		unlock()
		return worker.Response{}, fmt.Errorf("%w: signal batch: %v", pdf.ErrBuildFailure, err)
	}
	unlock()

	logger.InfoCF("collector", "Batch handed off", map[string]interface{}{
		"user":   userKey,
		"token":  token,
		"images": sess.ImageCount(),
	})

	invokeCtx, cancel := context.WithTimeout(ctx, c.cfg.TriggerTimeout())
	defer cancel()
	resp, invokeErr := c.invoker.Invoke(invokeCtx, worker.Request{UserKey: userKey, ImageDir: dir})

	unlock = c.lockUser(userKey)
	defer unlock()
	sess, _ = c.store.Get(userKey)

	if invokeErr != nil {
		c.settleFailure(&sess, userKey, "transport")
		return worker.Response{}, fmt.Errorf("hand off batch: %w", invokeErr)
	}
	if !resp.Success {
		c.settleFailure(&sess, userKey, resp.Error)
		return resp, worker.ErrorForCode(resp.Error)
	}

	c.settleSuccess(&sess, userKey, batchSeq, resp)
	return resp, nil
}

// settleFailure puts the session back into collecting so the user can
// retry; the images never left the batch directory.
func (c *Collector) settleFailure(sess *session.Session, userKey, reason string) {
	if sess.UserKey != "" {
		sess.Status = session.StatusCollecting
		c.store.Put(*sess)
	}
	c.history.Add(history.Record{
		UserKey: userKey,
		Channel: sess.Channel,
		Outcome: history.OutcomeFailed,
		Reason:  reason,
	})
}

// settleSuccess retires the delivered images. Anything banked past the
// marker count arrived mid-processing and seeds the next batch.
func (c *Collector) settleSuccess(sess *session.Session, userKey string, batchSeq int, resp worker.Response) {
	if sess.UserKey != "" { // a concurrent /clear may have emptied the session
		var leftover []session.ImageRef
		for _, ref := range sess.Images {
			if ref.SeqNo > batchSeq {
				leftover = append(leftover, ref)
			}
		}

		if len(leftover) > 0 {
			sess.Images = leftover
			sess.Status = session.StatusCollecting
			c.store.Put(*sess)
			c.saveManifest(userKey, *sess)
		} else {
			sess.Images = nil
			sess.Status = session.StatusCompleted
			c.store.Put(*sess)
		}
	}

	c.history.Add(history.Record{
		UserKey:    userKey,
		Channel:    sess.Channel,
		Pages:      resp.PageCount,
		SizeBytes:  resp.SizeBytes,
		DurationMS: resp.DurationMS,
		Outcome:    history.OutcomeDelivered,
	})

	if retention := c.cfg.OutputRetention(); retention > 0 && resp.PDFPath != "" {
		cleanup.ScheduleOutputRemoval(resp.PDFPath, retention)
		if resp.PreviewPath != "" {
			cleanup.ScheduleOutputRemoval(resp.PreviewPath, retention)
		}
	}
}

// Clear wipes the user's batch directory and session. Safe to repeat; a
// user with nothing banked just gets a fresh start.
func (c *Collector) Clear(userKey string) error {
	unlock := c.lockUser(userKey)
	defer unlock()

	if err := os.RemoveAll(c.userDir(userKey)); err != nil {
		return fmt.Errorf("clear batch dir: %w", err)
	}
	c.store.Remove(userKey)
	logger.InfoCF("collector", "Batch cleared", map[string]interface{}{"user": userKey})
	return nil
}

// Status returns a snapshot of the user's session.
func (c *Collector) Status(userKey string) (session.Session, bool) {
	return c.store.Get(userKey)
}

// Stats aggregates the user's delivery history.
func (c *Collector) Stats(userKey string) history.Aggregate {
	return history.AggregateRecords(c.history.Query(history.Filter{UserKey: userKey}))
}

// MaxImages exposes the batch cap for message formatting.
func (c *Collector) MaxImages() int {
	return c.cfg.Collector.MaxImages
}

func (c *Collector) saveManifest(userKey string, sess session.Session) {
	m := manifest.Manifest{UserKey: userKey}
	for _, ref := range sess.Images {
		m.Entries = append(m.Entries, manifest.Entry{
			Name:         ref.Name,
			OriginalName: ref.OriginalName,
			SeqNo:        ref.SeqNo,
		})
	}
	if err := manifest.Save(c.userDir(userKey), m); err != nil {
		logger.WarnCF("collector", "Manifest write failed", map[string]interface{}{
			"user":  userKey,
			"error": err.Error(),
		})
	}
}

// writeSynced lands data on disk hard enough to survive a crash: write,
// fsync, close, all before anyone hears an acknowledgement.
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
