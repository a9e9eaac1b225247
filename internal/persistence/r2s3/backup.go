package r2s3

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"aquaflow.game/internal/persistence/snapshot"
)

type Stats struct {
	Offered        uint64
	Replaced       uint64
	Uploaded       uint64
	Failed         uint64
	LastUploadUnix int64
}

type job struct {
	key  string
	body []byte
}

// Backup uploads saves in the background. Only the newest pending save waits for the
// uploader; an older one still queued is replaced.
type Backup struct {
	client  *Client
	prefix  string
	logger  *log.Logger
	pending chan job
	done    chan struct{}

	attempts int
	backoff  time.Duration

	offered    atomic.Uint64
	replaced   atomic.Uint64
	uploaded   atomic.Uint64
	failed     atomic.Uint64
	lastUpload atomic.Int64
}

func NewBackup(client *Client, prefix string, logger *log.Logger) *Backup {
	if logger == nil {
		logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	b := &Backup{
		client:   client,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:   logger,
		pending:  make(chan job, 1),
		done:     make(chan struct{}),
		attempts: 3,
		backoff:  time.Second,
	}
	go b.loop()
	return b
}

// ObjectKey names the object for one save: <prefix>/<run>/tick-<tick>.snap.zst.
func ObjectKey(prefix string, h snapshot.Header) string {
	name := fmt.Sprintf("tick-%012d.snap.zst", h.Tick)
	if prefix == "" {
		return path.Join(h.RunID, name)
	}
	return path.Join(prefix, h.RunID, name)
}

// Offer reads the save at file now, since the file is overwritten by the next save,
// and queues it. It must not be called after Close.
func (b *Backup) Offer(file string, h snapshot.Header) error {
	if b == nil {
		return nil
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	b.offered.Add(1)
	j := job{key: ObjectKey(b.prefix, h), body: body}
	select {
	case b.pending <- j:
		return nil
	default:
	}
	select {
	case <-b.pending:
		b.replaced.Add(1)
	default:
	}
	select {
	case b.pending <- j:
	default:
		b.replaced.Add(1)
	}
	return nil
}

// Close uploads whatever is still queued and stops the uploader.
func (b *Backup) Close() {
	if b == nil {
		return
	}
	close(b.pending)
	<-b.done
}

func (b *Backup) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		Offered:        b.offered.Load(),
		Replaced:       b.replaced.Load(),
		Uploaded:       b.uploaded.Load(),
		Failed:         b.failed.Load(),
		LastUploadUnix: b.lastUpload.Load(),
	}
}

func (b *Backup) loop() {
	defer close(b.done)
	for j := range b.pending {
		if err := b.upload(j); err != nil {
			b.failed.Add(1)
			b.logger.Printf("upload %s failed: %v", j.key, err)
			continue
		}
		b.uploaded.Add(1)
		b.lastUpload.Store(time.Now().Unix())
		b.logger.Printf("uploaded %s (%d bytes)", j.key, len(j.body))
	}
}

func (b *Backup) upload(j job) error {
	var err error
	for i := 1; i <= b.attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), b.client.cfg.Timeout)
		err = b.client.Put(ctx, j.key, j.body)
		cancel()
		if err == nil {
			return nil
		}
		if i < b.attempts {
			time.Sleep(time.Duration(i) * b.backoff)
		}
	}
	return err
}
