// Package download is the retrieval stage: it fetches the segments of a
// resolved stream plan over HTTP and writes them to the stream's folder.
// The plan compiler itself performs no I/O.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"xstreamdl/internal/dash"
	"xstreamdl/internal/logger"
	"xstreamdl/internal/models"
)

// Task is one queued segment download.
type Task struct {
	Segment *models.Segment
	Result  chan Result
}

// Result carries the outcome of a task back to its submitter.
type Result struct {
	Task  Task
	Data  []byte
	Error error
}

// Downloader fetches segments through a fixed pool of workers with
// per-request timeouts and retry logic.
type Downloader struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string

	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration

	tasks chan Task
	wg    sync.WaitGroup
	once  sync.Once
}

// New creates a downloader with the given number of worker goroutines.
func New(client *http.Client, log logger.Logger, userAgent string, workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}
	d := &Downloader{
		httpClient:     client,
		logger:         log,
		userAgent:      userAgent,
		RequestTimeout: 30 * time.Second,
		tasks:          make(chan Task, workers*4),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// QueueDownload submits a segment for retrieval. The outcome arrives on
// the task's Result channel.
func (d *Downloader) QueueDownload(t Task) {
	d.tasks <- t
}

// Stop drains the queue and waits for all workers to exit.
func (d *Downloader) Stop() {
	d.once.Do(func() {
		close(d.tasks)
	})
	d.wg.Wait()
}

func (d *Downloader) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		data, err := d.fetch(t.Segment)
		t.Result <- Result{Task: t, Data: data, Error: err}
	}
}

// fetch retrieves a single segment with retries.
func (d *Downloader) fetch(segment *models.Segment) ([]byte, error) {
	const maxRetries = 3
	const retryDelay = 100 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.RequestTimeout)

		req, err := http.NewRequestWithContext(ctx, "GET", segment.URL, nil)
		if err != nil {
			cancel()
			// Non-recoverable, don't retry.
			return nil, fmt.Errorf("failed to create request for segment %s: %w", segment.Name, err)
		}
		if d.userAgent != "" {
			req.Header.Set("User-Agent", d.userAgent)
		}
		if len(segment.ByteRange) == 2 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", segment.ByteRange[0], segment.ByteRange[1]))
		}

		d.logger.Debugf("Downloading segment %s (Attempt %d/%d)", segment.Name, attempt, maxRetries)
		resp, err := d.httpClient.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("download attempt %d failed for segment %s: %w", attempt, segment.Name, err)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("download attempt %d for segment %s received non-200 status: %d", attempt, segment.Name, resp.StatusCode)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("download attempt %d for segment %s failed while reading body: %w", attempt, segment.Name, err)
			d.logger.Warnf(lastErr.Error())
			time.Sleep(retryDelay)
			continue
		}

		return data, nil
	}

	return nil, fmt.Errorf("failed to download segment %s after %d attempts: %w", segment.Name, maxRetries, lastErr)
}

// SaveStream downloads every segment of a stream plan into the stream's
// folder. Segments that fail after all retries are reported collectively;
// the remaining segments are still written.
func (d *Downloader) SaveStream(stream *dash.Stream) error {
	if len(stream.Segments) == 0 {
		d.logger.Warnf("Stream %s has no segments, nothing to download", stream.SKey())
		return nil
	}

	folder := stream.Folder()
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("failed to create stream folder %s: %w", folder, err)
	}

	results := make(chan Result, len(stream.Segments))
	queued := 0
	for _, seg := range stream.Segments {
		if seg.URL == "" {
			d.logger.Warnf("Segment %s of stream %s has no URL, skipping", seg.Name, stream.SKey())
			continue
		}
		seg.Folder = folder
		d.QueueDownload(Task{Segment: seg, Result: results})
		queued++
	}

	var failed int
	for i := 0; i < queued; i++ {
		res := <-results
		if res.Error != nil {
			failed++
			d.logger.Errorf("Stream %s: %v", stream.SKey(), res.Error)
			continue
		}
		if err := os.WriteFile(res.Task.Segment.Path(), res.Data, 0o644); err != nil {
			failed++
			d.logger.Errorf("Stream %s: failed to write %s: %v", stream.SKey(), res.Task.Segment.Path(), err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("stream %s: %d of %d segments failed", stream.SKey(), failed, queued)
	}
	d.logger.Infof("Stream %s: saved %d segments to %s", stream.SKey(), queued, folder)
	return nil
}
