package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
	"unicode/utf8"

	"nuclight.org/tg-relay/app/segmenter"
	e "nuclight.org/tg-relay/pkg/entities"
	"nuclight.org/tg-relay/pkg/logger"
)

// Sender is a bot API client doing the actual transport
type Sender interface {
	SendText(ctx context.Context, dest, text string) error
	SendMedia(ctx context.Context, req e.DeliveryRequest) error
	FetchFileLocation(ctx context.Context, fileID string) (e.FileLocation, error)
	DownloadBytes(ctx context.Context, remotePath string) ([]byte, int, error)
	PollUpdates(ctx context.Context, offset int) (e.Updates, error)
}

// Report counts outcomes of a batch
type Report struct {
	Sent   int
	Failed int
}

// Dispatcher routes messages and files to the sender. Every item is sent once,
// a failed item is logged and the rest of the batch goes on.
type Dispatcher struct {
	Log    logger.Logger
	Sender Sender

	// Segmenter splits text messages, zero value means segmenter.Default()
	Segmenter segmenter.Segmenter

	// Timeouts overrides default per kind budgets
	Timeouts e.Timeouts

	// FilesDir is where fetched files are stored
	FilesDir string

	// Now is used to name fetched files, time.Now by default
	Now func() time.Time
}

// Request builds a delivery request for a file. Caption defaults to the file
// name. Generic files are classified by extension but keep the generic budget.
func (d *Dispatcher) Request(dest string, kind e.MediaKind, filePath, caption string) e.DeliveryRequest {
	if caption == "" {
		caption = filepath.Base(filePath)
	}

	timeout := d.Timeouts.For(kind)
	if kind == e.MediaKindFile {
		kind = e.Classify(filePath)
	}

	return e.DeliveryRequest{
		Destination: dest,
		Kind:        kind,
		Path:        filePath,
		Caption:     caption,
		Timeout:     timeout,
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, req e.DeliveryRequest) error {
	d.Log.Info("sending media", "kind", req.Kind, "chat", req.Destination, "path", req.Path, "caption", req.Caption)

	err := d.Sender.SendMedia(ctx, req)
	if err != nil {
		return fmt.Errorf("sending %s: %w", req.Kind, err)
	}

	d.Log.Info("media sent", "kind", req.Kind, "path", req.Path)
	return nil
}

// DeliverFiles sends files one by one
func (d *Dispatcher) DeliverFiles(ctx context.Context, dest string, kind e.MediaKind, paths []string, caption string) Report {
	var rep Report

	for _, p := range paths {
		err := d.Deliver(ctx, d.Request(dest, kind, p, caption))
		switch {
		case err == nil:
			rep.Sent++
		case errors.Is(err, fs.ErrNotExist):
			d.Log.Error("media file not found", "kind", kind, "path", p, "error", err)
			rep.Failed++
		default:
			d.Log.Error("sending media", "kind", kind, "path", p, "error", err)
			rep.Failed++
		}
	}

	return rep
}

// DeliverText sends text in chunks keeping their order. Returned error means
// the message could not be split at all.
func (d *Dispatcher) DeliverText(ctx context.Context, dest, text string) (Report, error) {
	var rep Report

	seg := d.Segmenter
	if seg == (segmenter.Segmenter{}) {
		seg = segmenter.Default()
	}

	chunks, err := seg.Split(text)
	if err != nil {
		return rep, fmt.Errorf("splitting message: %w", err)
	}

	d.Log.Info("sending message", "chat", dest, "length", utf8.RuneCountInString(text), "chunks", len(chunks))

	for i, chunk := range chunks {
		err := d.Sender.SendText(ctx, dest, chunk.Text)
		if err != nil {
			d.Log.Error("sending chunk", "chat", dest, "chunk", i+1, "of", len(chunks), "error", err)
			rep.Failed++
			continue
		}
		rep.Sent++
	}

	return rep, nil
}

// Fetch downloads a file by its id into FilesDir and returns the stored file
// name. The name is the current time in milliseconds plus the remote extension.
// On failure nothing is written and, if dest is set, a notice is sent there.
func (d *Dispatcher) Fetch(ctx context.Context, dest, fileID string) (string, error) {
	loc, err := d.Sender.FetchFileLocation(ctx, fileID)
	if err != nil {
		d.notify(ctx, dest, "Error getting file")
		return "", fmt.Errorf("getting file %s: %w", fileID, err)
	}

	content, status, err := d.Sender.DownloadBytes(ctx, loc.RemotePath)
	if err != nil {
		d.notify(ctx, dest, "Error fetching file")
		return "", fmt.Errorf("downloading file %s: %w", fileID, err)
	}
	if status != http.StatusOK {
		d.notify(ctx, dest, "Error fetching file")
		return "", fmt.Errorf("downloading file %s: unexpected status code: %d", fileID, status)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	name := fmt.Sprintf("%d%s", now().UnixMilli(), path.Ext(loc.RemotePath))
	outPath := filepath.Join(d.FilesDir, name)

	if err := writeFile(outPath, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	d.Log.Info("file fetched", "file_unique_id", loc.UniqueID, "path", outPath, "size", len(content))
	return name, nil
}

// Poll requests updates following cursor
func (d *Dispatcher) Poll(ctx context.Context, cursor e.Cursor) (e.Updates, error) {
	updates, err := d.Sender.PollUpdates(ctx, cursor.Offset())
	if err != nil {
		return nil, fmt.Errorf("polling updates: %w", err)
	}
	return updates, nil
}

// writeFile stores r at path, a partially written file is removed
func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}

	return nil
}

func (d *Dispatcher) notify(ctx context.Context, dest, text string) {
	if dest == "" {
		return
	}

	if _, err := d.DeliverText(ctx, dest, text); err != nil {
		d.Log.Error("sending notice", "chat", dest, "error", err)
	}
}
