package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
)

const (
	cacheFilePrefix     = "doc-"
	defaultMaxFileBytes = 1 << 20
)

// fileCache stores downloaded documents in a private directory.
type fileCache struct {
	dir      string
	maxBytes int64
	baseURL  string
	client   *http.Client
}

func newFileCache(dir string, maxBytes int64, baseURL string, client *http.Client) (*fileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("telegram cache dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &fileCache{dir: dir, maxBytes: maxBytes, baseURL: baseURL, client: client}, nil
}

func (c *fileCache) download(ctx context.Context, b *bot.Bot, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("empty fileID provided")
	}
	fileObj, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", stripURL(err))
	}
	if fileObj.FilePath == "" {
		return "", fmt.Errorf("empty file path returned from Telegram")
	}
	return c.fetch(ctx, c.baseURL+"/"+fileObj.FilePath)
}

// fetch downloads url into a new cache file and returns its path. At most
// maxBytes+1 bytes are written.
func (c *fileCache) fetch(ctx context.Context, url string) (path string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", stripURL(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(c.dir, cacheFilePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, c.maxBytes+1)); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	return f.Name(), nil
}

// stripURL drops the request URL from transport errors. File and API URLs
// embed the bot token.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s request: %w", uerr.Op, uerr.Err)
	}
	return err
}

// prune deletes cache files older than maxAge.
func (c *fileCache) prune(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), cacheFilePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
