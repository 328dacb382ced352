package openrosa

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/platform/retry"
)

const (
	// ResultSuccess is the per-form message for a completed download.
	ResultSuccess = "Success"
	// ResultCancelled marks forms skipped because the sequence was cancelled.
	ResultCancelled = "Cancelled"
)

var errHashMismatch = errors.New("downloaded file does not match advertised hash")

// DownloadForms fetches each form in order. A form that fails keeps its
// error text as the result and the loop moves on. Cancellation marks the
// remaining forms as cancelled and returns the context error.
func (c *Client) DownloadForms(ctx context.Context, forms []domain.FormDetails, progress func(domain.Progress)) (map[string]string, error) {
	results := make(map[string]string, len(forms))
	if err := os.MkdirAll(c.formsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create forms dir: %w", err)
	}
	names := c.newFileNamer(ctx)

	for i, f := range forms {
		if ctx.Err() != nil {
			for _, rest := range forms[i:] {
				results[rest.FormID] = ResultCancelled
			}
			return results, ctx.Err()
		}
		if progress != nil {
			progress(domain.Progress{CurrentFile: f.Name, Done: i, Total: len(forms)})
		}

		if err := c.downloadForm(ctx, f, names); err != nil {
			if ctx.Err() != nil {
				for _, rest := range forms[i:] {
					results[rest.FormID] = ResultCancelled
				}
				return results, ctx.Err()
			}
			c.logger.WarnContext(ctx, "Form download failed", "form_id", f.FormID, "error", err)
			results[f.FormID] = err.Error()
			continue
		}
		results[f.FormID] = ResultSuccess
	}
	if progress != nil {
		progress(domain.Progress{Done: len(forms), Total: len(forms)})
	}
	return results, nil
}

func (c *Client) downloadForm(ctx context.Context, f domain.FormDetails, names *fileNamer) error {
	body, err := retry.Do(ctx, c.policy, classify, func(ctx context.Context) ([]byte, error) {
		b, err := c.get(ctx, f.DownloadURL)
		if err != nil {
			return nil, err
		}
		if !hashMatches(f.Hash, b) {
			return nil, errHashMismatch
		}
		return b, nil
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", f.Name, err)
	}

	path := names.claim(f)
	base := strings.TrimSuffix(path, ".xml")
	if err := writeAtomic(path, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Downloaded form", "form_id", f.FormID, "size", humanize.IBytes(uint64(len(body))))

	if f.ManifestURL != "" {
		if err := c.downloadMedia(ctx, f, base+"-media"); err != nil {
			return err
		}
	}

	if c.forms == nil {
		return nil
	}
	return c.forms.Upsert(ctx, domain.Form{
		FormID:       f.FormID,
		Version:      f.Version,
		Name:         f.Name,
		Hash:         f.Hash,
		FilePath:     path,
		DownloadedAt: c.clock.Now(),
	})
}

func (c *Client) downloadMedia(ctx context.Context, f domain.FormDetails, dir string) error {
	raw, err := c.get(ctx, f.ManifestURL)
	if err != nil {
		return fmt.Errorf("fetch media manifest for %s: %w", f.Name, err)
	}
	files, err := parseMediaManifest(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}

	var total uint64
	for _, m := range files {
		name := filepath.Base(strings.TrimSpace(m.Filename))
		if name == "." || name == string(filepath.Separator) || name == "" {
			return fmt.Errorf("media file for %s has no usable name", f.Name)
		}
		body, err := retry.Do(ctx, c.policy, classify, func(ctx context.Context) ([]byte, error) {
			b, err := c.get(ctx, m.DownloadURL)
			if err != nil {
				return nil, err
			}
			if !hashMatches(m.Hash, b) {
				return nil, errHashMismatch
			}
			return b, nil
		})
		if err != nil {
			return fmt.Errorf("download media %s: %w", name, err)
		}
		if err := writeAtomic(filepath.Join(dir, name), body); err != nil {
			return err
		}
		total += uint64(len(body))
	}
	c.logger.InfoContext(ctx, "Downloaded form media", "form_id", f.FormID, "files", len(files), "size", humanize.IBytes(total))
	return nil
}

// hashMatches checks an "md5:<hex>" hash. Other or empty hashes are not
// verified.
func hashMatches(hash string, body []byte) bool {
	want, ok := strings.CutPrefix(strings.TrimSpace(hash), "md5:")
	if !ok || want == "" {
		return true
	}
	sum := md5.Sum(body)
	return strings.EqualFold(want, hex.EncodeToString(sum[:]))
}

// fileBaseName turns a form name into a file name, falling back to the
// form id when nothing usable is left.
func fileBaseName(name, formID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r), r == '.':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, "_")
	if clean == "" {
		clean = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
				return r
			}
			return '_'
		}, formID)
	}
	return clean
}

// fileNamer hands out form file paths for one download run. A form keeps
// the path it was stored under before; any other form whose name maps to a
// taken file gets a _2, _3, ... suffix.
type fileNamer struct {
	dir     string
	owned   map[string]string // form id -> stored path
	claimed map[string]string // path -> form id, this run and stored records
}

func (c *Client) newFileNamer(ctx context.Context) *fileNamer {
	n := &fileNamer{dir: c.formsDir, owned: map[string]string{}, claimed: map[string]string{}}
	if c.forms == nil {
		return n
	}
	stored, err := c.forms.List(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Cannot read stored forms, file names may collide with earlier downloads", "error", err)
		return n
	}
	for _, f := range stored {
		if f.FilePath == "" {
			continue
		}
		n.owned[f.FormID] = f.FilePath
		n.claimed[f.FilePath] = f.FormID
	}
	return n
}

func (n *fileNamer) claim(f domain.FormDetails) string {
	base := fileBaseName(f.Name, f.FormID)
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(n.dir, name+".xml")

		owner, taken := n.claimed[path]
		if taken && owner != f.FormID {
			continue
		}
		if !taken && n.owned[f.FormID] != path {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		n.claimed[path] = f.FormID
		n.owned[f.FormID] = path
		return path
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
