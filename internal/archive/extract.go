package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
)

// ChecksumUnknown marks an entry whose content could not be decoded
const ChecksumUnknown = "unknown"

// ArchiveEntry is an immutable snapshot of one archive member.
// CompressedSizeEstimate is a proportional share of the archive's size on
// disk, not the member's true compressed size; CompressionRatio derives
// from it.
type ArchiveEntry struct {
	Path                   string    `json:"path"`
	Name                   string    `json:"name"`
	Size                   int64     `json:"size"`
	CompressedSizeEstimate int64     `json:"compressed_size_estimate"`
	CompressionRatio       float64   `json:"compression_ratio"`
	Checksum               string    `json:"checksum"`
	LastModified           time.Time `json:"last_modified"`
	IsDirectory            bool      `json:"is_directory"`
	Encrypted              bool      `json:"encrypted,omitempty"`
	Content                *string   `json:"-"`
	MimeType               string    `json:"mime_type"`
}

// HasContent reports whether the entry was decoded as text
func (e ArchiveEntry) HasContent() bool {
	return e.Content != nil
}

// ctxReader aborts a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// openArchive decodes the central directory and enforces the entry count
// and path depth limits. It returns the declared uncompressed total,
// saturating at math.MaxInt64.
func openArchive(name string, data []byte, limits Limits) (*zip.Reader, int64, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && zr == nil {
		return nil, 0, &FormatError{Name: name, Err: err}
	}

	if n := int64(len(zr.File)); n > int64(limits.MaxEntries) {
		return nil, 0, &ResourceLimitError{Kind: LimitEntryCount, Limit: int64(limits.MaxEntries), Actual: n}
	}

	var declared int64
	for _, f := range zr.File {
		if d := pathDepth(f.Name); d > limits.MaxDepth {
			return nil, 0, &ResourceLimitError{Kind: LimitPathDepth, Limit: int64(limits.MaxDepth), Actual: int64(d), Path: f.Name}
		}
		size := declaredSize(f)
		if declared > math.MaxInt64-size {
			declared = math.MaxInt64
			continue
		}
		declared += size
	}

	return zr, declared, nil
}

func declaredSize(f *zip.File) int64 {
	if f.UncompressedSize64 > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f.UncompressedSize64)
}

// headerEntry fills everything known about f without decompressing it
func headerEntry(f *zip.File) ArchiveEntry {
	p := entryPath(f.Name)
	isDir := f.FileInfo().IsDir()
	return ArchiveEntry{
		Path:         p,
		Name:         leafName(p),
		LastModified: f.Modified,
		IsDirectory:  isDir,
		Encrypted:    f.Flags&0x1 != 0,
		MimeType:     mimeType(p, isDir),
		Checksum:     ChecksumUnknown,
	}
}

// declaredEntries builds entries from the central directory alone: sizes
// are as declared and no checksum or content is available
func declaredEntries(zr *zip.Reader, archiveSize int64) []ArchiveEntry {
	entries := make([]ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		e := headerEntry(f)
		if !e.IsDirectory {
			e.Size = declaredSize(f)
		}
		entries = append(entries, e)
	}
	estimateCompressedSizes(entries, archiveSize)
	return entries
}

// extractEntries decodes every member. Member-level decode failures are
// recorded as Checksum "unknown" and do not fail the call; exceeding the
// uncompressed byte budget or ctx cancellation does.
func extractEntries(ctx context.Context, zr *zip.Reader, archiveSize int64, limits Limits, logger *slog.Logger) ([]ArchiveEntry, error) {
	entries := make([]ArchiveEntry, 0, len(zr.File))
	var budget = limits.MaxUncompressedBytes

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e := headerEntry(f)
		p := e.Path

		if e.IsDirectory {
			entries = append(entries, e)
			continue
		}

		if e.Encrypted {
			e.Size = declaredSize(f)
			entries = append(entries, e)
			continue
		}

		size, sum, content, err := decodeMember(ctx, f, budget, limits.MaxTextBytes, isTextFile(p))
		switch {
		case err == nil:
			e.Size = size
			e.Checksum = sum
			e.Content = content
			budget -= size
		case errors.Is(err, ErrResourceLimit), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			var rl *ResourceLimitError
			if errors.As(err, &rl) {
				rl.Path = p
			}
			return nil, err
		default:
			logger.Debug("archive member not decodable", "path", p, "error", err)
			e.Size = declaredSize(f)
		}

		entries = append(entries, e)
	}

	estimateCompressedSizes(entries, archiveSize)
	return entries, nil
}

// decodeMember streams one member through sha256, keeping the bytes only
// when the member is a text candidate within maxText.
func decodeMember(ctx context.Context, f *zip.File, budget, maxText int64, textCandidate bool) (int64, string, *string, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, "", nil, err
	}
	defer rc.Close()

	h := sha256.New()
	var buf *bytes.Buffer
	keep := textCandidate && int64(f.UncompressedSize64) <= maxText
	if keep {
		buf = &bytes.Buffer{}
	}

	w := io.Writer(h)
	if keep {
		w = io.MultiWriter(h, &limitedBuffer{buf: buf, max: maxText})
	}

	// one byte past the budget detects overflow
	n, err := io.Copy(w, io.LimitReader(&ctxReader{ctx: ctx, r: rc}, budget+1))
	if err != nil {
		return 0, "", nil, err
	}
	if n > budget {
		return 0, "", nil, &ResourceLimitError{Kind: LimitUncompressedSize, Limit: budget, Actual: n}
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if !keep || n > maxText || !utf8.Valid(buf.Bytes()) {
		return n, sum, nil, nil
	}
	text := buf.String()
	return n, sum, &text, nil
}

// limitedBuffer stops storing after max bytes but reports full writes
// so the hash keeps receiving data.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int64
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - int64(l.buf.Len()); room > 0 {
		if int64(len(p)) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

// estimateCompressedSizes allocates the archive's on-disk size across
// entries in proportion to their uncompressed size:
// floor(size / totalUncompressed * archiveSize).
func estimateCompressedSizes(entries []ArchiveEntry, archiveSize int64) {
	var total int64
	for _, e := range entries {
		if !e.IsDirectory {
			total += e.Size
		}
	}

	for i := range entries {
		e := &entries[i]
		if e.IsDirectory || e.Size == 0 || total == 0 {
			e.CompressionRatio = 1
			continue
		}
		e.CompressedSizeEstimate = int64(float64(e.Size) / float64(total) * float64(archiveSize))
		e.CompressionRatio = float64(e.CompressedSizeEstimate) / float64(e.Size)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
