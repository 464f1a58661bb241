package buffer

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// spill persists a still-queued chunk to disk as
// <prefix>#<tag>#<base64-chunk-id>#<createdAtMillis>.msgpack, contents
// being the raw PackedForward payload bytes. The chunk id uses the
// URL-safe base64 alphabet so that it never contains a '/'.
func spill(dir, prefix string, c *chunk) error {
	name := spillFileName(prefix, c.tag, c.id[:], c.createdAt.UnixMilli())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, c.buf, 0o600); err != nil {
		return fmt.Errorf("write spill file %s: %w", path, err)
	}
	return nil
}

func spillFileName(prefix, tag string, chunkID []byte, createdAtMillis int64) string {
	return fmt.Sprintf("%s#%s#%s#%d.msgpack", prefix, tag, base64.URLEncoding.EncodeToString(chunkID), createdAtMillis)
}

// rehydrate scans dir for spill files matching prefix and turns each back
// into a queued chunk with its tag, chunk id, creation time and bytes. The
// record count is not stored in the file, so a rehydrated chunk reports a
// Count of 0, and its capacity is the length of its bytes.
func rehydrate(dir, prefix string) ([]*chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir %s: %w", dir, err)
	}

	var restored []*chunk
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tag, chunkID, createdAtMillis, ok := parseSpillFileName(prefix, entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("read spill file %s: %w", path, rerr)
		}
		c := &chunk{
			tag:       tag,
			buf:       data,
			capacity:  len(data),
			createdAt: millisToTime(createdAtMillis),
		}
		copy(c.id[:], chunkID)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove spill file %s after rehydrate: %w", path, err)
		}
		restored = append(restored, c)
	}
	return restored, nil
}

func parseSpillFileName(prefix, name string) (tag string, chunkID []byte, createdAtMillis int64, ok bool) {
	const suffix = ".msgpack"
	if !strings.HasSuffix(name, suffix) {
		return "", nil, 0, false
	}
	trimmed := strings.TrimSuffix(name, suffix)
	parts := strings.Split(trimmed, "#")
	if len(parts) != 4 || parts[0] != prefix {
		return "", nil, 0, false
	}
	idBytes, derr := base64.URLEncoding.DecodeString(parts[2])
	if derr != nil || len(idBytes) != 16 {
		return "", nil, 0, false
	}
	millis, nerr := strconv.ParseInt(parts[3], 10, 64)
	if nerr != nil {
		return "", nil, 0, false
	}
	return parts[1], idBytes, millis, true
}

func clearSpillFiles(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read backup dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, _, ok := parseSpillFileName(prefix, entry.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove spill file %s: %w", entry.Name(), err)
		}
	}
	return nil
}
