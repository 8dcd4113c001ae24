package forum

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/burrowbb/burrow/store"
)

// Diffs records post edit history. Each edit stores the pre-edit content
// alongside the editor and timestamp, zstd-compressed since forum posts
// compress extremely well.
type Diffs struct {
	store   store.Store
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewDiffs creates the edit-history collaborator.
func NewDiffs(s store.Store) (*Diffs, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("unable to create diff encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create diff decoder: %w", err)
	}
	return &Diffs{store: s, encoder: encoder, decoder: decoder}, nil
}

// Save appends an edit-history entry for the post. oldContent is the
// content before the edit (empty when only title or tags changed).
func (d *Diffs) Save(pid, editorUID, timestamp int64, oldContent, oldTitle string, oldTags []TagObject) error {
	pidStr := formatInt(pid)
	entryKey := "diff:" + pidStr + ":" + formatInt(timestamp)
	fields := map[string]interface{}{
		"pid":       pid,
		"uid":       editorUID,
		"timestamp": timestamp,
	}
	if oldContent != "" {
		compressed := d.encoder.EncodeAll([]byte(oldContent), nil)
		fields["content"] = base64.StdEncoding.EncodeToString(compressed)
	}
	if oldTitle != "" {
		fields["title"] = oldTitle
	}
	if len(oldTags) > 0 {
		values := make([]interface{}, 0, len(oldTags))
		for _, t := range oldTags {
			values = append(values, t.Value)
		}
		fields["tags"] = values
	}
	if err := d.store.SetObject(entryKey, fields); err != nil {
		return err
	}
	return d.store.SortedSetAdd("pid:"+pidStr+":diffs", timestamp, formatInt(timestamp))
}

// Timestamps returns the edit timestamps recorded for a post, oldest first.
func (d *Diffs) Timestamps(pid int64) ([]int64, error) {
	members, err := d.store.SortedSetRange("pid:"+formatInt(pid)+":diffs", 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		out = append(out, toInt64(m))
	}
	return out, nil
}

// Content returns the decompressed pre-edit content of a history entry.
func (d *Diffs) Content(pid, timestamp int64) (string, error) {
	fields, err := d.store.GetObjectFields("diff:"+formatInt(pid)+":"+formatInt(timestamp), []string{"content"})
	if err != nil {
		return "", err
	}
	encoded := toString(fields["content"])
	if encoded == "" {
		return "", nil
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("corrupt diff entry: %w", err)
	}
	raw, err := d.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("unable to decompress diff entry: %w", err)
	}
	return string(raw), nil
}
