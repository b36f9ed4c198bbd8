// Package session implements SessionRecord: a text digest of a decoding
// session's configuration and environment (SDR device, sample format,
// PPM correction, dictionary version). cmd/uatd passes it to acceptance
// rule evaluation (rules.Context.Manifest); the acceptance report itself
// does not embed it.
//
// Grounded on the teacher's internal/tmats package: a line-oriented
// "KEY:VALUE;" document format with '#'-prefixed comment lines and a
// digest embedded as one more key, used there for TMATS metadata
// documents. Retargeted here from TMATS channel/data metadata to a
// session manifest.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DigestKey is the manifest key the session digest is written under.
const DigestKey = "SESSION\\SHA256"

// Well-known manifest keys populated by BuildManifest.
const (
	KeyDevice            = "SESSION\\DEVICE"
	KeySampleFormat      = "SESSION\\SAMPLE_FORMAT"
	KeyPPMCorrection     = "SESSION\\PPM"
	KeyDictionaryVersion = "SESSION\\DICT_VERSION"
	KeyStartedAt         = "SESSION\\STARTED_AT"
)

// Document is an ordered set of key/value records plus free-standing
// comment lines, serializable back to the same "KEY:VALUE;" text format
// it was parsed from.
type Document struct {
	order    []string
	values   map[string]string
	comments []string
}

// Config is the structured form of a session manifest's well-known keys.
type Config struct {
	Device            string
	SampleFormat      string
	PPMCorrection     float64
	DictionaryVersion string
	StartedAt         string
}

// BuildManifest constructs a fresh Document populated with cfg's fields.
func BuildManifest(cfg Config) *Document {
	doc := &Document{}
	doc.Set(KeyDevice, cfg.Device)
	doc.Set(KeySampleFormat, cfg.SampleFormat)
	doc.Set(KeyPPMCorrection, strconv.FormatFloat(cfg.PPMCorrection, 'f', -1, 64))
	doc.Set(KeyDictionaryVersion, cfg.DictionaryVersion)
	if cfg.StartedAt != "" {
		doc.Set(KeyStartedAt, cfg.StartedAt)
	}
	return doc
}

// Config extracts the well-known keys back out of a Document.
func (d *Document) Config() (Config, error) {
	var cfg Config
	cfg.Device, _ = d.Get(KeyDevice)
	cfg.SampleFormat, _ = d.Get(KeySampleFormat)
	cfg.DictionaryVersion, _ = d.Get(KeyDictionaryVersion)
	cfg.StartedAt, _ = d.Get(KeyStartedAt)
	if raw, ok := d.Get(KeyPPMCorrection); ok && raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("session: %s: %w", KeyPPMCorrection, err)
		}
		cfg.PPMCorrection = v
	}
	return cfg, nil
}

// Parse loads a session manifest document from disk.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseString(string(data)), nil
}

// parseString parses the "KEY:VALUE;" line format: each non-comment line
// may hold several ';'-terminated key:value pairs; a '#' anywhere in a
// data line starts a trailing inline comment that is discarded, not
// recorded; a line whose first non-space character is '#' is recorded as
// a standalone comment instead.
func parseString(raw string) *Document {
	doc := &Document{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			doc.addCommentNormalized(trimmed)
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		for _, segment := range strings.Split(line, ";") {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			key, value, ok := strings.Cut(segment, ":")
			if !ok {
				continue
			}
			doc.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
	return doc
}

// Get returns the current value of key, if set.
func (d *Document) Get(key string) (string, bool) {
	if d == nil || d.values == nil {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Set assigns key to value, reporting whether the document changed.
func (d *Document) Set(key, value string) bool {
	if d.values == nil {
		d.values = make(map[string]string)
	}
	old, exists := d.values[key]
	if exists && old == value {
		return false
	}
	if !exists {
		d.order = append(d.order, key)
	}
	d.values[key] = value
	return true
}

// Delete removes key, reporting whether it had been present.
func (d *Document) Delete(key string) bool {
	if d.values == nil {
		return false
	}
	if _, exists := d.values[key]; !exists {
		return false
	}
	delete(d.values, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the document's keys in first-set order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Comments returns the document's standalone comment lines, in the order
// they were added.
func (d *Document) Comments() []string {
	out := make([]string, len(d.comments))
	copy(out, d.comments)
	return out
}

func (d *Document) addCommentNormalized(normalized string) bool {
	for _, c := range d.comments {
		if c == normalized {
			return false
		}
	}
	d.comments = append(d.comments, normalized)
	return true
}

// AddComment appends text as a standalone comment line, normalizing a
// missing leading '#', and reports whether it was new.
func (d *Document) AddComment(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "#") {
		trimmed = "# " + trimmed
	}
	return d.addCommentNormalized(trimmed)
}

// EnsureCommentWithTag adds text as a comment only if no existing comment
// already contains tag, reporting whether it added one.
func (d *Document) EnsureCommentWithTag(tag, text string) bool {
	for _, c := range d.comments {
		if strings.Contains(c, tag) {
			return false
		}
	}
	return d.AddComment(text)
}

// String serializes the document back to "KEY:VALUE;" lines, comments
// first, in the order the comments and keys were recorded.
func (d *Document) String() string {
	return d.serialize(false)
}

// StringWithoutDigest serializes the document with DigestKey omitted, the
// input to ComputeDigest so a document's own digest never covers itself.
func (d *Document) StringWithoutDigest() string {
	return d.serialize(true)
}

func (d *Document) serialize(omitDigest bool) string {
	var b strings.Builder
	for _, c := range d.comments {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	for _, key := range d.order {
		if omitDigest && key == DigestKey {
			continue
		}
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(d.values[key])
		b.WriteString(";\n")
	}
	return b.String()
}

// ComputeDigest returns the hex SHA-256 digest of the document's content
// with any prior digest key excluded.
func (d *Document) ComputeDigest() (string, error) {
	sum := sha256.Sum256([]byte(d.StringWithoutDigest()))
	return hex.EncodeToString(sum[:]), nil
}

// WithDigest sets doc's digest key to digest and returns the serialized
// result, embedding a session's digest into its own manifest text.
func WithDigest(doc *Document, digest string) string {
	doc.Set(DigestKey, digest)
	return doc.String()
}
