// Package media defines how watched files are identified: the supported
// format allow-list, the size+mtime fingerprint used to detect content
// changes without reading file bodies, and the derivation of transcript
// paths from media paths.
//
// A path whose extension is not in the allow-list never enters the tracking
// model; filtering happens here so every other package can assume it only
// ever sees supported media.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TranscriptExt is the extension of generated transcript files.
const TranscriptExt = ".txt"

// DefaultExtensions lists the media formats handled when the configuration
// does not override them.
var DefaultExtensions = []string{"mp3", "wav", "mp4", "mkv", "mov", "flv", "aac", "m4a"}

// Fingerprint is a cheap content signature: file size plus modification time.
// Two files with equal fingerprints are treated as having identical content.
type Fingerprint struct {
	Size    int64
	ModTime int64 // unix nanoseconds
}

// String renders the fingerprint in its persisted "size:mtime" form.
func (f Fingerprint) String() string {
	return strconv.FormatInt(f.Size, 10) + ":" + strconv.FormatInt(f.ModTime, 10)
}

// IsZero reports whether the fingerprint carries no observation.
func (f Fingerprint) IsZero() bool {
	return f.Size == 0 && f.ModTime == 0
}

// ParseFingerprint reverses Fingerprint.String.
func ParseFingerprint(value string) (Fingerprint, error) {
	sizeStr, mtimeStr, ok := strings.Cut(value, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("parse fingerprint %q: missing separator", value)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint size: %w", err)
	}
	mtime, err := strconv.ParseInt(mtimeStr, 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint mtime: %w", err)
	}
	return Fingerprint{Size: size, ModTime: mtime}, nil
}

// Stat computes the current on-disk fingerprint for path.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("fingerprint %q: is a directory", path)
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

// FormatSet is the allow-list predicate over media file extensions.
type FormatSet map[string]struct{}

// NewFormatSet builds a FormatSet from extension names. Leading dots and
// case are normalized, so "MP3", ".mp3", and "mp3" are equivalent.
func NewFormatSet(extensions []string) FormatSet {
	set := make(FormatSet, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		normalized = strings.TrimPrefix(normalized, ".")
		if normalized == "" {
			continue
		}
		set["."+normalized] = struct{}{}
	}
	return set
}

// Supported reports whether path carries a media extension from the set.
func (s FormatSet) Supported(path string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns the set's extensions with leading dots, in no
// particular order.
func (s FormatSet) Extensions() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	return out
}

// IsTranscript reports whether path looks like a generated transcript.
func IsTranscript(path string) bool {
	return strings.EqualFold(filepath.Ext(path), TranscriptExt)
}

// TranscriptPath derives the transcript location for a media file: same
// directory, same base name, TranscriptExt extension.
func TranscriptPath(mediaPath string) string {
	ext := filepath.Ext(mediaPath)
	return strings.TrimSuffix(mediaPath, ext) + TranscriptExt
}

// SourceForTranscript resolves the media file a transcript belongs to by
// probing each supported extension next to it. Returns "" when no media
// file exists for the transcript.
func (s FormatSet) SourceForTranscript(transcriptPath string) string {
	base := strings.TrimSuffix(transcriptPath, filepath.Ext(transcriptPath))
	for ext := range s {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
