package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Blob directories under the media root.
const (
	ProfilePictureDir = "profile_pictures"
	PostImageDir      = "post_images"
)

// Image is a decoded upload ready to be written.
type Image struct {
	Data []byte
	Ext  string
}

// Store keeps image blobs on the local filesystem.
type Store struct {
	root     string
	baseURL  string
	maxBytes int
	verify   bool
}

// Options tunes upload checks.
type Options struct {
	MaxBytes      int  // 0 disables the size cap
	VerifyContent bool // require bytes to decode as an image
}

// NewStore creates a Store rooted at root, creating the directory if needed.
// baseURL is the public prefix blobs are served under.
func NewStore(root, baseURL string, opts Options) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{
		root:     abs,
		baseURL:  baseURL,
		maxBytes: opts.MaxBytes,
		verify:   opts.VerifyContent,
	}, nil
}

// Root returns the absolute media directory.
func (s *Store) Root() string {
	return s.root
}

// Prepare decodes a data-URI and applies the store's upload checks. No file
// is written.
func (s *Store) Prepare(dataURI string) (Image, error) {
	data, ext, err := Decode(dataURI)
	if err != nil {
		return Image{}, err
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit is %d", ErrInvalidImageData, len(data), s.maxBytes)
	}
	if s.verify {
		if _, err := Sniff(data); err != nil {
			return Image{}, err
		}
	}
	return Image{Data: data, Ext: ext}, nil
}

// Save writes img under dir and returns the blob name relative to the root.
// The file name is derived from owner (a username or post title) and is
// slugified so it can never contain separators or dot segments.
func (s *Store) Save(dir, owner string, img Image) (string, error) {
	base := Slugify(owner)
	if base == "" {
		base = "image"
	}
	if len(base) > 60 {
		base = strings.TrimRight(base[:60], "-")
	}
	name := path.Join(dir, fmt.Sprintf("%s_%s.%s", base, uuid.NewString()[:8], img.Ext))

	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := f.Write(img.Data); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return name, nil
}

// Read returns the bytes of a stored blob.
func (s *Store) Read(name string) ([]byte, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Remove deletes a blob. Missing blobs are not an error.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// URL returns the public URL of a blob, or "" when name is empty.
func (s *Store) URL(name string) string {
	if name == "" {
		return ""
	}
	return s.baseURL + name
}

// DataURI renders a stored blob as a data-URI. A missing or unreadable blob
// yields "" so that read endpoints keep working; the failure is logged.
func (s *Store) DataURI(name string) string {
	if name == "" {
		return ""
	}
	data, err := s.Read(name)
	if err != nil {
		log.Warn().Err(err).Str("blob", name).Msg("Could not read image blob, omitting it from the response")
		return ""
	}
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return Encode(data, ext)
}

// Walk calls fn for every regular file under the media root with its blob
// name and modification time.
func (s *Store) Walk(fn func(name string, modTime time.Time) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info.ModTime())
	})
}

// resolve maps a blob name to an absolute path inside the root, refusing
// anything that would escape it.
func (s *Store) resolve(name string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return full, nil
}

// Slugify converts a title or username to a file-name-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
