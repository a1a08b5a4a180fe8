package cache

import (
	"bytes"
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmgilman/go/fs/core"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
)

// Encoding is the at-rest representation of a blob.
type Encoding string

// Supported encodings.
const (
	EncodingIdentity Encoding = "identity"
	EncodingZstd     Encoding = "zstd"
)

const (
	tempDirName  = ".temp"
	blobsDirName = "blobs"
)

// ErrCorrupted is returned when a blob fails its integrity check.
var ErrCorrupted = errors.New("cache blob is corrupted")

// Storage provides atomic, checksummed blob files on a core.FS.
type Storage struct {
	fs       core.FS
	rootPath string
	tempDir  string

	// globalLock serializes filesystem calls; in-memory filesystems are
	// not safe for concurrent mutation.
	globalLock sync.Mutex

	allocEnc sync.Once
	allocDec sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewStorage creates the root and temp directories and returns a Storage.
func NewStorage(fsys core.FS, rootPath string) (*Storage, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if rootPath == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	tempDir := path.Join(rootPath, tempDirName)
	if err := fsys.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := fsys.MkdirAll(path.Join(rootPath, blobsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &Storage{
		fs:       fsys,
		rootPath: rootPath,
		tempDir:  tempDir,
	}, nil
}

// BlobPath returns the path of a blob relative to the storage root.
// Blobs are sharded by the first two characters of the digest.
func BlobPath(digest string) string {
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(blobsDirName, shard, digest)
}

func (s *Storage) encoder() *zstd.Encoder {
	s.allocEnc.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(err)
		}
		s.enc = enc
	})
	return s.enc
}

func (s *Storage) decoder() *zstd.Decoder {
	s.allocDec.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(err)
		}
		s.dec = dec
	})
	return s.dec
}

// WriteAtomically writes data under p through a uniquely named temp file
// and a rename, so readers see either the old file or the complete new one.
// It returns the number of bytes written to disk.
func (s *Storage) WriteAtomically(ctx context.Context, p string, data []byte, enc Encoding) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	payload := data
	switch enc {
	case EncodingIdentity, "":
		enc = EncodingIdentity
	case EncodingZstd:
		payload = s.encoder().EncodeAll(data, nil)
	default:
		return 0, fmt.Errorf("unsupported encoding %q", enc)
	}

	fullPath := path.Join(s.rootPath, p)
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.fs.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %q: %w", fullPath, err)
	}

	tempFile := path.Join(s.tempDir, uuid.NewString())
	header := checksum(data) + " " + string(enc) + "\n"

	if err := s.writeFile(tempFile, []byte(header), payload); err != nil {
		_ = s.fs.Remove(tempFile)
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tempFile, fullPath); err != nil {
		_ = s.fs.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temp file to %q: %w", fullPath, err)
	}

	return int64(len(header) + len(payload)), nil
}

func (s *Storage) writeFile(name string, header, payload []byte) error {
	file, err := s.fs.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create file %q: %w", name, err)
	}
	if _, err := file.Write(header); err != nil {
		file.Close()
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if syncer, ok := file.(core.Syncer); ok {
		if err := syncer.Sync(); err != nil {
			file.Close()
			return fmt.Errorf("failed to sync file: %w", err)
		}
	}
	return file.Close()
}

// ReadWithIntegrity reads the blob at p, decodes it and verifies its
// checksum. A missing file yields an error matching fs.ErrNotExist and a
// failed check yields ErrCorrupted.
func (s *Storage) ReadWithIntegrity(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	fullPath := path.Join(s.rootPath, p)
	s.globalLock.Lock()
	raw, err := s.fs.ReadFile(fullPath)
	s.globalLock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", fullPath, err)
	}

	header, payload, ok := bytes.Cut(raw, []byte("\n"))
	if !ok {
		return nil, ErrCorrupted
	}
	expected, enc, ok := strings.Cut(string(header), " ")
	if !ok {
		return nil, ErrCorrupted
	}

	data := payload
	switch Encoding(enc) {
	case EncodingIdentity:
	case EncodingZstd:
		data, err = s.decoder().DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
	default:
		return nil, ErrCorrupted
	}

	if !verify(expected, data) {
		return nil, ErrCorrupted
	}
	return data, nil
}

// Exists reports whether a file exists under p.
func (s *Storage) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}
	s.globalLock.Lock()
	exists, err := s.fs.Exists(path.Join(s.rootPath, p))
	s.globalLock.Unlock()
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return exists, nil
}

// Remove deletes the file under p. Removing a missing file is not an error.
func (s *Storage) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	fullPath := path.Join(s.rootPath, p)
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.fs.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file %q: %w", fullPath, err)
	}
	return nil
}

// ListBlobs returns the digests of every blob file on disk.
func (s *Storage) ListBlobs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	root := path.Join(s.rootPath, blobsDirName)
	var digests []string
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	err := s.fs.Walk(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			digests = append(digests, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return digests, nil
}

// CleanupTempFiles removes leftovers from interrupted writes.
func (s *Storage) CleanupTempFiles(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	entries, err := s.fs.ReadDir(s.tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read temp directory: %w", err)
	}
	for _, entry := range entries {
		p := path.Join(s.tempDir, entry.Name())
		if err := s.fs.RemoveAll(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove temp file %q: %w", p, err)
		}
	}
	return nil
}

// RemoveAllBlobs deletes every blob file.
func (s *Storage) RemoveAllBlobs(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	root := path.Join(s.rootPath, blobsDirName)
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.fs.RemoveAll(root); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blobs: %w", err)
	}
	if err := s.fs.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to recreate blobs directory: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	return digest.FromBytes(data).String()
}

func verify(expected string, data []byte) bool {
	d, err := digest.Parse(expected)
	if err != nil {
		return false
	}
	v := d.Verifier()
	_, _ = v.Write(data)
	return v.Verified()
}
