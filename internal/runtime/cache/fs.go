package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shamaton/msgpack/v2"
	"golang.org/x/sys/unix"

	"github.com/CosmWasm/wasmvm/v2/types"
)

const (
	lockFileName = "exclusive.lock"
	wasmDirName  = "state/wasm"
	modulesDir   = "cache/modules"
)

// manifest records the provenance of a compiled artifact. It is stored
// msgpack array-encoded next to the engine's artifacts. A manifest whose
// tag or checksum does not match what the reader expects is treated as a
// miss, never an error.
type manifest struct {
	Tag      string
	Checksum []byte
	CodeSize uint64
}

// fsStore is the durable bottom tier: raw code blobs plus compiled-artifact
// manifests under one exclusively locked base directory.
type fsStore struct {
	baseDir string
	tag     string
	lock    *os.File
	logger  zerolog.Logger
}

func newFsStore(baseDir, tag string, logger zerolog.Logger) (*fsStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, types.CacheIOError{Op: "create base directory", Err: err}
	}

	lock, err := os.OpenFile(filepath.Join(baseDir, lockFileName), os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, types.CacheIOError{Op: "open exclusive.lock", Err: err}
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		return nil, fmt.Errorf("could not lock exclusive.lock; is another VM running? %w", err)
	}

	s := &fsStore{baseDir: baseDir, tag: tag, lock: lock, logger: logger}
	for _, dir := range []string{s.wasmDir(), s.manifestDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.close()
			return nil, types.CacheIOError{Op: "create cache directory", Err: err}
		}
	}
	return s, nil
}

func (s *fsStore) wasmDir() string {
	return filepath.Join(s.baseDir, filepath.FromSlash(wasmDirName))
}

func (s *fsStore) manifestDir() string {
	return filepath.Join(s.baseDir, filepath.FromSlash(modulesDir), s.tag)
}

func (s *fsStore) codePath(checksum types.Checksum) string {
	return filepath.Join(s.wasmDir(), checksum.String()+".wasm")
}

func (s *fsStore) manifestPath(checksum types.Checksum) string {
	return filepath.Join(s.manifestDir(), checksum.String()+".manifest")
}

// storeCode writes the blob atomically: a temp file in the target directory
// renamed into place, so readers never observe a partial write.
func (s *fsStore) storeCode(checksum types.Checksum, code []byte) error {
	return s.writeAtomic(s.wasmDir(), s.codePath(checksum), code, "store code")
}

func (s *fsStore) loadCode(checksum types.Checksum) ([]byte, error) {
	code, err := os.ReadFile(s.codePath(checksum))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.NoSuchCodeError{Checksum: checksum}
	}
	if err != nil {
		return nil, types.CacheIOError{Op: "load code", Err: err}
	}
	return code, nil
}

func (s *fsStore) hasCode(checksum types.Checksum) bool {
	_, err := os.Stat(s.codePath(checksum))
	return err == nil
}

func (s *fsStore) removeCode(checksum types.Checksum) error {
	err := os.Remove(s.codePath(checksum))
	if errors.Is(err, fs.ErrNotExist) {
		return types.NoSuchCodeError{Checksum: checksum}
	}
	if err != nil {
		return types.CacheIOError{Op: "remove code", Err: err}
	}
	return nil
}

func (s *fsStore) storeManifest(checksum types.Checksum, codeSize uint64) error {
	m := manifest{Tag: s.tag, Checksum: checksum.Bytes(), CodeSize: codeSize}
	raw, err := msgpack.MarshalAsArray(m)
	if err != nil {
		return types.CacheIOError{Op: "encode manifest", Err: err}
	}
	return s.writeAtomic(s.manifestDir(), s.manifestPath(checksum), raw, "store manifest")
}

// loadManifest reports whether a matching artifact manifest exists. Any
// mismatch or decode problem is a miss, logged at debug level.
func (s *fsStore) loadManifest(checksum types.Checksum) bool {
	raw, err := os.ReadFile(s.manifestPath(checksum))
	if err != nil {
		return false
	}
	var m manifest
	if err := msgpack.UnmarshalAsArray(raw, &m); err != nil {
		s.logger.Debug().Str("checksum", checksum.String()).Err(err).Msg("undecodable module manifest, recompiling")
		return false
	}
	if m.Tag != s.tag {
		s.logger.Debug().Str("checksum", checksum.String()).Str("manifest_tag", m.Tag).Str("want_tag", s.tag).Msg("module manifest from another engine configuration, recompiling")
		return false
	}
	recorded, err := types.NewChecksum(m.Checksum)
	if err != nil || recorded != checksum {
		s.logger.Debug().Str("checksum", checksum.String()).Msg("module manifest checksum mismatch, recompiling")
		return false
	}
	return true
}

func (s *fsStore) removeManifest(checksum types.Checksum) {
	if err := os.Remove(s.manifestPath(checksum)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug().Str("checksum", checksum.String()).Err(err).Msg("could not remove module manifest")
	}
}

func (s *fsStore) writeAtomic(dir, path string, data []byte, op string) error {
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return types.CacheIOError{Op: op, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.CacheIOError{Op: op, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.CacheIOError{Op: op, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return types.CacheIOError{Op: op, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return types.CacheIOError{Op: op, Err: err}
	}
	return nil
}

func (s *fsStore) close() error {
	if s.lock == nil {
		return nil
	}
	err := unix.Flock(int(s.lock.Fd()), unix.LOCK_UN)
	closeErr := s.lock.Close()
	s.lock = nil
	if err != nil {
		return types.CacheIOError{Op: "unlock exclusive.lock", Err: err}
	}
	if closeErr != nil {
		return types.CacheIOError{Op: "close exclusive.lock", Err: closeErr}
	}
	return nil
}
