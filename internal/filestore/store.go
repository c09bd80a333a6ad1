// Package filestore keeps one JSON document per room on the local
// filesystem. Writes go to a temporary file that is renamed over the
// canonical document, and the previous document is kept as a backup that
// Load falls back to when the canonical one can't be read.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rpggio/tallyroom/internal/domain/counter"
	"github.com/rpggio/tallyroom/internal/repository"
	"github.com/rpggio/tallyroom/internal/room"
)

const (
	tmpSuffix    = ".tmp"
	backupSuffix = ".backup"
)

var _ repository.RecoverableRoomRepository = (*Store)(nil)

// Store implements counter.Repository on top of a directory of documents.
type Store struct {
	dir    string
	logger *slog.Logger

	// rename moves the staged document into place. Tests swap it to
	// simulate a crash around the rename.
	rename func(oldpath, newpath string) error
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, logger: logger, rename: os.Rename}, nil
}

// Path returns the canonical document path for a room.
func (s *Store) Path(roomKey string) (string, error) {
	if roomKey == "" || room.Resolve(roomKey) != roomKey {
		return "", fmt.Errorf("%w: room key %q", repository.ErrInvalidInput, roomKey)
	}
	return filepath.Join(s.dir, "room-"+roomKey+".json"), nil
}

// Load reads a room's document. A missing document is initialised and
// persisted. An unreadable or undecodable one is replaced by the backup if
// there is a usable one, and by a fresh document otherwise. Documents that
// decode but have missing or mistyped fields are coerced field by field.
func (s *Store) Load(ctx context.Context, roomKey string) (*counter.RoomState, error) {
	path, err := s.Path(roomKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		state := counter.NewRoomState(roomKey)
		if err := s.Persist(ctx, roomKey, state); err != nil {
			return nil, fmt.Errorf("initializing room: %w", err)
		}
		return state, nil
	}
	if err != nil {
		return s.recoverOrReset(ctx, roomKey, path, fmt.Errorf("%w: %v", counter.ErrParseFailure, err))
	}

	doc, err := counter.DecodeDocument(data)
	if err != nil {
		return s.recoverOrReset(ctx, roomKey, path, fmt.Errorf("%w: %v", counter.ErrParseFailure, err))
	}
	return counter.Normalize(roomKey, doc), nil
}

// Recover reads the backup document for a room.
func (s *Store) Recover(_ context.Context, roomKey string) (*counter.RoomState, bool) {
	path, err := s.Path(roomKey)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path + backupSuffix)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading room backup failed", "room", roomKey, "error", err)
		}
		return nil, false
	}
	doc, err := counter.DecodeDocument(data)
	if err != nil {
		s.logger.Warn("room backup is corrupt", "room", roomKey, "error", err)
		return nil, false
	}
	return counter.Normalize(roomKey, doc), true
}

// Persist writes a room's document. The current document, when it exists
// and decodes, is copied to the backup first; the new one is staged in a
// temporary file and renamed into place. On failure the temporary file is
// removed and the error returned; the write must be treated as not applied.
func (s *Store) Persist(_ context.Context, roomKey string, state *counter.RoomState) error {
	if state == nil {
		return counter.ErrInvalidState
	}
	path, err := s.Path(roomKey)
	if err != nil {
		return err
	}
	if err := s.backup(roomKey, path); err != nil {
		return err
	}
	return s.writeAtomic(path, state)
}

func (s *Store) recoverOrReset(ctx context.Context, roomKey, path string, cause error) (*counter.RoomState, error) {
	s.logger.Warn("room document unreadable, trying backup", "room", roomKey, "error", cause)

	if state, ok := s.Recover(ctx, roomKey); ok {
		// The backup stays as is; the corrupt document is not worth keeping.
		if err := s.writeAtomic(path, state); err != nil {
			s.logger.Error("restoring room from backup failed", "room", roomKey, "error", err)
		} else {
			s.logger.Info("room restored from backup", "room", roomKey)
		}
		return state, nil
	}

	state := counter.NewRoomState(roomKey)
	if err := s.writeAtomic(path, state); err != nil {
		return nil, fmt.Errorf("resetting room: %w", err)
	}
	s.logger.Warn("room reset to a fresh document", "room", roomKey)
	return state, nil
}

func (s *Store) backup(roomKey, path string) error {
	prev, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.logger.Warn("skipping room backup, current document unreadable", "room", roomKey, "error", err)
		return nil
	}
	if !json.Valid(prev) {
		s.logger.Warn("skipping room backup, current document corrupt", "room", roomKey)
		return nil
	}
	if err := s.replaceFile(path+backupSuffix, prev); err != nil {
		return fmt.Errorf("writing room backup: %w", err)
	}
	return nil
}

func (s *Store) writeAtomic(path string, state *counter.RoomState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding room document: %w", err)
	}
	if err := s.replaceFile(path, data); err != nil {
		return fmt.Errorf("writing room document: %w", err)
	}
	return nil
}

// replaceFile stages data next to path, syncs it and renames it over path,
// so path holds either its old or its new contents.
func (s *Store) replaceFile(path string, data []byte) (err error) {
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing: %w", err)
	}
	if err = s.rename(tmp, path); err != nil {
		return fmt.Errorf("replacing: %w", err)
	}
	return nil
}
