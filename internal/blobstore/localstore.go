package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore - хранилище в каталоге на локальном диске.
// Файлы раздаются внешним веб-сервером по publicURL.
type LocalStore struct {
	dataDir   string
	publicURL string
	logger    *slog.Logger
}

// NewLocalStore создаёт хранилище и при необходимости каталог dataDir.
func NewLocalStore(dataDir, publicURL string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &LocalStore{
		dataDir:   dataDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger.With(slog.String("component", "local_store")),
	}, nil
}

// Upload записывает объект: temp файл → SHA-256 на лету → fsync → atomic rename.
func (s *LocalStore) Upload(ctx context.Context, req UploadRequest) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storageName(req.FileName, req.UploadedBy)
	fullPath := filepath.Join(s.dataDir, key)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), bytes.NewReader(req.Data))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	s.logger.Debug("Документ сохранён", slog.String("key", key), slog.Int64("size", size))

	return &Object{
		Key:      key,
		URL:      s.publicURL + "/" + key,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Delete удаляет файлы. Отсутствующий файл ошибкой не считается.
func (s *LocalStore) Delete(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.deleteOne(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *LocalStore) deleteOne(key string) error {
	// Ключ - имя файла в dataDir, пути за его пределами не принимаются
	if key == "" || filepath.Base(key) != key {
		return fmt.Errorf("недопустимый ключ объекта %q", key)
	}
	err := os.Remove(filepath.Join(s.dataDir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// Exists проверяет наличие объекта.
func (s *LocalStore) Exists(key string) bool {
	_, err := os.Stat(filepath.Join(s.dataDir, filepath.Base(key)))
	return err == nil
}

// storageName генерирует имя файла: {name}_{user}_{timestamp}_{uuid}.{ext}
func storageName(fileName, uploadedBy string) string {
	ext := filepath.Ext(fileName)
	name := sanitize(strings.TrimSuffix(fileName, ext))
	user := sanitize(uploadedBy)

	if len(name) > 60 {
		name = name[:60]
	}
	if len(user) > 20 {
		user = user[:20]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]
	if ext != "" {
		return fmt.Sprintf("%s_%s_%s_%s.%s", name, user, ts, uid, sanitize(ext[1:]))
	}
	return fmt.Sprintf("%s_%s_%s_%s", name, user, ts, uid)
}

// sanitize оставляет только латиницу, цифры, дефис, подчёркивание и точку.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
