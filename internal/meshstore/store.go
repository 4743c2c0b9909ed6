// Package meshstore сохраняет построенную геометрию чанков в BadgerDB.
// Хранится только результат мешинга, сама воксельная сетка не сохраняется.
package meshstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/mesher"
	"github.com/annel0/voxmesh/internal/vec"
)

var (
	// ErrNotReady хранилище закрыто
	ErrNotReady = errors.New("хранилище не готово")
	// ErrNotFound для корня нет сохранённой геометрии
	ErrNotFound = errors.New("геометрия чанка не найдена")
)

const (
	keyPrefix = "mesh:"

	formatJSON byte = 'j'
	formatZstd byte = 'z'
)

// Record сохранённая геометрия одного чанка
type Record struct {
	BuildID  string      `json:"build_id"`
	Root     vec.Vec3    `json:"root"`
	Size     vec.Vec3    `json:"size"`
	Surfaces int         `json:"surfaces"`
	Faces    int         `json:"faces"`
	BuiltAt  time.Time   `json:"built_at"`
	Mesh     mesher.Mesh `json:"mesh"`
}

// RecordFromChunk снимок построенного чанка
func RecordFromChunk(c *mesher.Chunk, buildID string) Record {
	return Record{
		BuildID:  buildID,
		Root:     c.Root(),
		Size:     c.Size(),
		Surfaces: c.SurfaceCount(),
		Faces:    c.FaceCount(),
		BuiltAt:  time.Now().UTC(),
		Mesh:     c.Mesh(),
	}
}

// NewBuildID идентификатор прогона мешинга
func NewBuildID() string {
	return uuid.New().String()
}

// Store хранилище геометрии
type Store struct {
	db       *badger.DB
	dbPath   string
	mutex    sync.RWMutex
	isReady  bool
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

type options struct {
	compress bool
	inMemory bool
}

// Option настройка хранилища
type Option func(*options)

// WithCompression включает zstd для новых записей (по умолчанию включено)
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compress = enabled }
}

// InMemory открывает BadgerDB без диска (для тестов и одноразовых прогонов)
func InMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// Open открывает хранилище в dataPath/meshes
func Open(dataPath string, opts ...Option) (*Store, error) {
	o := options{compress: true}
	for _, opt := range opts {
		opt(&o)
	}

	var dbPath string
	var bopts badger.Options
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath = filepath.Join(dataPath, "meshes")
		bopts = badger.DefaultOptions(dbPath)
	}
	bopts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	if o.inMemory {
		logging.GetStorageLogger().Debug("BadgerDB открыта в памяти")
	} else {
		logging.GetStorageLogger().Info("BadgerDB открыта: %s (сжатие %v)", dbPath, o.compress)
	}

	return &Store{
		db:       db,
		dbPath:   dbPath,
		isReady:  true,
		compress: o.compress,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// Close закрывает хранилище; повторный вызов безопасен
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

func chunkKey(root vec.Vec3) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%d", keyPrefix, root.X, root.Y, root.Z))
}

func parseKey(key []byte) (vec.Vec3, error) {
	var v vec.Vec3
	if _, err := fmt.Sscanf(string(key), keyPrefix+"%d:%d:%d", &v.X, &v.Y, &v.Z); err != nil {
		return vec.Vec3{}, fmt.Errorf("ключ %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации геометрии: %w", err)
	}
	if !s.compress {
		return append([]byte{formatJSON}, data...), nil
	}
	return s.encoder.EncodeAll(data, []byte{formatZstd}), nil
}

func (s *Store) decode(val []byte) (*Record, error) {
	if len(val) == 0 {
		return nil, fmt.Errorf("пустое значение")
	}

	data := val[1:]
	switch val[0] {
	case formatJSON:
	case formatZstd:
		var err error
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("ошибка распаковки: %w", err)
		}
	default:
		return nil, fmt.Errorf("неизвестный формат записи %q", val[0])
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации геометрии: %w", err)
	}
	return &rec, nil
}

// Save сохраняет запись по её корню, перезаписывая прежнюю
func (s *Store) Save(rec Record) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	data, err := s.encode(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(rec.Root), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// SaveChunks сохраняет все чанки одним пакетом. Записи прежних сборок,
// корней которых нет среди chunks, удаляются в том же пакете.
func (s *Store) SaveChunks(chunks []*mesher.Chunk, buildID string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	existing, err := s.storedKeys()
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range chunks {
		data, err := s.encode(RecordFromChunk(c, buildID))
		if err != nil {
			return err
		}
		key := chunkKey(c.Root())
		if err := wb.Set(key, data); err != nil {
			return fmt.Errorf("чанк %s: %w", c.Root(), err)
		}
		delete(existing, string(key))
	}

	for key := range existing {
		if err := wb.Delete([]byte(key)); err != nil {
			return fmt.Errorf("удаление %s: %w", key, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	logging.GetStorageLogger().Debug("Сохранено %d чанков, удалено устаревших %d, сборка %s", len(chunks), len(existing), buildID)
	return nil
}

// storedKeys ключи всех сохранённых чанков
func (s *Store) storedKeys() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys[string(it.Item().KeyCopy(nil))] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}
	return keys, nil
}

// Load возвращает геометрию чанка с корнем root
func (s *Store) Load(root vec.Vec3) (*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrNotReady
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(root))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return s.decode(data)
}

// Delete удаляет геометрию чанка; отсутствие записи не является ошибкой
func (s *Store) Delete(root vec.Vec3) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(root))
	})
}

// Roots возвращает корни всех сохранённых чанков в порядке z, y, x
func (s *Store) Roots() ([]vec.Vec3, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrNotReady
	}

	keys, err := s.storedKeys()
	if err != nil {
		return nil, err
	}

	roots := make([]vec.Vec3, 0, len(keys))
	for key := range keys {
		root, err := parseKey([]byte(key))
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}

	sort.Slice(roots, func(i, j int) bool {
		a, b := roots[i], roots[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return roots, nil
}
