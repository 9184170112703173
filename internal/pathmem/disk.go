package pathmem

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/nav-core/internal/planner"
)

const pathKeyPrefix = "path:"

// diskStore — BadgerDB-персистентность памяти маршрутов. Маршруты
// сериализуются в JSON и сжимаются zstd: типичный маршрут состоит из
// повторяющихся структур точек и жмётся в разы.
type diskStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// openDiskStore открывает хранилище в каталоге dataPath/paths
func openDiskStore(dataPath string) (*diskStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataPath, "paths"))
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd-энкодер: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd-декодер: %w", err)
	}

	return &diskStore{db: db, encoder: encoder, decoder: decoder}, nil
}

func (d *diskStore) close() error {
	d.encoder.Close()
	d.decoder.Close()
	return d.db.Close()
}

// save сохраняет маршрут
func (d *diskStore) save(p *planner.Path) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("ошибка сериализации маршрута %s: %w", p.ID, err)
	}
	blob := d.encoder.EncodeAll(data, nil)

	key := []byte(pathKeyPrefix + p.ID)
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, blob)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// remove удаляет маршрут
func (d *diskStore) remove(pathID string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pathKeyPrefix + pathID))
	})
}

// loadAll читает все сохранённые маршруты
func (d *diskStore) loadAll() ([]*planner.Path, error) {
	var paths []*planner.Path

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(pathKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(blob []byte) error {
				data, err := d.decoder.DecodeAll(blob, nil)
				if err != nil {
					return fmt.Errorf("ошибка распаковки маршрута: %w", err)
				}
				var p planner.Path
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("ошибка десериализации маршрута: %w", err)
				}
				paths = append(paths, &p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return paths, nil
}
