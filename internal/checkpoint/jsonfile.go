package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"heiten-crawler/internal/models"
)

// The history file keeps TinyDB's document layout, one document per query:
//
//	{"_default": {"1": {"key": "【閉店】", "value": {...}}}}
const defaultTable = "_default"

type JSONStore struct {
	path    string
	entries map[string]*jsonDoc
	nextID  int
}

type jsonDoc struct {
	id    int
	Entry models.Entry
}

func OpenJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint path is empty")
	}
	s := &JSONStore{path: path, entries: map[string]*jsonDoc{}, nextID: 1}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var tables map[string]map[string]models.Entry
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for idStr, e := range tables[defaultTable] {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("decode %s: bad document id %q", path, idStr)
		}
		s.entries[e.Key] = &jsonDoc{id: id, Entry: e}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return s, nil
}

func (s *JSONStore) Get(ctx context.Context, key string) (models.Entry, bool, error) {
	doc, ok := s.entries[key]
	if !ok {
		return models.Entry{}, false, nil
	}
	return doc.Entry, true, nil
}

func (s *JSONStore) Upsert(ctx context.Context, key string, rec models.Record) error {
	if doc, ok := s.entries[key]; ok {
		doc.Entry.Value = rec
	} else {
		s.entries[key] = &jsonDoc{id: s.nextID, Entry: models.Entry{Key: key, Value: rec}}
		s.nextID++
	}
	return s.save()
}

func (s *JSONStore) Close() error { return nil }

// save rewrites the whole file through a temp file and rename.
func (s *JSONStore) save() error {
	table := make(map[string]models.Entry, len(s.entries))
	for _, d := range s.entries {
		table[strconv.Itoa(d.id)] = d.Entry
	}
	data, err := json.Marshal(map[string]map[string]models.Entry{defaultTable: table})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
