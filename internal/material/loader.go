package material

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxmesh/internal/logging"
)

type fileEntry struct {
	ID          *uint16 `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"desc"`
	Visible     *bool   `yaml:"visible"`
	Transparent *bool   `yaml:"transparent"`
	FaceStyle   string  `yaml:"face_style"`
}

type fileTable struct {
	Materials []fileEntry `yaml:"materials"`
}

// LoadFile читает таблицу материалов из YAML файла
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("открытие таблицы материалов: %w", err)
	}
	defer f.Close()

	reg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Info("Загружено %d материалов из %s", reg.Len(), path)
	return reg, nil
}

// Load разбирает YAML вида:
//
//	materials:
//	  - id: 1
//	    name: stone
//	    desc: Камень
//	    visible: true
//	    transparent: false
//	    face_style: flat
//
// Пропущенный visible считается true, transparent false.
// Неизвестный face_style даёт FaceNone и предупреждение в лог.
func Load(r io.Reader) (*Registry, error) {
	var table fileTable
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&table); err != nil && err != io.EOF {
		return nil, fmt.Errorf("разбор таблицы материалов: %w", err)
	}

	reg := NewRegistry()
	for i, entry := range table.Materials {
		if entry.ID == nil {
			return nil, fmt.Errorf("материал #%d: не задан id", i)
		}

		style, ok := ParseFaceStyle(entry.FaceStyle)
		if !ok {
			logging.Warn("Материал %d (%s): неизвестный face_style %q, используется NONE", *entry.ID, entry.Name, entry.FaceStyle)
		}

		props := Properties{
			ID:          *entry.ID,
			Name:        entry.Name,
			Description: entry.Description,
			Visible:     true,
			Transparent: false,
			Style:       style,
		}
		if entry.Visible != nil {
			props.Visible = *entry.Visible
		}
		if entry.Transparent != nil {
			props.Transparent = *entry.Transparent
		}

		if err := reg.Register(props); err != nil {
			return nil, fmt.Errorf("материал #%d: %w", i, err)
		}
	}
	return reg, nil
}
