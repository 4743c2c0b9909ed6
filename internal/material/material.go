// Package material описывает свойства материалов вокселей и реестр,
// через который мешер узнаёт видимость, прозрачность и стиль граней.
package material

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateMaterial возвращается при повторной регистрации кода
var ErrDuplicateMaterial = errors.New("material already registered")

// FaceStyle стиль построения геометрии поверхности
type FaceStyle uint8

const (
	FaceNone FaceStyle = iota
	FaceFlat
	FaceBeveledJoin
	FacePile
	FaceChamfer
	FaceGlob
)

var faceStyleNames = [...]string{
	FaceNone:        "NONE",
	FaceFlat:        "FLAT",
	FaceBeveledJoin: "BEVELEDJOIN",
	FacePile:        "PILE",
	FaceChamfer:     "CHAMFER",
	FaceGlob:        "GLOB",
}

func (s FaceStyle) String() string {
	if int(s) < len(faceStyleNames) {
		return faceStyleNames[s]
	}
	return fmt.Sprintf("FaceStyle(%d)", uint8(s))
}

// ParseFaceStyle разбирает имя стиля без учёта регистра.
// Второе значение false, если имя не распознано (стиль тогда FaceNone).
func ParseFaceStyle(name string) (FaceStyle, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "")
	for i, n := range faceStyleNames {
		if n == normalized {
			return FaceStyle(i), true
		}
	}
	return FaceNone, false
}

// Properties свойства одного материала
type Properties struct {
	ID          uint16    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Visible     bool      `json:"visible"`
	Transparent bool      `json:"transparent"`
	Style       FaceStyle `json:"style"`
}

// Lookup источник свойств материалов. Неизвестный код даёт false.
type Lookup interface {
	Lookup(code uint16) (Properties, bool)
}

// Registry потокобезопасная таблица материалов
type Registry struct {
	mu        sync.RWMutex
	materials map[uint16]Properties
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{materials: make(map[uint16]Properties)}
}

// Register добавляет материал; повторный код является ошибкой
func (r *Registry) Register(p Properties) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.materials[p.ID]; exists {
		return fmt.Errorf("%w: id %d", ErrDuplicateMaterial, p.ID)
	}
	r.materials[p.ID] = p
	return nil
}

// Set добавляет или заменяет материал
func (r *Registry) Set(p Properties) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials[p.ID] = p
}

// Lookup возвращает свойства материала
func (r *Registry) Lookup(code uint16) (Properties, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.materials[code]
	return p, ok
}

// Len количество материалов
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.materials)
}

// Codes возвращает отсортированный список кодов
func (r *Registry) Codes() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]uint16, 0, len(r.materials))
	for code := range r.materials {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
