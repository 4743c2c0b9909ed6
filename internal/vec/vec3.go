package vec

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Значение неизменяемо: все операции возвращают новый вектор.
type Vec3 struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Zero нулевой вектор
var Zero = Vec3{}

// New создаёт вектор из трёх координат
func New(x, y, z int) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Neg возвращает противоположный вектор
func (v Vec3) Neg() Vec3 {
	return Vec3{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// Dot скалярное произведение
func (v Vec3) Dot(other Vec3) int {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Volume возвращает произведение компонент (объём бокса с такими размерами)
func (v Vec3) Volume() int {
	return v.X * v.Y * v.Z
}

// ToFloat переводит вектор в формат с плавающей точкой для геометрии
func (v Vec3) ToFloat() mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// FromFloat усекает вещественный вектор до целочисленного (к нулю)
func FromFloat(f mgl32.Vec3) Vec3 {
	return Vec3{X: int(f[0]), Y: int(f[1]), Z: int(f[2])}
}

// String возвращает строковое представление вектора
func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}
