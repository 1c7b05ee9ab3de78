// Package id генерирует ULID-идентификаторы циклов мониторинга.
//
// ULID лексикографически сортируются по времени генерации, поэтому
// идентификаторы циклов удобно использовать для корреляции логов
// и упорядочивания записей без отдельного счётчика.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Сидируем PRNG из crypto/rand чтобы энтропия ULID была непредсказуемой.
	// ulid.Monotonic гарантирует возрастание идентификаторов, сгенерированных
	// в пределах одной миллисекунды.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New возвращает новый ULID в строковом виде (26 символов, Crockford base32).
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Ошибка возможна только при сбое энтропии или переводе часов назад
		panic(err)
	}
	return id.String()
}

// Timestamp извлекает время генерации из ULID-строки.
//
// Возвращает нулевое время если строка не является валидным ULID.
func Timestamp(s string) time.Time {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(id.Time()).UTC()
}

// IsValid проверяет, является ли строка валидным ULID
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
