package exchange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedExchange возвращается фабрикой для неизвестного имени биржи
var ErrUnsupportedExchange = errors.New("unsupported exchange")

// constructors сопоставляет имя биржи с конструктором адаптера.
// Подключение новой биржи сводится к новой строке в этой map
var constructors = map[string]func() Exchange{
	"bybit":  func() Exchange { return NewBybit() },
	"okx":    func() Exchange { return NewOKX() },
	"bitget": func() Exchange { return NewBitget() },
}

// NewExchange создает адаптер биржи по имени, регистр не важен
func NewExchange(name string) (Exchange, error) {
	if build, ok := constructors[strings.ToLower(name)]; ok {
		return build(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
}

// IsSupported сообщает, есть ли адаптер для названной биржи
func IsSupported(name string) bool {
	_, ok := constructors[strings.ToLower(name)]
	return ok
}

// SupportedExchanges возвращает отсортированные имена бирж с адаптерами
func SupportedExchanges() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
