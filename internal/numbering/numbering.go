// Пакет numbering - форматирование и разбор номеров форм.
//
// Формат первичного номера: PREFIX-YEAR-NNNNN (SF-2025-00001).
// Перегенерация добавляет суффикс версии: SF-2025-00001-v1, SF-2025-00001-v2.
//
// MaxSequence и MaxVersion находят максимум среди существующих номеров.
// Сами по себе они не защищены от конкурентной аллокации: в сервисе результат
// сканирования используется только как начальное значение счётчика
// (repository.CounterRepository), который выдаёт номера атомарно.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
)

// SequenceWidth - ширина порядкового номера в пределах года.
const SequenceWidth = 5

const versionSep = "-v"

// YearPrefix возвращает префикс номеров года: SF-2025.
func YearPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%d", prefix, year)
}

// FormatFormNumber формирует первичный номер формы.
func FormatFormNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%0*d", YearPrefix(prefix, year), SequenceWidth, seq)
}

// FormatVersion формирует номер перегенерированной формы.
func FormatVersion(base string, version int) string {
	return base + versionSep + strconv.Itoa(version)
}

// BaseNumber отбрасывает суффикс версии, если он есть.
func BaseNumber(number string) string {
	idx := strings.LastIndex(number, versionSep)
	if idx == -1 {
		return number
	}
	if _, err := strconv.Atoi(number[idx+len(versionSep):]); err != nil {
		return number
	}
	return number[:idx]
}

// ParseSequence извлекает порядковый номер из номера с годовым префиксом.
// Номера других годов и перегенерированные номера не учитываются.
func ParseSequence(number, yearPrefix string) (int, bool) {
	rest, ok := strings.CutPrefix(number, yearPrefix+"-")
	if !ok || len(rest) != SequenceWidth {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseVersion извлекает номер версии из номера с указанной базой.
// Сам базовый номер имеет версию 0.
func ParseVersion(number, base string) (int, bool) {
	if number == base {
		return 0, true
	}
	rest, ok := strings.CutPrefix(number, base+versionSep)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MaxSequence возвращает максимальный порядковый номер среди существующих (0, если нет).
func MaxSequence(existing []string, yearPrefix string) int {
	maxSeq := 0
	for _, n := range existing {
		if seq, ok := ParseSequence(n, yearPrefix); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq
}

// MaxVersion возвращает максимальную версию среди номеров с базой base (0, если нет).
func MaxVersion(existing []string, base string) int {
	maxVer := 0
	for _, n := range existing {
		if v, ok := ParseVersion(n, base); ok && v > maxVer {
			maxVer = v
		}
	}
	return maxVer
}
