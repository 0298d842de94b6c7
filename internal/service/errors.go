// Пакет service - бизнес-логика генерации документов бронирования.
package service

import (
	"errors"

	"github.com/bigkaa/labbooking/document-module/internal/composer"
)

// Ошибки сервисного слоя. Обработчики HTTP сопоставляют их с кодами ответа.
var (
	// ErrNotFound - бронирование или форма не найдены
	ErrNotFound = errors.New("не найдено")
	// ErrConflict - форма уже существует или параллельная перегенерация успела раньше
	ErrConflict = errors.New("конфликт")
	// ErrPrecondition - статус бронирования не допускает генерацию
	ErrPrecondition = errors.New("предусловие не выполнено")
	// ErrComposition - данные бронирования не позволяют собрать документы
	ErrComposition = composer.ErrComposition
	// ErrArtifact - не удалось отрендерить или загрузить обязательный документ
	ErrArtifact = errors.New("ошибка формирования документа")
	// ErrValidation - некорректные входные параметры
	ErrValidation = errors.New("ошибка валидации")
)
