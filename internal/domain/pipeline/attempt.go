// Пакет pipeline - конечный автомат одной попытки генерации документов.
//
// Штатный путь: composing → producing → committing → cleaning-up → notifying → done.
// aborted достижим только из composing и producing, то есть до записи в БД.
// После начала committing попытка либо коммитится, либо откатывается целиком
// (ошибка транзакции переводит попытку в failed).
package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// State - состояние попытки.
type State string

const (
	StateComposing  State = "composing"
	StateProducing  State = "producing"
	StateCommitting State = "committing"
	StateCleaningUp State = "cleaning-up"
	StateNotifying  State = "notifying"
	StateDone       State = "done"
	StateAborted    State = "aborted"
	// StateFailed - транзакция откатилась; загруженные объекты остались сиротами
	StateFailed State = "failed"
)

// validTransitions - матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateComposing:  {StateProducing: true, StateAborted: true},
	StateProducing:  {StateCommitting: true, StateAborted: true},
	StateCommitting: {StateCleaningUp: true, StateFailed: true},
	StateCleaningUp: {StateNotifying: true},
	StateNotifying:  {StateDone: true},
	StateDone:       {},
	StateAborted:    {},
	StateFailed:     {},
}

// TransitionRecord - запись о переходе.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Attempt - состояние одной попытки генерации/перегенерации.
type Attempt struct {
	mu      sync.Mutex
	current State
	history []TransitionRecord
}

// NewAttempt создаёт попытку в состоянии composing.
func NewAttempt() *Attempt {
	return &Attempt{current: StateComposing}
}

// Current возвращает текущее состояние.
func (a *Attempt) Current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// TransitionTo выполняет переход в состояние target.
func (a *Attempt) TransitionTo(target State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !validTransitions[a.current][target] {
		return &TransitionError{From: a.current, To: target}
	}

	a.history = append(a.history, TransitionRecord{
		From:      a.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	a.current = target
	return nil
}

// Terminal сообщает, завершена ли попытка.
func (a *Attempt) Terminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(validTransitions[a.current]) == 0
}

// Written сообщает, могла ли попытка изменить БД.
func (a *Attempt) Written() bool {
	switch a.Current() {
	case StateComposing, StateProducing, StateAborted:
		return false
	default:
		return true
	}
}

// History возвращает копию истории переходов.
func (a *Attempt) History() []TransitionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := make([]TransitionRecord, len(a.history))
	copy(result, a.history)
	return result
}

// TransitionError - недопустимый переход.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: переход %s → %s недопустим", e.From, e.To)
}
