// Package refid содержит единый кодек идентификаторов ссылки платёжного шлюза.
//
// Грамматика фиксированная: <purpose>_<ownerID>_<token>. Кодирование при
// создании депозита и разбор при обработке вебхука обязаны использовать этот
// пакет, чтобы разделитель и число полей не разъехались между вызовами.
package refid

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	delimiter  = "_"
	partsCount = 3
)

// PurposeDeposit — метка назначения для депозитов кошелька.
const PurposeDeposit = "deposito"

// ErrMalformed возвращается при разборе строки, не соответствующей грамматике.
var ErrMalformed = errors.New("malformed reference id")

// Reference представляет разобранный идентификатор ссылки.
type Reference struct {
	Purpose string
	OwnerID string
	Token   string
}

// New создаёт идентификатор с уникальным токеном для указанного владельца.
func New(purpose, ownerID string) Reference {
	return Reference{
		Purpose: purpose,
		OwnerID: ownerID,
		Token:   strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// String собирает идентификатор в строку для передачи шлюзу.
func (r Reference) String() string {
	return strings.Join([]string{r.Purpose, r.OwnerID, r.Token}, delimiter)
}

// Parse разбирает строку идентификатора. Любое отклонение от грамматики
// (иное число полей, пустые поля) возвращает ErrMalformed.
func Parse(s string) (Reference, error) {
	parts := strings.Split(s, delimiter)
	if len(parts) != partsCount {
		return Reference{}, ErrMalformed
	}
	for _, p := range parts {
		if p == "" {
			return Reference{}, ErrMalformed
		}
	}
	return Reference{
		Purpose: parts[0],
		OwnerID: parts[1],
		Token:   parts[2],
	}, nil
}
