package oco

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Роль ноги внутри OCO-группы.
type Role string

const (
	RoleEntry Role = "entry"
	RoleSL    Role = "sl"
	RoleTP    Role = "tp"
)

// Формат label — `{role}-oco-{ts}-{rand}` — определён только здесь.
// Label хранится у брокера и является единственной связкой ног группы:
// никакой побочной таблицы нет, по нему же матчит реконсиляция.

const txPrefix = "oco-"

// NewTxID генерирует id транзакции вида oco-<unix ms>-<random>.
func NewTxID() string {
	return fmt.Sprintf("%s%d-%s", txPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func BuildLabel(role Role, txID string) string {
	return string(role) + "-" + txID
}

// ParseLabel разбирает label на роль и id транзакции.
func ParseLabel(label string) (Role, string, bool) {
	role, rest, ok := strings.Cut(label, "-")
	if !ok || !strings.HasPrefix(rest, txPrefix) {
		return "", "", false
	}
	switch Role(role) {
	case RoleEntry, RoleSL, RoleTP:
		return Role(role), rest, true
	}
	return "", "", false
}

// BelongsTo — принадлежит ли label группе txID.
func BelongsTo(label, txID string) bool {
	_, tx, ok := ParseLabel(label)
	return ok && tx == txID
}

// HasTxPrefix — несёт ли label метку этой системы (любой группы).
func HasTxPrefix(label string) bool {
	_, _, ok := ParseLabel(label)
	return ok
}
