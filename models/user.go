package models

import "time"

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

// User представляет игрока или организатора.
// CreditBalance — внутренний кредитный баланс, изменяется только через леджер.
// PayoutKey — зарегистрированный ключ для выплат в платёжной сети.
type User struct {
	ID            int       `json:"id" db:"id"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Nickname      *string   `json:"nickname,omitempty" db:"nickname"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	Role          UserRole  `json:"role" db:"role"`
	CreditBalance int       `json:"credit_balance" db:"credit_balance"`
	PayoutKey     *string   `json:"payout_key,omitempty" db:"payout_key"`
	PayoutKeyType *string   `json:"payout_key_type,omitempty" db:"payout_key_type"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasPayoutKey сообщает, зарегистрирован ли у пользователя ключ для выплат.
func (u *User) HasPayoutKey() bool {
	return u.PayoutKey != nil && *u.PayoutKey != ""
}
