package model

// Session — текущая клиентская сессия консоли. Живёт весь процесс:
// создаётся при старте, целиком заменяется при каждом успешном refresh,
// очищается при logout или невосстановимой ошибке refresh.
// Никогда не мутируется по частям.
type Session struct {
	AccessToken string `json:"access_token"`
}

// RoleAdmin — единственная роль, с которой refresh считается успешным.
const RoleAdmin = "admin"
