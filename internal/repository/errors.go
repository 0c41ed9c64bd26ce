package repository

import "errors"

// Ошибки уровня репозитория
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")
)
