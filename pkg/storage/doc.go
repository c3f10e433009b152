// Package storage provides GORM-backed persistence for schedcore.
package storage
