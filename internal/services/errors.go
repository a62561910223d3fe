package services

import (
	"errors"

	"pvetax/internal/notify"
	"pvetax/internal/store"
)

var (
	ErrAuthenticationUnavailable = errors.New("no valid credential for character")
	ErrSourceLookup              = errors.New("source lookup failed")
	ErrDuplicateEntry            = store.ErrDuplicate
	ErrTransport                 = notify.ErrTransport
	ErrCharacterNotFound         = errors.New("character not found")
	ErrAdminCharacterNotFound    = errors.New("admin character not found")
	ErrNotOwner                  = errors.New("character is not owned by account")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidCategory           = errors.New("invalid credit category")
	ErrSettingsInvalid           = errors.New("invalid settings")
)
