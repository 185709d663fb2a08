package services

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrDeliveryFailure - ошибка live-доставки; наружу из сервисов не возвращается, только логируется
	ErrDeliveryFailure = errors.New("delivery failure")
)
