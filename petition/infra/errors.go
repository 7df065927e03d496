package infra

import (
	"fmt"

	"petition-gateway/petition/domain"
)

// storageErr marca falhas do meio durável como ErrStorageUnavailable.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
