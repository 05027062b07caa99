package registry

import (
	"errors"
	"strings"

	"github.com/yungbote/jobrelay/internal/domain"
)

var ErrInvalidSubscriber = errors.New("subscriber connection id required")

func Validate(sub domain.Subscriber) error {
	if strings.TrimSpace(sub.ConnectionID) == "" {
		return ErrInvalidSubscriber
	}
	return nil
}
