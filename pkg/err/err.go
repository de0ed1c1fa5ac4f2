package errprocess

import (
	"errors"

	"github.com/pawtograder/platform-sub008/pkg/logger"

	"go.uber.org/zap"
)

// Set log errMsg and return it as error
func Set(errMsg string, fields ...zap.Field) error {
	logger.Log.Error(errMsg, fields...)
	return errors.New(errMsg)
}
