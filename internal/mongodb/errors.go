package mongodb

import (
	"errors"
	"fmt"
	"net"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rdjellab/mongosnap/internal/pipeline"
)

// classify wraps connectivity failures in pipeline.ErrTransientConnection so
// the backup pipeline knows it may retry them. Everything else passes
// through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", pipeline.ErrTransientConnection, err)
	}
	return err
}

func isTransient(err error) bool {
	if mongo.IsTimeout(err) {
		return true
	}
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) && srvErr.HasErrorLabel("NetworkError") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
