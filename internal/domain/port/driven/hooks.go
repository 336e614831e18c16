package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// TokenRefresher renews an expired credential. Implementations must return a
// record whose access token is valid, or an error; the dispatcher never
// retries a refresh.
type TokenRefresher interface {
	Refresh(ctx context.Context, rec model.CredentialRecord) (*model.CredentialRecord, error)
}

// DispatchRecorder observes the outcome of every dispatch. kind is empty on
// success.
type DispatchRecorder interface {
	RecordDispatch(app, action string, kind model.ErrorKind, elapsed time.Duration)
}
