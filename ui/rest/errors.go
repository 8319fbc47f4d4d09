package rest

import (
	"errors"

	approval "github.com/AzielCF/az-post/approval/domain"
	conversation "github.com/AzielCF/az-post/conversation/domain"
	pkgError "github.com/AzielCF/az-post/pkg/error"
	"github.com/AzielCF/az-post/pkg/utils"
	posts "github.com/AzielCF/az-post/posts/domain"
	scheduler "github.com/AzielCF/az-post/scheduler/domain"
)

// httpError maps domain sentinels onto the error types the recovery middleware renders.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return generic
	}
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, approval.ErrCredentialInvalid), errors.Is(err, approval.ErrCredentialExpired):
		return pkgError.UnauthorizedError(err.Error())
	case errors.Is(err, posts.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrNotRetryable),
		errors.Is(err, conversation.ErrAlreadyHandled):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, conversation.ErrReasonRequired):
		return pkgError.ValidationError(err.Error())
	}
	return pkgError.InternalServerError(err.Error())
}

func panicIfNeeded(err error) {
	if err != nil {
		utils.PanicIfNeeded(httpError(err))
	}
}

func parseErr(err error) {
	if err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request: " + err.Error()))
	}
}
