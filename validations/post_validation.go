package validations

import (
	"context"
	"fmt"
	"strings"

	pkgError "github.com/AzielCF/az-post/pkg/error"
	posts "github.com/AzielCF/az-post/posts/domain"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func validStatusList(value any) error {
	raw, _ := value.(string)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" && !posts.Status(s).Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
	}
	return nil
}

func ValidateListPosts(ctx context.Context, request posts.ListRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Status, validation.By(validStatusList)),
		validation.Field(&request.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&request.Offset, validation.Min(0)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateDeny(ctx context.Context, request posts.DenyRequest) error {
	request.Reason = strings.TrimSpace(request.Reason)
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Reason, validation.Required, validation.Length(1, 500)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidatePostID(ctx context.Context, id string) error {
	err := validation.ValidateWithContext(ctx, strings.TrimSpace(id), validation.Required, validation.Length(1, 64))
	if err != nil {
		return pkgError.ValidationError("post id: " + err.Error())
	}
	return nil
}
