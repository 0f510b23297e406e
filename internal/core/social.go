package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/social"
)

func (service *CoreService) SocialState(ctx context.Context, id string) (*social.SocialState, error) {
	return wrapSocial(service.socialStore.Get(ctx, id))
}

func (service *CoreService) Like(ctx context.Context, id string) (*social.SocialState, error) {
	if !service.config.Features.EnableLikes {
		return nil, fmt.Errorf("%w: likes", ErrFeatureDisabled)
	}
	return wrapSocial(service.socialStore.Like(ctx, id))
}

func (service *CoreService) Cheer(ctx context.Context, id string) (*social.SocialState, error) {
	if !service.config.Features.EnableCheers {
		return nil, fmt.Errorf("%w: cheers", ErrFeatureDisabled)
	}
	return wrapSocial(service.socialStore.Cheer(ctx, id))
}

func (service *CoreService) Comment(ctx context.Context, id, user, text string) (*social.SocialState, error) {
	if !service.config.Features.EnableComments {
		return nil, fmt.Errorf("%w: comments", ErrFeatureDisabled)
	}
	return wrapSocial(service.socialStore.AddComment(ctx, id, user, text))
}

func wrapSocial(state *social.SocialState, err error) (*social.SocialState, error) {
	if err == nil {
		return state, nil
	}
	if errors.Is(err, social.ErrEmptyComment) || errors.Is(err, social.ErrCommentTooLong) || errors.Is(err, social.ErrEmptySubmission) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil, err
}
