package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/common"

	"github.com/google/uuid"
)

const MaxCommentLength = 280

var (
	ErrEmptyComment    = errors.New("comment text is empty")
	ErrCommentTooLong  = fmt.Errorf("comment text exceeds %d characters", MaxCommentLength)
	ErrEmptySubmission = errors.New("submission id is required")
)

type Comment struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
	Time int64  `json:"time"` // unix ms
}

// SocialState holds the reactions of one submission. Comments are newest first.
type SocialState struct {
	Likes    int       `json:"likes"`
	Cheers   int       `json:"cheers"`
	Comments []Comment `json:"comments"`
}

// Store keeps social state per submission id. Unknown ids read as the zero
// state; increments are atomic in the backing store.
type Store interface {
	Get(ctx context.Context, id string) (*SocialState, error)
	Like(ctx context.Context, id string) (*SocialState, error)
	Cheer(ctx context.Context, id string) (*SocialState, error)
	AddComment(ctx context.Context, id, user, text string) (*SocialState, error)
	Close() error
}

// newComment validates the text and builds the stored comment.
func newComment(user, text string, now time.Time) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return Comment{}, ErrCommentTooLong
	}
	return Comment{
		ID:   fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		User: displayUser(user),
		Text: text,
		Time: now.UnixMilli(),
	}, nil
}

func displayUser(user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return "anon"
	}
	return common.ShortAddress(user)
}

func emptyState() *SocialState {
	return &SocialState{Comments: []Comment{}}
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptySubmission
	}
	return nil
}
