// Package access tracks whether the user session can read a source chat and
// acquires that access through warm-up, join and a rate-limit cooldown.
package access

import (
	"context"
	"sync"
	"time"

	"tgcord/internal/constants"
	apperrors "tgcord/internal/errors"
	"tgcord/internal/models"
	"tgcord/internal/privacy"
	"tgcord/pkg/userclient"

	"github.com/sirupsen/logrus"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// InviteCreator mints invite links with the primary (bot) client
type InviteCreator interface {
	CreateChatInviteLink(ctx context.Context, chatID int64, name string) (string, error)
}

type Options struct {
	Client     userclient.Client
	Inviter    InviteCreator // optional
	InviteLink string        // configured invite, preferred over minting
	Margin     time.Duration // added to every flood wait
	Clock      Clock
	Logger     *logrus.Logger
	// OnStateChange observes every transition.
	OnStateChange func(chatID int64, state models.AccessState)
}

type chatAccess struct {
	ensure sync.Mutex // serializes Ensure and Validate per chat
	invite string     // minted invite, reused until rejected; guarded by ensure

	mu    sync.Mutex
	state models.AccessState
	until time.Time
}

func (c *chatAccess) get() (models.AccessState, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.until
}

// Bootstrap is the per-chat access state machine
type Bootstrap struct {
	client        userclient.Client
	inviter       InviteCreator
	inviteLink    string
	margin        time.Duration
	clock         Clock
	logger        *logrus.Logger
	onStateChange func(int64, models.AccessState)

	mu    sync.RWMutex
	chats map[int64]*chatAccess
}

func NewBootstrap(opts Options) *Bootstrap {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Margin <= 0 {
		opts.Margin = constants.DefaultJoinBackoffMarginSec * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}

	return &Bootstrap{
		client:        opts.Client,
		inviter:       opts.Inviter,
		inviteLink:    opts.InviteLink,
		margin:        opts.Margin,
		clock:         opts.Clock,
		logger:        opts.Logger,
		onStateChange: opts.OnStateChange,
		chats:         make(map[int64]*chatAccess),
	}
}

func (b *Bootstrap) entry(chatID int64) *chatAccess {
	b.mu.RLock()
	c, ok := b.chats[chatID]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.chats[chatID]; !ok {
		c = &chatAccess{state: models.NoAccess}
		b.chats[chatID] = c
	}
	return c
}

// State reports the chat's access state. An expired backoff reads as
// NoAccess; until is only set while a backoff is active.
func (b *Bootstrap) State(chatID int64) (models.AccessState, time.Time) {
	b.mu.RLock()
	c, ok := b.chats[chatID]
	b.mu.RUnlock()
	if !ok {
		return models.NoAccess, time.Time{}
	}

	state, until := c.get()
	if state == models.JoinBackoff {
		if b.clock.Now().Before(until) {
			return models.JoinBackoff, until
		}
		return models.NoAccess, time.Time{}
	}
	return state, time.Time{}
}

// HasAccess is true only in ACCESS_OK.
func (b *Bootstrap) HasAccess(chatID int64) bool {
	state, _ := b.State(chatID)
	return state == models.AccessOK
}

// Chats lists every chat the bootstrap has seen.
func (b *Bootstrap) Chats() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int64, 0, len(b.chats))
	for id := range b.chats {
		ids = append(ids, id)
	}
	return ids
}

// Ensure drives the chat to ACCESS_OK or explains why it cannot. Calls for
// the same chat are serialized; an ACCESS_OK chat returns immediately.
func (b *Bootstrap) Ensure(ctx context.Context, chatID int64) error {
	c := b.entry(chatID)
	c.ensure.Lock()
	defer c.ensure.Unlock()

	if state, _ := c.get(); state == models.AccessOK {
		return nil
	}

	logger := b.logger.WithField("chat_id", privacy.MaskChatID(chatID))

	if b.verify(ctx, chatID) {
		b.transition(c, chatID, models.AccessOK)
		logger.Info("User session can read source chat")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if found := b.warmUp(ctx, chatID, logger); found {
		b.transition(c, chatID, models.AccessOK)
		logger.Info("Source chat found among joined chats")
		return nil
	}
	state, until := c.get()
	if state == models.JoinBackoff && b.clock.Now().Before(until) {
		return apperrors.New(apperrors.ErrCodeJoinBackoff, "join attempts are cooling down").
			WithContext("until", until.Format(time.RFC3339))
	}
	b.transition(c, chatID, models.WarmedUp)

	invite, err := b.resolveInvite(ctx, c, chatID)
	if err != nil {
		b.transition(c, chatID, models.NoAccess)
		return err
	}

	err = b.client.JoinChat(ctx, invite)
	switch {
	case err == nil, userclient.KindOf(err) == userclient.KindAlreadyParticipant:
		logger.Info("User session joined source chat")
	default:
		if wait, limited := userclient.RateLimitWait(err); limited {
			until := b.clock.Now().Add(wait + b.margin)
			b.backoff(c, chatID, until)
			logger.WithField("until", until.Format(time.RFC3339)).Warn("Join rate limited, backing off")
			return apperrors.Wrap(err, apperrors.ErrCodeJoinBackoff, "join rate limited")
		}
		if userclient.IsPermissionDenied(err) || userclient.IsNotFound(err) {
			// a revoked or expired minted invite is not worth retrying
			c.invite = ""
		}
		b.transition(c, chatID, models.NoAccess)
		return apperrors.Wrap(err, apperrors.ErrCodeAccessBootstrap, "failed to join source chat")
	}

	b.warmUp(ctx, chatID, logger)
	if b.verify(ctx, chatID) {
		b.transition(c, chatID, models.AccessOK)
		return nil
	}

	b.transition(c, chatID, models.NoAccess)
	return apperrors.New(apperrors.ErrCodeAccessBootstrap, "joined but source chat is still unreadable")
}

// Validate re-checks an ACCESS_OK chat. Only a definitive not-found or
// permission error demotes it; transient failures keep the cached state.
func (b *Bootstrap) Validate(ctx context.Context, chatID int64) error {
	c := b.entry(chatID)
	c.ensure.Lock()
	defer c.ensure.Unlock()

	if state, _ := c.get(); state != models.AccessOK {
		return nil
	}

	_, err := b.client.GetChat(ctx, chatID)
	if err == nil {
		return nil
	}

	if userclient.IsNotFound(err) || userclient.IsPermissionDenied(err) {
		b.transition(c, chatID, models.NoAccess)
		b.logger.WithError(err).WithField("chat_id", privacy.MaskChatID(chatID)).Warn("Lost access to source chat")
		return apperrors.Wrap(err, apperrors.ErrCodeAccessBootstrap, "access validation failed")
	}
	return err
}

func (b *Bootstrap) verify(ctx context.Context, chatID int64) bool {
	_, err := b.client.GetChat(ctx, chatID)
	return err == nil
}

func (b *Bootstrap) warmUp(ctx context.Context, chatID int64, logger *logrus.Entry) bool {
	chats, err := b.client.ListJoinedChats(ctx)
	if err != nil {
		logger.WithError(err).Debug("Warm-up failed")
		return false
	}
	for _, chat := range chats {
		if chat.ID == chatID {
			return true
		}
	}
	return false
}

func (b *Bootstrap) resolveInvite(ctx context.Context, c *chatAccess, chatID int64) (string, error) {
	if b.inviteLink != "" {
		return b.inviteLink, nil
	}
	if c.invite != "" {
		return c.invite, nil
	}
	if b.inviter == nil {
		return "", apperrors.New(apperrors.ErrCodeAccessBootstrap, "no invite link available")
	}

	link, err := b.inviter.CreateChatInviteLink(ctx, chatID, constants.AutoInviteName)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAccessBootstrap, "failed to create invite link")
	}
	c.invite = link
	return link, nil
}

func (b *Bootstrap) transition(c *chatAccess, chatID int64, to models.AccessState) {
	c.mu.Lock()
	changed := c.state != to
	c.state = to
	c.until = time.Time{}
	c.mu.Unlock()

	if changed && b.onStateChange != nil {
		b.onStateChange(chatID, to)
	}
}

func (b *Bootstrap) backoff(c *chatAccess, chatID int64, until time.Time) {
	c.mu.Lock()
	changed := c.state != models.JoinBackoff
	c.state = models.JoinBackoff
	c.until = until
	c.mu.Unlock()

	if changed && b.onStateChange != nil {
		b.onStateChange(chatID, models.JoinBackoff)
	}
}
