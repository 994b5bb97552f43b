package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "tgcord/internal/errors"
	"tgcord/internal/metrics"
	"tgcord/internal/models"
	"tgcord/internal/tracing"
	"tgcord/pkg/discord"
	"tgcord/pkg/markup"
	"tgcord/pkg/media"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Router resolves translated text to a destination endpoint
type Router interface {
	Resolve(text string) (endpoint, tag string, ok bool)
}

// Acquirer downloads attachments to local files
type Acquirer interface {
	Acquire(ctx context.Context, chatID, messageID int64, att *models.Attachment) (*media.File, error)
	Release(f *media.File)
}

// Compressor shrinks a video below a byte ceiling
type Compressor interface {
	Compress(ctx context.Context, input string, ceilingBytes int64) (*media.Compressed, error)
}

// RelayConfig holds the relay's behaviour switches
type RelayConfig struct {
	SourceChatID   int64
	IncludeAuthor  bool
	ForwardEdits   bool
	MaxUploadBytes int64
}

// RelayDeps wires the relay to its collaborators. Compressor may be nil when
// no encoder is installed; oversized videos then become a text notice.
type RelayDeps struct {
	Store      MappingStore
	Router     Router
	Delivery   discord.Client
	Acquirer   Acquirer
	Compressor Compressor
	Notifier   Notifier
}

// Relay turns inbound source messages into destination posts and records
// the mapping once delivery succeeded.
type Relay struct {
	deps   RelayDeps
	cfg    RelayConfig
	mirror *mirror
	locks  *keyLocks
	logger *logrus.Logger
}

func NewRelay(deps RelayDeps, cfg RelayConfig, logger *logrus.Logger) *Relay {
	logger = defaultLogger(logger)
	return &Relay{
		deps:   deps,
		cfg:    cfg,
		mirror: &mirror{store: deps.Store, delivery: deps.Delivery, logger: logger},
		locks:  newKeyLocks(),
		logger: logger,
	}
}

// Compose renders a message's HTML into destination content, with the author
// suffix when configured. The routing text is returned separately because
// tags are matched against the message body only.
func (r *Relay) Compose(html string, author *models.Author) (body, content string) {
	body = strings.TrimSpace(markup.Translate(html))
	content = body
	if r.cfg.IncludeAuthor {
		content = strings.TrimSpace(body + AuthorSuffix(author))
	}
	return body, content
}

// Lock serializes work on one source message across the relay, the
// reconciler and the live event handler.
func (r *Relay) Lock(key models.MessageKey) (unlock func()) {
	return r.locks.lock(key)
}

// HandleEvent relays one inbound message. Events for the same source message
// are serialized. Failures worth an operator's attention are sent to the
// notifier as well as returned.
func (r *Relay) HandleEvent(ctx context.Context, ev *models.MessageEvent) error {
	if ev == nil {
		return nil
	}
	if r.cfg.SourceChatID != 0 && ev.ChatID != r.cfg.SourceChatID {
		r.logger.WithField(LogFieldChatID, SanitizeChatID(ctx, ev.ChatID)).Debug("Skipping message: not from the source chat")
		return nil
	}

	unlock := r.locks.lock(ev.Key())
	defer unlock()

	ctx, span := tracing.StartSpan(ctx, "relay.handle",
		append(tracing.MessageAttributes(ev.ChatID, ev.MessageID), attribute.Bool("telegram.edit", ev.IsEdit))...)
	defer span.End()

	start := time.Now()
	logger := r.logger.WithFields(logrus.Fields{
		LogFieldChatID:    SanitizeChatID(ctx, ev.ChatID),
		LogFieldMessageID: ev.MessageID,
		LogFieldIsEdit:    ev.IsEdit,
	})

	body, content := r.Compose(ev.HTML, ev.Author)

	if ev.IsEdit {
		if !r.cfg.ForwardEdits {
			logger.Debug("Skipping edit: edit forwarding is disabled")
			return nil
		}
		existing, err := r.deps.Store.GetMapping(ctx, ev.ChatID, ev.MessageID)
		if err != nil {
			return fmt.Errorf("failed to look up mapping: %w", err)
		}
		if existing != nil {
			return r.relayEdit(ctx, ev, existing, content, logger)
		}
		logger.Debug("Edited message has no mapping, relaying it as new")
	}

	endpoint, tag, ok := r.deps.Router.Resolve(body)
	if !ok {
		metrics.IncrementCounter("routing_miss_total", nil, "Messages dropped because no endpoint matched")
		logger.Info("Skipping message: no route and no default endpoint")
		return nil
	}
	logger = logger.WithFields(logrus.Fields{
		LogFieldEndpoint: SanitizeEndpoint(endpoint),
		LogFieldTag:      tag,
	})

	// The key may already be relayed: a redelivered update, or the original
	// arriving after its edit was relayed as new. Posting again would orphan
	// the first copy.
	if !ev.IsEdit {
		existing, err := r.deps.Store.GetMapping(ctx, ev.ChatID, ev.MessageID)
		if err != nil {
			return fmt.Errorf("failed to look up mapping: %w", err)
		}
		if existing != nil {
			metrics.IncrementCounter("duplicate_events_total", nil, "Inbound messages whose key was already relayed")
			logger.Debug("Skipping message: already relayed")
			return nil
		}
	}

	var (
		delivery *discord.Delivery
		err      error
	)
	if ev.Attachment == nil {
		if content == "" {
			logger.Debug("Skipping message: nothing to relay")
			return nil
		}
		delivery, err = r.deps.Delivery.PostText(ctx, endpoint, content)
		if err != nil {
			return r.fail(ctx, span, ev, "Failed to relay message to Discord", err)
		}
	} else {
		delivery, err = r.relayAttachment(ctx, ev, endpoint, content, logger)
		if err != nil {
			return r.fail(ctx, span, ev, attachmentFailureSummary(err), err)
		}
	}

	mapping := &models.MessageMapping{
		SourceChatID:         ev.ChatID,
		SourceMessageID:      ev.MessageID,
		LastEditTimestamp:    ev.Timestamp(),
		DestinationMessageID: delivery.MessageID,
		DestinationChannelID: delivery.ChannelID,
		DestinationThreadID:  delivery.ThreadID,
		DestinationEndpoint:  endpoint,
		LastContentSnapshot:  discord.TruncateContent(content),
	}
	if err := r.deps.Store.UpsertMapping(ctx, mapping); err != nil {
		logger.WithError(err).Error("Failed to save message mapping")
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	labels := map[string]string{"route": routeLabel(tag)}
	metrics.IncrementCounter("messages_relayed_total", labels, "Messages relayed to Discord")
	metrics.RecordTimer("delivery_latency", time.Since(start), labels, "Time from inbound event to stored mapping")
	logger.WithFields(logrus.Fields{
		LogFieldDestMessageID: delivery.MessageID,
		LogFieldDuration:      time.Since(start).Milliseconds(),
	}).Info("Relayed message")
	return nil
}

func (r *Relay) relayEdit(ctx context.Context, ev *models.MessageEvent, existing *models.MessageMapping, content string, logger *logrus.Entry) error {
	if existing.Deleted {
		logger.Debug("Skipping edit: relayed copy was deleted")
		return nil
	}
	result, err := r.mirror.syncEventEdit(ctx, existing, content, ev.Timestamp())
	if err != nil {
		r.deps.Notifier.Notify(ctx, Alert{
			ChatID:    ev.ChatID,
			MessageID: ev.MessageID,
			Summary:   "Failed to relay edit to Discord",
			Err:       err,
		})
		return err
	}
	switch result {
	case SyncUnchanged:
		logger.Debug("Skipping edit: content unchanged")
	case SyncStale:
		logger.Debug("Skipping edit: a newer version was already relayed")
	}
	return nil
}

// relayAttachment acquires the file and posts it, compressing videos over
// the upload ceiling. When the file cannot be made to fit, the text is
// posted with a notice instead.
func (r *Relay) relayAttachment(ctx context.Context, ev *models.MessageEvent, endpoint, content string, logger *logrus.Entry) (*discord.Delivery, error) {
	file, err := r.deps.Acquirer.Acquire(ctx, ev.ChatID, ev.MessageID, ev.Attachment)
	if err != nil {
		metrics.IncrementCounter("acquisition_failures_total",
			map[string]string{"code": string(apperrors.GetCode(err))},
			"Attachments that could not be downloaded")
		return nil, err
	}
	defer r.deps.Acquirer.Release(file)

	logger = logger.WithFields(logrus.Fields{
		LogFieldMediaType: ev.Attachment.Kind,
		LogFieldFileSize:  file.Size,
		LogFieldVia:       file.Via,
	})

	upload, filename := file.Path, file.Filename
	if r.cfg.MaxUploadBytes > 0 && file.Size > r.cfg.MaxUploadBytes {
		if !file.IsVideo {
			logger.Warn("Attachment exceeds the upload limit")
			return r.deps.Delivery.PostText(ctx, endpoint, withNotice(content, OversizeNotice("File", file.Size)))
		}

		compressed, err := r.compress(ctx, file.Path)
		if err != nil {
			logger.WithError(err).Warn("Video could not be compressed below the upload limit")
			return r.deps.Delivery.PostText(ctx, endpoint, withNotice(content, OversizeNotice("Video", file.Size)))
		}
		defer r.deps.Acquirer.Release(&media.File{Path: compressed.Path})

		logger.WithFields(logrus.Fields{
			LogFieldProfile: compressed.Profile.Name,
			"output_size":   compressed.Size,
		}).Info("Compressed video for upload")
		upload = compressed.Path
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".mp4"
	}

	return r.deps.Delivery.PostFile(ctx, endpoint, upload, filename, content)
}

func (r *Relay) compress(ctx context.Context, path string) (*media.Compressed, error) {
	if r.deps.Compressor == nil {
		return nil, apperrors.New(apperrors.ErrCodeCompressionExhausted, "no video encoder available")
	}
	out, err := r.deps.Compressor.Compress(ctx, path, r.cfg.MaxUploadBytes)
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(apperrors.GetCode(err)))
	}
	metrics.IncrementCounter("compressions_total", map[string]string{"result": result}, "Video compression attempts")
	return out, err
}

func (r *Relay) fail(ctx context.Context, span oteltrace.Span, ev *models.MessageEvent, summary string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, summary)
	r.deps.Notifier.Notify(ctx, Alert{
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
		Summary:   summary,
		Err:       err,
	})
	return err
}

// AuthorSuffix renders the signature line appended when authors are shown.
func AuthorSuffix(author *models.Author) string {
	if author == nil {
		return ""
	}
	handle := ""
	if author.Username != "" {
		handle = "@" + author.Username
	}
	name := author.Name
	if name == "" {
		name = handle
		handle = ""
	}
	if name == "" {
		return ""
	}
	return strings.TrimRight("\n\n— "+name+" "+handle, " ")
}

// OversizeNotice replaces an attachment that cannot be uploaded.
func OversizeNotice(what string, size int64) string {
	return fmt.Sprintf("📎 %s too large to attach (%s) — view it on Telegram.", what, media.HumanSize(size))
}

func withNotice(content, notice string) string {
	if content == "" {
		return notice
	}
	return content + "\n\n" + notice
}

func attachmentFailureSummary(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeAcquisitionTooLarge:
		return "Attachment too large to download"
	case apperrors.ErrCodeAcquisitionAccessDenied:
		return "User session cannot read the source chat to download the attachment"
	case apperrors.ErrCodeAcquisitionTransient:
		return "Failed to download attachment"
	}
	return "Failed to relay attachment to Discord"
}

func routeLabel(tag string) string {
	if tag == "" {
		return "default"
	}
	return strings.ToLower(tag)
}

// keyLocks hands out one mutex per source message, dropped once unused
type keyLocks struct {
	mu    sync.Mutex
	locks map[models.MessageKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[models.MessageKey]*keyLock)}
}

func (k *keyLocks) lock(key models.MessageKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
