package media

import (
	"context"
	"errors"
	"strings"

	"tgcord/internal/constants"
	apperrors "tgcord/internal/errors"
	"tgcord/internal/models"
	"tgcord/pkg/telegram"
	"tgcord/pkg/userclient"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// BotDownloader is the primary client's direct file path
type BotDownloader interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath, dest string) (int64, error)
}

// AccessGate makes sure the secondary client can read a chat
type AccessGate interface {
	Ensure(ctx context.Context, chatID int64) error
}

// File is an acquired attachment on local disk
type File struct {
	Path     string
	Filename string
	MIMEType string
	Size     int64
	IsVideo  bool
	// Via is "bot" or "userclient".
	Via string
}

type AcquirerOptions struct {
	Bot      BotDownloader
	User     userclient.Client // nil disables the fallback path
	Access   AccessGate
	WorkDir  *WorkDir
	BotLimit int64
	Logger   *logrus.Logger
}

// Acquirer downloads attachments through the bot when the declared size fits
// the bot limit and through the user session otherwise
type Acquirer struct {
	bot      BotDownloader
	user     userclient.Client
	access   AccessGate
	work     *WorkDir
	botLimit int64
	logger   *logrus.Logger
}

func NewAcquirer(opts AcquirerOptions) *Acquirer {
	if opts.BotLimit <= 0 {
		opts.BotLimit = constants.DefaultBotDownloadLimitBytes
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}
	return &Acquirer{
		bot:      opts.Bot,
		user:     opts.User,
		access:   opts.Access,
		work:     opts.WorkDir,
		botLimit: opts.BotLimit,
		logger:   opts.Logger,
	}
}

// UsesBot reports whether an attachment qualifies for the direct path.
// Unknown sizes go to the fallback.
func (a *Acquirer) UsesBot(att *models.Attachment) bool {
	return att.SizeKnown() && att.DeclaredSize < a.botLimit
}

// Acquire downloads the attachment of one source message. Errors carry one of
// the acquisition codes: too large, access denied or transient.
func (a *Acquirer) Acquire(ctx context.Context, chatID, messageID int64, att *models.Attachment) (*File, error) {
	kind := string(att.Kind)
	dest, err := a.work.TempPath("acq_*")
	if err != nil {
		return nil, apperrors.NewAcquisitionError(apperrors.ErrCodeAcquisitionTransient, kind, err)
	}

	logger := a.logger.WithFields(logrus.Fields{
		"message_id":    messageID,
		"media_type":    kind,
		"declared_size": att.DeclaredSize,
	})

	via := "bot"
	var size int64
	fallback := !a.UsesBot(att)
	if !fallback {
		size, err = a.viaBot(ctx, att, dest)
		switch {
		case err == nil:
		case isFileTooBig(err):
			logger.Info("Bot refused file as too big, using user session")
			fallback = true
		default:
			a.work.Remove(dest)
			return nil, apperrors.NewAcquisitionError(apperrors.ErrCodeAcquisitionTransient, kind, err)
		}
	}

	if fallback {
		via = "userclient"
		size, err = a.viaUserClient(ctx, chatID, messageID, kind, dest)
		if err != nil {
			a.work.Remove(dest)
			return nil, err
		}
	}

	file := &File{Path: dest, Size: size, Via: via, IsVideo: att.IsVideoLike}

	detectedExt, detectedMIME := "", ""
	if mt, err := mimetype.DetectFile(dest); err == nil {
		detectedExt, detectedMIME = mt.Extension(), mt.String()
	}
	file.MIMEType = DetectedMIME(att.MIMEType, detectedMIME)
	file.Filename = ResolveFilename(att, detectedExt)
	if strings.HasPrefix(file.MIMEType, "video/") {
		file.IsVideo = true
	}

	logger.WithFields(logrus.Fields{
		"via":       via,
		"size":      size,
		"mime_type": file.MIMEType,
	}).Debug("Attachment acquired")
	return file, nil
}

func (a *Acquirer) viaBot(ctx context.Context, att *models.Attachment, dest string) (int64, error) {
	f, err := a.bot.GetFile(ctx, att.FileID)
	if err != nil {
		return 0, err
	}
	if f.FilePath == "" {
		return 0, errors.New("getFile returned no file path")
	}
	return a.bot.DownloadFile(ctx, f.FilePath, dest)
}

func (a *Acquirer) viaUserClient(ctx context.Context, chatID, messageID int64, kind, dest string) (int64, error) {
	if a.user == nil {
		return 0, apperrors.NewAcquisitionError(apperrors.ErrCodeAcquisitionTooLarge, kind,
			errors.New("file exceeds the bot download limit and no user session is configured"))
	}

	if a.access != nil {
		if err := a.access.Ensure(ctx, chatID); err != nil {
			return 0, apperrors.NewAcquisitionError(apperrors.ErrCodeAcquisitionAccessDenied, kind, err)
		}
	}

	n, err := a.user.DownloadMedia(ctx, chatID, messageID, dest)
	if err != nil {
		code := apperrors.ErrCodeAcquisitionTransient
		if userclient.IsPermissionDenied(err) {
			code = apperrors.ErrCodeAcquisitionAccessDenied
		}
		return 0, apperrors.NewAcquisitionError(code, kind, err)
	}
	return n, nil
}

func isFileTooBig(err error) bool {
	var apiErr *telegram.APIError
	return errors.As(err, &apiErr) && apiErr.IsFileTooBig()
}

// Release deletes the file's local copy.
func (a *Acquirer) Release(f *File) {
	if f != nil {
		a.work.Remove(f.Path)
	}
}
