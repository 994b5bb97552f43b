package service

import (
	"context"
	"sync"
	"time"

	"tgcord/internal/models"
	"tgcord/pkg/discord"
	"tgcord/pkg/media"
	"tgcord/pkg/telegram"
	"tgcord/pkg/userclient"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertMapping(ctx context.Context, mapping *models.MessageMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockStore) GetMapping(ctx context.Context, chatID, messageID int64) (*models.MessageMapping, error) {
	args := m.Called(ctx, chatID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageMapping), args.Error(1)
}

func (m *mockStore) RecentMappings(ctx context.Context, chatID int64, limit int) ([]*models.MessageMapping, error) {
	args := m.Called(ctx, chatID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MessageMapping), args.Error(1)
}

func (m *mockStore) MarkDeleted(ctx context.Context, chatID, messageID int64) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *mockStore) UpdateEdit(ctx context.Context, chatID, messageID, timestamp int64, snapshot string) error {
	args := m.Called(ctx, chatID, messageID, timestamp, snapshot)
	return args.Error(0)
}

type mockDelivery struct {
	mock.Mock
}

func (m *mockDelivery) PostText(ctx context.Context, endpoint, content string) (*discord.Delivery, error) {
	args := m.Called(ctx, endpoint, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discord.Delivery), args.Error(1)
}

func (m *mockDelivery) PostFile(ctx context.Context, endpoint, path, filename, content string) (*discord.Delivery, error) {
	args := m.Called(ctx, endpoint, path, filename, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discord.Delivery), args.Error(1)
}

func (m *mockDelivery) EditMessage(ctx context.Context, endpoint, messageID, content, threadID string) error {
	args := m.Called(ctx, endpoint, messageID, content, threadID)
	return args.Error(0)
}

func (m *mockDelivery) DeleteMessage(ctx context.Context, endpoint, messageID, threadID string) error {
	args := m.Called(ctx, endpoint, messageID, threadID)
	return args.Error(0)
}

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) Acquire(ctx context.Context, chatID, messageID int64, att *models.Attachment) (*media.File, error) {
	args := m.Called(ctx, chatID, messageID, att)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.File), args.Error(1)
}

func (m *mockAcquirer) Release(f *media.File) {
	m.Called(f)
}

type mockCompressor struct {
	mock.Mock
}

func (m *mockCompressor) Compress(ctx context.Context, input string, ceilingBytes int64) (*media.Compressed, error) {
	args := m.Called(ctx, input, ceilingBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.Compressed), args.Error(1)
}

// recordingNotifier keeps every alert for assertions
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *recordingNotifier) Notify(ctx context.Context, alert Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) Alerts() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetMessage(ctx context.Context, chatID, messageID int64) (*userclient.Message, error) {
	args := m.Called(ctx, chatID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userclient.Message), args.Error(1)
}

type staticAccess bool

func (a staticAccess) HasAccess(int64) bool { return bool(a) }

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

type mockUpdateSource struct {
	mock.Mock
}

func (m *mockUpdateSource) GetMe(ctx context.Context) (*telegram.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telegram.User), args.Error(1)
}

func (m *mockUpdateSource) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error) {
	args := m.Called(ctx, offset, timeoutSec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]telegram.Update), args.Error(1)
}

func (m *mockUpdateSource) DeleteWebhook(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// collectingSink records dispatched events in order; refuse makes it turn
// events away the way a stopped dispatcher does
type collectingSink struct {
	mu     sync.Mutex
	events []*models.MessageEvent
	refuse func(ev *models.MessageEvent) bool
}

func (s *collectingSink) Dispatch(ev *models.MessageEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse != nil && s.refuse(ev) {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *collectingSink) Events() []*models.MessageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.MessageEvent(nil), s.events...)
}

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) CleanupOldFiles(maxAge time.Duration) (int, error) {
	args := m.Called(maxAge)
	return args.Int(0), args.Error(1)
}

// scriptedSubscriber replays one batch of events per Subscribe call and then
// reports the stream as closed
type scriptedSubscriber struct {
	mu      sync.Mutex
	batches [][]userclient.Event
	calls   int
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, handler func(userclient.Event)) error {
	s.mu.Lock()
	s.calls++
	var batch []userclient.Event
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()

	if batch == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, ev := range batch {
		handler(ev)
	}
	return &userclient.Error{Op: "subscribe", Kind: userclient.KindTransient}
}

func (s *scriptedSubscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
