package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "tgcord/internal/errors"
	"tgcord/internal/models"
	"tgcord/pkg/discord"
	"tgcord/pkg/media"
	"tgcord/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testChatID      = int64(-1001234567890)
	algoEndpoint    = "https://discord.com/api/webhooks/111/algo"
	defaultEndpoint = "https://discord.com/api/webhooks/999/default"
)

type relayFixture struct {
	relay      *Relay
	store      *mockStore
	delivery   *mockDelivery
	acquirer   *mockAcquirer
	compressor *mockCompressor
	notifier   *recordingNotifier
}

func newRelayFixture(t *testing.T, cfg RelayConfig, defaultURL string) *relayFixture {
	t.Helper()
	rt, err := router.New([]router.Route{
		{Tag: "ALGORITMO", Endpoint: algoEndpoint},
		{Tag: "SCALPING", Endpoint: ""},
	}, defaultURL)
	require.NoError(t, err)

	f := &relayFixture{
		store:      &mockStore{},
		delivery:   &mockDelivery{},
		acquirer:   &mockAcquirer{},
		compressor: &mockCompressor{},
		notifier:   &recordingNotifier{},
	}
	if cfg.SourceChatID == 0 {
		cfg.SourceChatID = testChatID
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 100 * 1024 * 1024
	}
	f.relay = NewRelay(RelayDeps{
		Store:      f.store,
		Router:     rt,
		Delivery:   f.delivery,
		Acquirer:   f.acquirer,
		Compressor: f.compressor,
		Notifier:   f.notifier,
	}, cfg, quietLogger())
	return f
}

func (f *relayFixture) assertExpectations(t *testing.T) {
	f.store.AssertExpectations(t)
	f.delivery.AssertExpectations(t)
	f.acquirer.AssertExpectations(t)
	f.compressor.AssertExpectations(t)
}

func (f *relayFixture) expectUnrelayed(messageID int64) {
	f.store.On("GetMapping", mock.Anything, testChatID, messageID).Return(nil, nil).Once()
}

func textEvent(id int64, html string) *models.MessageEvent {
	return &models.MessageEvent{ChatID: testChatID, MessageID: id, HTML: html, Date: 1700000000}
}

func TestRelay_TaggedTextEndToEnd(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(42)
	ctx := context.Background()

	f.delivery.On("PostText", mock.Anything, algoEndpoint, "#ALGORITMO hello **world**").
		Return(&discord.Delivery{MessageID: "m-1", ChannelID: "c-1"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.MatchedBy(func(m *models.MessageMapping) bool {
		return m.SourceChatID == testChatID &&
			m.SourceMessageID == 42 &&
			m.DestinationEndpoint == algoEndpoint &&
			m.DestinationMessageID == "m-1" &&
			m.DestinationChannelID == "c-1" &&
			m.LastEditTimestamp == 1700000000 &&
			m.LastContentSnapshot == "#ALGORITMO hello **world**"
	})).Return(nil).Once()

	err := f.relay.HandleEvent(ctx, textEvent(42, "#ALGORITMO hello **world**"))

	require.NoError(t, err)
	f.assertExpectations(t)
	assert.Empty(t, f.notifier.Alerts())
}

func TestRelay_TranslatesMarkup(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(7)

	f.delivery.On("PostText", mock.Anything, defaultEndpoint, "hello **world** and ~~old~~").
		Return(&discord.Delivery{MessageID: "m-2"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.Anything).Return(nil).Once()

	err := f.relay.HandleEvent(context.Background(), textEvent(7, "hello <b>world</b> and <s>old</s>"))

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestRelay_RoutingMissDropsMessage(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, "")

	err := f.relay.HandleEvent(context.Background(), textEvent(1, "no tag here"))

	require.NoError(t, err)
	f.delivery.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "UpsertMapping", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.Alerts())
}

func TestRelay_BlankRouteFallsBackToDefault(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(3)

	f.delivery.On("PostText", mock.Anything, defaultEndpoint, "#SCALPING entry").
		Return(&discord.Delivery{MessageID: "m-3"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), textEvent(3, "#SCALPING entry")))
	f.assertExpectations(t)
}

func TestRelay_IgnoresOtherChats(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	ev := textEvent(1, "hello")
	ev.ChatID = -100999

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.delivery.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay_AppendsAuthor(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{IncludeAuthor: true}, defaultEndpoint)
	f.expectUnrelayed(5)
	ev := textEvent(5, "signal")
	ev.Author = &models.Author{Name: "Mario Rossi", Username: "mrossi"}

	f.delivery.On("PostText", mock.Anything, defaultEndpoint, "signal\n\n— Mario Rossi @mrossi").
		Return(&discord.Delivery{MessageID: "m-5"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.assertExpectations(t)
}

func TestRelay_DeliveryFailureNotifiesWithoutMapping(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(8)
	deliveryErr := apperrors.NewDeliveryError("post", 400, "bad request")

	f.delivery.On("PostText", mock.Anything, defaultEndpoint, "hello").Return(nil, deliveryErr).Once()

	err := f.relay.HandleEvent(context.Background(), textEvent(8, "hello"))

	require.Error(t, err)
	f.store.AssertNotCalled(t, "UpsertMapping", mock.Anything, mock.Anything)
	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(8), alerts[0].MessageID)
	assert.ErrorIs(t, alerts[0].Err, deliveryErr)
}

func TestRelay_PostsAttachment(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(10)
	ev := textEvent(10, "look")
	ev.Attachment = models.NewAttachment(models.AttachmentPhoto, "file-1", 2048, "", "image/jpeg")
	file := &media.File{Path: "/work/acq_1", Filename: "image.jpg", Size: 2048, Via: "bot"}

	f.acquirer.On("Acquire", mock.Anything, testChatID, int64(10), ev.Attachment).Return(file, nil).Once()
	f.acquirer.On("Release", file).Return().Once()
	f.delivery.On("PostFile", mock.Anything, defaultEndpoint, "/work/acq_1", "image.jpg", "look").
		Return(&discord.Delivery{MessageID: "m-10"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.assertExpectations(t)
}

func TestRelay_AcquisitionFailureNotifies(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(11)
	ev := textEvent(11, "")
	ev.Attachment = models.NewAttachment(models.AttachmentVideo, "file-2", 0, "", "")
	acqErr := apperrors.NewAcquisitionError(apperrors.ErrCodeAcquisitionAccessDenied, "video", assert.AnError)

	f.acquirer.On("Acquire", mock.Anything, testChatID, int64(11), ev.Attachment).Return(nil, acqErr).Once()

	err := f.relay.HandleEvent(context.Background(), ev)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAcquisitionAccessDenied))
	f.delivery.AssertNotCalled(t, "PostFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "UpsertMapping", mock.Anything, mock.Anything)
	require.Len(t, f.notifier.Alerts(), 1)
}

func TestRelay_CompressesOversizedVideo(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(12)
	ev := textEvent(12, "clip")
	ev.Attachment = models.NewAttachment(models.AttachmentVideo, "file-3", 0, "clip.mov", "video/quicktime")
	file := &media.File{Path: "/work/acq_3", Filename: "clip.mov", Size: 150 * 1024 * 1024, IsVideo: true, Via: "userclient"}

	f.acquirer.On("Acquire", mock.Anything, testChatID, int64(12), ev.Attachment).Return(file, nil).Once()
	f.acquirer.On("Release", mock.Anything).Return().Twice()
	f.compressor.On("Compress", mock.Anything, "/work/acq_3", int64(100*1024*1024)).
		Return(&media.Compressed{Path: "/work/acq_3_abr1080.mp4", Size: 90 * 1024 * 1024, Profile: media.Profile{Name: "_abr1080"}}, nil).Once()
	f.delivery.On("PostFile", mock.Anything, defaultEndpoint, "/work/acq_3_abr1080.mp4", "clip.mp4", "clip").
		Return(&discord.Delivery{MessageID: "m-12"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.assertExpectations(t)
}

func TestRelay_CompressionExhaustedPostsNotice(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{}, defaultEndpoint)
	f.expectUnrelayed(13)
	ev := textEvent(13, "big one")
	ev.Attachment = models.NewAttachment(models.AttachmentVideo, "file-4", 0, "", "")
	file := &media.File{Path: "/work/acq_4", Filename: "video.mp4", Size: 150 * 1024 * 1024, IsVideo: true}

	f.acquirer.On("Acquire", mock.Anything, testChatID, int64(13), ev.Attachment).Return(file, nil).Once()
	f.acquirer.On("Release", file).Return().Once()
	f.compressor.On("Compress", mock.Anything, "/work/acq_4", int64(100*1024*1024)).
		Return(nil, apperrors.New(apperrors.ErrCodeCompressionExhausted, "no tier fits")).Once()
	f.delivery.On("PostText", mock.Anything, defaultEndpoint,
		"big one\n\n📎 Video too large to attach (150.0MB) — view it on Telegram.").
		Return(&discord.Delivery{MessageID: "m-13"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.MatchedBy(func(m *models.MessageMapping) bool {
		return m.LastContentSnapshot == "big one"
	})).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.delivery.AssertNotCalled(t, "PostFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestRelay_EditsInPlace(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{ForwardEdits: true}, defaultEndpoint)
	ev := textEvent(20, "fixed <b>text</b>")
	ev.IsEdit = true
	ev.EditDate = 1700000100

	existing := &models.MessageMapping{
		SourceChatID:         testChatID,
		SourceMessageID:      20,
		LastEditTimestamp:    1700000000,
		DestinationMessageID: "m-20",
		DestinationThreadID:  "t-1",
		DestinationEndpoint:  algoEndpoint,
		LastContentSnapshot:  "typo text",
	}
	f.store.On("GetMapping", mock.Anything, testChatID, int64(20)).Return(existing, nil).Once()
	f.delivery.On("EditMessage", mock.Anything, algoEndpoint, "m-20", "fixed **text**", "t-1").Return(nil).Once()
	f.store.On("UpdateEdit", mock.Anything, testChatID, int64(20), int64(1700000100), "fixed **text**").Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.delivery.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestRelay_EditIgnoredWhenForwardingDisabled(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{ForwardEdits: false}, defaultEndpoint)
	ev := textEvent(21, "changed")
	ev.IsEdit = true

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.store.AssertNotCalled(t, "GetMapping", mock.Anything, mock.Anything, mock.Anything)
	f.delivery.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay_EditWithoutMappingRelaysAsNew(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{ForwardEdits: true}, defaultEndpoint)
	ev := textEvent(22, "late edit")
	ev.IsEdit = true
	ev.EditDate = 1700000200

	f.store.On("GetMapping", mock.Anything, testChatID, int64(22)).Return(nil, nil).Once()
	f.delivery.On("PostText", mock.Anything, defaultEndpoint, "late edit").Return(&discord.Delivery{MessageID: "m-22"}, nil).Once()
	f.store.On("UpsertMapping", mock.Anything, mock.MatchedBy(func(m *models.MessageMapping) bool {
		return m.LastEditTimestamp == 1700000200
	})).Return(nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.assertExpectations(t)
}

func TestRelay_EditWithSameContentSkipsDiscord(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{ForwardEdits: true}, defaultEndpoint)
	ev := textEvent(23, "same")
	ev.IsEdit = true
	ev.EditDate = 1700000000

	f.store.On("GetMapping", mock.Anything, testChatID, int64(23)).Return(&models.MessageMapping{
		SourceChatID:        testChatID,
		SourceMessageID:     23,
		LastEditTimestamp:   1700000000,
		LastContentSnapshot: "same",
	}, nil).Once()

	require.NoError(t, f.relay.HandleEvent(context.Background(), ev))
	f.delivery.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "UpdateEdit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorSuffix(t *testing.T) {
	tests := []struct {
		name     string
		author   *models.Author
		expected string
	}{
		{name: "nil author", author: nil, expected: ""},
		{name: "name and handle", author: &models.Author{Name: "Ann", Username: "ann"}, expected: "\n\n— Ann @ann"},
		{name: "name only", author: &models.Author{Name: "Ann"}, expected: "\n\n— Ann"},
		{name: "handle only", author: &models.Author{Username: "ann"}, expected: "\n\n— @ann"},
		{name: "empty author", author: &models.Author{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AuthorSuffix(tt.author))
		})
	}
}

func TestOversizeNotice(t *testing.T) {
	assert.Equal(t, "📎 Video too large to attach (150.0MB) — view it on Telegram.", OversizeNotice("Video", 150*1024*1024))
}

func TestKeyLocks_SerializeSameKey(t *testing.T) {
	locks := newKeyLocks()
	key := models.MessageKey{ChatID: 1, MessageID: 2}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(key)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
