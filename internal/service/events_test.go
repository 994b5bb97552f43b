package service

import (
	"context"
	"testing"
	"time"

	"tgcord/internal/models"
	"tgcord/pkg/userclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLiveEvents(sub EventSubscriber, store *mockStore, delivery *mockDelivery) *LiveEvents {
	composer := NewRelay(RelayDeps{}, RelayConfig{}, quietLogger())
	return NewLiveEvents(sub, store, delivery, composer, testChatID,
		models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 5}, quietLogger())
}

func TestLiveEvents_DeleteRemovesRelayedCopies(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)
	ctx := context.Background()

	store.On("GetMapping", mock.Anything, testChatID, int64(1)).Return(mappingFor(1, "one", 100), nil).Once()
	store.On("GetMapping", mock.Anything, testChatID, int64(2)).Return(nil, nil).Once()
	delivery.On("DeleteMessage", mock.Anything, algoEndpoint, "d-one", "").Return(nil).Once()
	store.On("MarkDeleted", mock.Anything, testChatID, int64(1)).Return(nil).Once()

	live.HandleEvent(ctx, userclient.Event{Type: userclient.EventDeleted, ChatID: testChatID, MessageIDs: []int64{1, 2}})

	store.AssertExpectations(t)
	delivery.AssertExpectations(t)
}

func TestLiveEvents_DeleteWithoutChatIDUsesSourceChat(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)

	store.On("GetMapping", mock.Anything, testChatID, int64(3)).Return(nil, nil).Once()

	live.HandleEvent(context.Background(), userclient.Event{Type: userclient.EventDeleted, MessageIDs: []int64{3}})

	store.AssertExpectations(t)
}

func TestLiveEvents_AlreadyDeletedRowIsLeftAlone(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)

	m := mappingFor(4, "four", 100)
	m.Deleted = true
	store.On("GetMapping", mock.Anything, testChatID, int64(4)).Return(m, nil).Once()

	live.HandleEvent(context.Background(), userclient.Event{Type: userclient.EventDeleted, ChatID: testChatID, MessageIDs: []int64{4}})

	delivery.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "MarkDeleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiveEvents_EditSyncsContent(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)

	store.On("GetMapping", mock.Anything, testChatID, int64(5)).Return(mappingFor(5, "before", 100), nil).Once()
	delivery.On("EditMessage", mock.Anything, algoEndpoint, "d-before", "**after**", "").Return(nil).Once()
	store.On("UpdateEdit", mock.Anything, testChatID, int64(5), int64(150), "**after**").Return(nil).Once()

	live.HandleEvent(context.Background(), userclient.Event{
		Type:    userclient.EventEdited,
		ChatID:  testChatID,
		Message: &userclient.Message{ID: 5, HTML: "<b>after</b>", Date: 100, EditDate: 150},
	})

	store.AssertExpectations(t)
	delivery.AssertExpectations(t)
}

func TestLiveEvents_IgnoresOtherChats(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)

	live.HandleEvent(context.Background(), userclient.Event{Type: userclient.EventDeleted, ChatID: -100777, MessageIDs: []int64{1}})

	store.AssertNotCalled(t, "GetMapping", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiveEvents_ReconnectsAfterStreamDrops(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	sub := &scriptedSubscriber{batches: [][]userclient.Event{
		{{Type: userclient.EventDeleted, ChatID: testChatID, MessageIDs: []int64{8}}},
		{{Type: userclient.EventDeleted, ChatID: testChatID, MessageIDs: []int64{9}}},
	}}
	live := newTestLiveEvents(sub, store, delivery)

	store.On("GetMapping", mock.Anything, testChatID, int64(8)).Return(nil, nil).Once()
	store.On("GetMapping", mock.Anything, testChatID, int64(9)).Return(nil, nil).Once()

	require.NoError(t, live.Start(context.Background()))
	assert.Eventually(t, func() bool { return sub.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	live.Stop()

	assert.False(t, live.IsRunning())
	store.AssertExpectations(t)
}

func TestLiveEvents_StaleEditIsDropped(t *testing.T) {
	store, delivery := &mockStore{}, &mockDelivery{}
	live := newTestLiveEvents(nil, store, delivery)

	store.On("GetMapping", mock.Anything, testChatID, int64(6)).Return(mappingFor(6, "latest", 300), nil).Once()

	live.HandleEvent(context.Background(), userclient.Event{
		Type:    userclient.EventEdited,
		ChatID:  testChatID,
		Message: &userclient.Message{ID: 6, HTML: "earlier", Date: 100, EditDate: 200},
	})

	store.AssertExpectations(t)
	delivery.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateEdit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
