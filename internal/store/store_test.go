// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lamachat/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(NewAdapter(storage.NewMemoryKV()))
}

// =============================================================================
// CHAT LIFECYCLE
// =============================================================================

func TestCreateChat(t *testing.T) {
	s := newTestStore(t)
	s.SetSelectedModel("llava:7b")

	chat := s.CreateChat("")

	require.NotEmpty(t, chat.ID)
	assert.Equal(t, DefaultTitle, chat.Title)
	assert.Equal(t, "llava:7b", chat.Model)
	assert.False(t, chat.CreatedAt.IsZero())
	assert.Equal(t, chat.CreatedAt, chat.UpdatedAt)

	current := s.Current()
	require.NotNil(t, current)
	assert.Equal(t, chat.ID, current.ID)
}

func TestCreateChat_HeadInsertion(t *testing.T) {
	s := newTestStore(t)
	first := s.CreateChat("first")
	second := s.CreateChat("second")

	chats := s.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, second.ID, chats[0].ID)
	assert.Equal(t, first.ID, chats[1].ID)
}

func TestCreateChat_UniqueIDs(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := s.CreateChat("").ID
		require.False(t, seen[id], "duplicate chat id %s", id)
		seen[id] = true
	}
}

func TestSelectChat_UnknownResetsView(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("a")

	s.SelectChat("does-not-exist")

	assert.Nil(t, s.Current())
}

func TestDeleteChat_CurrentResetsView(t *testing.T) {
	s := newTestStore(t)
	keep := s.CreateChat("keep")
	gone := s.CreateChat("gone")

	s.DeleteChat(gone.ID)

	assert.Nil(t, s.Current())
	chats := s.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, keep.ID, chats[0].ID)
}

func TestRenameChat(t *testing.T) {
	s := newTestStore(t)
	chat := s.CreateChat("old")

	s.RenameChat(chat.ID, "new title")

	assert.Equal(t, "new title", s.Chats()[0].Title)
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("a")
	s.CreateChat("b")

	s.ClearAll()

	assert.Empty(t, s.Chats())
	assert.Nil(t, s.Current())
}

// =============================================================================
// MESSAGE TRANSITIONS
// =============================================================================

func TestAppendMessage_RequiresCurrentChat(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessage(Message{Role: "user", Content: "hi"})

	assert.ErrorIs(t, err, ErrNoCurrentChat)
}

func TestAppendToken_OrderPreservingConcatenation(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("")
	require.NoError(t, s.AppendMessage(Message{Role: "user", Content: "question"}))
	require.NoError(t, s.AppendMessage(Message{Role: "assistant", Content: ""}))

	tokens := []string{"a", "b b", "", "c", " d "}
	for _, tok := range tokens {
		s.AppendToken(tok)
	}

	msgs := s.Current().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, strings.Join(tokens, ""), msgs[1].Content)
}

func TestAppendToken_IgnoredWithoutTrailingAssistant(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("")
	require.NoError(t, s.AppendMessage(Message{Role: "user", Content: "hi"}))

	s.AppendToken("stray")

	msgs := s.Current().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

// =============================================================================
// FLUSH AND TITLES
// =============================================================================

func TestFlush_TitleFromFirstUserMessage(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("New Chat")
	require.NoError(t, s.AppendMessage(Message{Role: "user", Content: "Explain recursion"}))
	require.NoError(t, s.AppendMessage(Message{Role: "assistant", Content: "Sure."}))

	s.Flush()

	assert.Equal(t, "Explain recursion", s.Current().Title)
}

func TestFlush_TitleTruncation(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("")
	long := strings.Repeat("x", 80)
	require.NoError(t, s.AppendMessage(Message{Role: "user", Content: long}))

	s.Flush()

	title := s.Current().Title
	assert.Equal(t, strings.Repeat("x", 50)+"...", title)
}

func TestFlush_CustomTitlePreserved(t *testing.T) {
	s := newTestStore(t)
	chat := s.CreateChat("")
	s.RenameChat(chat.ID, "my research")
	s.SelectChat(chat.ID)
	require.NoError(t, s.AppendMessage(Message{Role: "user", Content: "hello"}))

	s.Flush()

	assert.Equal(t, "my research", s.Current().Title)
}

// =============================================================================
// GENERATION STATE
// =============================================================================

func TestGenerationState_Transitions(t *testing.T) {
	s := newTestStore(t)
	s.CreateChat("")

	assert.Equal(t, StateIdle, s.State())
	require.NoError(t, s.BeginGeneration())
	assert.Equal(t, StateGenerating, s.State())

	// Second session against the same chat is a precondition violation.
	assert.ErrorIs(t, s.BeginGeneration(), ErrGenerationActive)

	s.EndGeneration()
	assert.Equal(t, StateIdle, s.State())
	require.NoError(t, s.BeginGeneration())
}

func TestBeginGeneration_NeedsChat(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.BeginGeneration(), ErrNoCurrentChat)
}

// =============================================================================
// CONNECTIVITY AND NOTIFICATION
// =============================================================================

func TestSetConnected_NotifiesOnChangeOnly(t *testing.T) {
	s := newTestStore(t)
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.SetConnected(true)
	s.SetConnected(true) // no change, no notification
	s.SetConnected(false)

	count := 0
	for _, c := range changes {
		if c == ChangeConnectivity {
			count++
		}
	}
	assert.Equal(t, 2, count)
	assert.False(t, s.IsConnected())
}

func TestSubscribe_ObservesMutations(t *testing.T) {
	s := newTestStore(t)
	seen := map[Change]int{}
	s.Subscribe(func(c Change) { seen[c]++ })

	s.CreateChat("")
	s.AppendMessage(Message{Role: "user", Content: "x"})
	s.SetSampling(0.9, 2048)

	assert.Positive(t, seen[ChangeChats])
	assert.Positive(t, seen[ChangeMessages])
	assert.Positive(t, seen[ChangeSettings])
}

// =============================================================================
// SETTINGS SURFACE
// =============================================================================

func TestSamplingDefaults(t *testing.T) {
	s := newTestStore(t)
	temp, ctx := s.Sampling()
	assert.Equal(t, 0.7, temp)
	assert.Equal(t, 4096, ctx)
}

func TestDocumentsAndSearchToggle(t *testing.T) {
	s := newTestStore(t)

	s.AddDocument("doc one")
	s.AddDocument("doc two")
	assert.Equal(t, []string{"doc one", "doc two"}, s.Documents())

	s.ClearDocuments()
	assert.Empty(t, s.Documents())

	assert.False(t, s.WebSearchEnabled())
	s.SetWebSearchEnabled(true)
	assert.True(t, s.WebSearchEnabled())
}
