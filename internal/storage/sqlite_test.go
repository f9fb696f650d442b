package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReceipts_SeenAndOwnership(t *testing.T) {
	s := openTestStore(t)

	seen, err := s.HasTransaction("T1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.SaveReceipt("T1", "elite_pass", ReceiptVerified))

	seen, err = s.HasTransaction("T1")
	require.NoError(t, err)
	assert.True(t, seen)

	owned, err := s.HasVerifiedReceipt("elite_pass")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = s.HasVerifiedReceipt("coin_pack_small")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestReceipts_DuplicateSaveKeepsFirst(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveReceipt("T1", "elite_pass", ReceiptVerified))
	require.NoError(t, s.SaveReceipt("T1", "elite_pass", ReceiptRejected))

	receipts, err := s.ReceiptsByProduct("elite_pass")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, ReceiptVerified, receipts[0].State)
}

func TestReceipts_RejectedDoesNotCountAsOwned(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveReceipt("T2", "skin_red", ReceiptRejected))

	owned, err := s.HasVerifiedReceipt("skin_red")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestJournal_AtMostOncePerSession(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.JournalSubmission("s-1", "endless", 120, true))

	submitted, err := s.SessionSubmitted("s-1")
	require.NoError(t, err)
	assert.True(t, submitted)

	// A second insert for the same grant must fail.
	assert.Error(t, s.JournalSubmission("s-1", "endless", 120, true))

	submitted, err = s.SessionSubmitted("s-2")
	require.NoError(t, err)
	assert.False(t, submitted)
}

func TestBestScore_KeepsMax(t *testing.T) {
	s := openTestStore(t)

	score, err := s.BestScore("endless")
	require.NoError(t, err)
	assert.Equal(t, 0, score)

	require.NoError(t, s.SaveBestScore("endless", 100))
	require.NoError(t, s.SaveBestScore("endless", 60))

	score, err = s.BestScore("endless")
	require.NoError(t, err)
	assert.Equal(t, 100, score)

	require.NoError(t, s.SaveBestScore("endless", 150))
	score, err = s.BestScore("endless")
	require.NoError(t, err)
	assert.Equal(t, 150, score)
}
