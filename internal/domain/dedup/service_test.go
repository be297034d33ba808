package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	held    bool
	locks   int
	unlocks int
	lockErr error
}

func (l *fakeLocker) TryLock(context.Context) (bool, error) {
	if l.lockErr != nil {
		return false, l.lockErr
	}
	if l.held {
		return false, nil
	}
	l.held = true
	l.locks++
	return true, nil
}

func (l *fakeLocker) Unlock(context.Context) error {
	l.held = false
	l.unlocks++
	return nil
}

func TestService_CommitTakesLock(t *testing.T) {
	a, b, c := threePatients()
	locker := &fakeLocker{}
	svc := NewService(newMockStore(a, b, c), testRegistry("labs"), locker, zerolog.Nop(), Options{})

	report, err := svc.Run(context.Background(), ModeCommit)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalPatients)
	assert.Equal(t, 1, locker.locks)
	assert.Equal(t, 1, locker.unlocks)
	assert.False(t, locker.held)
}

func TestService_RunInProgress(t *testing.T) {
	a, b, c := threePatients()
	store := newMockStore(a, b, c)
	locker := &fakeLocker{held: true}
	svc := NewService(store, testRegistry("labs"), locker, zerolog.Nop(), Options{})

	_, err := svc.Run(context.Background(), ModeCommit)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, 0, store.writes)
	assert.Len(t, store.patients, 3)
}

func TestService_PreviewIgnoresLock(t *testing.T) {
	a, b, c := threePatients()
	locker := &fakeLocker{held: true}
	svc := NewService(newMockStore(a, b, c), testRegistry("labs"), locker, zerolog.Nop(), Options{})

	report, err := svc.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModePreview, report.Mode)
	assert.Equal(t, 1, report.ClustersFound)
	assert.Equal(t, 0, locker.locks)
}

func TestService_LockError(t *testing.T) {
	locker := &fakeLocker{lockErr: errors.New("redis: connection refused")}
	svc := NewService(newMockStore(), testRegistry("labs"), locker, zerolog.Nop(), Options{})

	_, err := svc.Run(context.Background(), ModeCommit)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunInProgress)
}

func TestService_SnapshotFailureIsFatal(t *testing.T) {
	store := newMockStore()
	store.snapErr = errors.New("connection reset")
	locker := &fakeLocker{}
	svc := NewService(store, testRegistry("labs"), locker, zerolog.Nop(), Options{})

	report, err := svc.Run(context.Background(), ModeCommit)
	assert.ErrorIs(t, err, store.snapErr)
	assert.Nil(t, report)
	assert.False(t, locker.held, "lock released on failure")
}

func TestService_UnknownEmailYieldsNoCluster(t *testing.T) {
	svc := NewService(newMockStore(patient(0, "known@x.com", "")), testRegistry("labs"), nil, zerolog.Nop(), Options{})

	report, err := svc.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.ClustersFound)
	assert.Empty(t, report.Clusters)
}
