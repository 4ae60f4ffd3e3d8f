package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changeledger/changeledger/pkg/audit"
)

type fakeStore struct {
	Store
	inserted  []*audit.Log
	insertErr error
}

func (f *fakeStore) Insert(ctx context.Context, exec Execer, logs []*audit.Log) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, logs...)
	return nil
}

func orderChangeSet() audit.ChangeSet {
	return audit.ChangeSet{
		Entries: []audit.EntityEntry{
			{
				EntityType: "Order",
				TableName:  "orders",
				State:      audit.StateModified,
				PrimaryKey: "42",
				Properties: []audit.PropertyEntry{
					{Name: "Status", TypeName: "string", OriginalValue: "pending", CurrentValue: "shipped"},
				},
			},
		},
	}
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStore{}
	recorder := NewRecorder(audit.NewCapturer(audit.DefaultOptions(), nil), fake, nil)

	userID := "user-1"
	err := recorder.Record(ctx, nil, orderChangeSet(), audit.RequestContext{UserID: &userID})
	require.NoError(t, err)

	require.Len(t, fake.inserted, 1)
	log := fake.inserted[0]
	assert.Equal(t, "42", log.EntityID)
	assert.Equal(t, "orders", log.EntityName)
	assert.Equal(t, "user-1", *log.CreatorID)
	require.Len(t, log.PropertyChanges, 1)
	assert.Equal(t, "shipped", *log.PropertyChanges[0].NewValue)
}

func TestRecorder_Record_NothingLoggable(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStore{insertErr: errors.New("should not be called")}

	opts := audit.DefaultOptions()
	opts.Enabled = false
	recorder := NewRecorder(audit.NewCapturer(opts, nil), fake, nil)

	err := recorder.Record(ctx, nil, orderChangeSet(), audit.RequestContext{})
	assert.NoError(t, err)
	assert.Empty(t, fake.inserted)
}

func TestRecorder_Record_PropagatesStoreFailure(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStore{insertErr: errors.New("connection reset")}
	recorder := NewRecorder(audit.NewCapturer(audit.DefaultOptions(), nil), fake, nil)

	err := recorder.Record(ctx, nil, orderChangeSet(), audit.RequestContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
