package database

import (
	"context"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/testutil"
)

func TestWriter_UpdateByIDs_GuardMakesRerunNoop(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	var ids []uint
	for i := 0; i < 7; i++ {
		ids = append(ids, testutil.CreateFace(t, db, models.Face{ImageID: img, Verified: true}).ID)
	}

	var progress []BatchProgress
	w := NewWriter(db, 3, 0).WithProgress(func(p BatchProgress) { progress = append(progress, p) })
	guard := sq.Eq{"verified": true}

	n, err := w.UpdateByIDs(context.Background(), &models.Face{}, ids, guard, map[string]interface{}{"verified": false})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.Len(t, progress, 3)
	assert.Equal(t, int64(7), progress[2].Total)

	n, err = w.UpdateByIDs(context.Background(), &models.Face{}, ids, guard, map[string]interface{}{"verified": false})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestWriter_UpdateByIDs_SetsNull(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	f := testutil.CreateFace(t, db, models.Face{ImageID: img, RecognitionConfidence: testutil.Ptr(0.4)})

	w := NewWriter(db, 10, 0)
	n, err := w.UpdateByIDs(context.Background(), &models.Face{}, []uint{f.ID}, nil,
		map[string]interface{}{"recognition_confidence": gorm.Expr("NULL")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, testutil.ReloadFace(t, db, f.ID).RecognitionConfidence)
}

func TestWriter_DeleteByIDs_Throttled(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	var ids []uint
	for i := 0; i < 4; i++ {
		ids = append(ids, testutil.CreateFace(t, db, models.Face{ImageID: img}).ID)
	}

	w := NewWriter(db, 2, 20*time.Millisecond)
	start := time.Now()
	n, err := w.DeleteByIDs(context.Background(), &models.Face{}, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	n, err = w.DeleteByIDs(context.Background(), &models.Face{}, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestWriter_CancelledContextKeepsPartialCount(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	var ids []uint
	for i := 0; i < 4; i++ {
		ids = append(ids, testutil.CreateFace(t, db, models.Face{ImageID: img}).ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWriter(db, 2, 0).WithProgress(func(p BatchProgress) { cancel() })
	n, err := w.UpdateByIDs(ctx, &models.Face{}, ids, nil, map[string]interface{}{"verified": true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(2), n)
}

// fixBeforeFirstUpdate registers a callback that, on the first update issued
// against db, sets the confidence of face id to 1.0 as a concurrent writer
// would.
func fixBeforeFirstUpdate(t *testing.T, db *gorm.DB, id uint) {
	t.Helper()
	fired := false
	err := db.Callback().Update().Before("gorm:update").Register("test:concurrent_fix", func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		err := tx.Session(&gorm.Session{NewDB: true}).Model(&models.Face{}).
			Where("id = ?", id).Update("recognition_confidence", 1.0).Error
		require.NoError(t, err)
	})
	require.NoError(t, err)
}

func TestWriter_UpdateByIDs_ReportsOnlyWrittenRows(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	first := testutil.CreateFace(t, db, models.Face{ImageID: img, Verified: true, RecognitionConfidence: testutil.Ptr(0.5)})
	second := testutil.CreateFace(t, db, models.Face{ImageID: img, Verified: true, RecognitionConfidence: testutil.Ptr(0.5)})
	fixBeforeFirstUpdate(t, db, second.ID)

	var progress []BatchProgress
	w := NewWriter(db, 10, 0).WithProgress(func(p BatchProgress) { progress = append(progress, p) })
	guard := sq.Lt{"recognition_confidence": 0.99}

	n, err := w.UpdateByIDs(context.Background(), &models.Face{}, []uint{first.ID, second.ID}, guard,
		map[string]interface{}{"recognition_confidence": 1.0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, progress, 1)
	assert.Equal(t, []uint{first.ID}, progress[0].IDs)
	assert.Equal(t, int64(1), progress[0].Affected)
}

func TestWriter_DeleteByIDs_ReportsOnlyDeletedRows(t *testing.T) {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "a.jpg")
	keep := testutil.CreateFace(t, db, models.Face{ImageID: img, Verified: true})
	drop := testutil.CreateFace(t, db, models.Face{ImageID: img})

	var progress []BatchProgress
	w := NewWriter(db, 10, 0).WithProgress(func(p BatchProgress) { progress = append(progress, p) })
	n, err := w.DeleteByIDs(context.Background(), &models.Face{}, []uint{keep.ID, drop.ID}, sq.Eq{"verified": false})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, progress, 1)
	assert.Equal(t, []uint{drop.ID}, progress[0].IDs)
	assert.True(t, testutil.FaceExists(t, db, keep.ID))
}
