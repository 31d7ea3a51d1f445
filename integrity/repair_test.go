package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/testutil"
)

func TestRepair_VerifiedWrongConfidence(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	bad := []models.Face{
		f.face(t, pid, testutil.Ptr(0.5), true, false),
		f.face(t, pid, nil, true, false),
		f.face(t, pid, testutil.Ptr(0.9), true, false),
	}
	good := f.face(t, pid, testutil.Ptr(0.995), true, false)
	unverified := f.face(t, pid, testutil.Ptr(0.5), false, false)

	rec := &realtime.Recorder{}
	e := newEngine(f.db, rec)
	res := e.Repair(context.Background(), VerifiedWrongConfidence)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(3), res.Fixed)
	assert.Equal(t, 3, res.Candidates)
	assert.ElementsMatch(t, []uint{bad[0].ID, bad[1].ID, bad[2].ID}, res.IDs)

	for _, b := range bad {
		got := testutil.ReloadFace(t, f.db, b.ID)
		require.NotNil(t, got.RecognitionConfidence)
		assert.Equal(t, 1.0, *got.RecognitionConfidence)
	}
	assert.Equal(t, 0.995, *testutil.ReloadFace(t, f.db, good.ID).RecognitionConfidence)
	assert.Equal(t, 0.5, *testutil.ReloadFace(t, f.db, unverified.ID).RecognitionConfidence)

	var batches int
	for _, ev := range rec.Events() {
		if ev.Type == realtime.EventRepairBatch {
			batches++
		}
	}
	assert.Equal(t, 2, batches)
	assert.Equal(t, realtime.EventRepairCompleted, rec.Events()[len(rec.Events())-1].Type)

	again := e.Repair(context.Background(), VerifiedWrongConfidence)
	assert.True(t, again.Success)
	assert.Zero(t, again.Fixed)
	assert.Empty(t, again.IDs)
}

func TestRepair_SecondRunFixesNothing(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	f.face(t, nil, testutil.Ptr(1.0), true, false)
	f.face(t, pid, testutil.Ptr(0.7), true, false)
	f.face(t, pid, testutil.Ptr(0.995), false, false)
	f.face(t, pid, nil, false, false)
	f.face(t, nil, testutil.Ptr(0.4), false, false)
	f.face(t, testutil.Ptr(uint(9999)), testutil.Ptr(0.8), true, true)
	f.face(t, pid, testutil.Ptr(0.3), false, true)
	testutil.CreateFace(t, f.db, models.Face{ImageID: 4242})

	e := newEngine(f.db, nil)
	for _, info := range Categories() {
		if !info.AutoFixable {
			continue
		}
		first := e.Repair(context.Background(), info.Category)
		require.True(t, first.Success, "%s: %s", info.Category, first.Error)
		second := e.Repair(context.Background(), info.Category)
		require.True(t, second.Success, info.Category)
		assert.Zero(t, second.Fixed, info.Category)

		finding, err := e.Detect(context.Background(), info.Category)
		require.NoError(t, err)
		assert.Zero(t, finding.Count, info.Category)
	}
}

func TestRepairAll_ConvergesInOnePass(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	f.face(t, nil, testutil.Ptr(1.0), true, false)
	f.face(t, testutil.Ptr(uint(9999)), testutil.Ptr(0.995), true, true)
	f.face(t, pid, nil, false, true)
	f.face(t, pid, testutil.Ptr(0.2), false, true)
	testutil.CreateFace(t, f.db, models.Face{ImageID: 4242, PersonID: pid, Verified: true})

	e := newEngine(f.db, nil)
	results := e.RepairAll(context.Background())
	require.NotEmpty(t, results)
	runID := results[0].RunID
	for _, r := range results {
		assert.True(t, r.Success, "%s: %s", r.Category, r.Error)
		assert.Equal(t, runID, r.RunID)
	}

	report, err := e.Audit(context.Background())
	require.NoError(t, err)
	for _, info := range Categories() {
		if info.AutoFixable {
			assert.Zero(t, report.Violations[info.Category], info.Category)
		}
	}
}

func TestRepair_DanglingPhotoDeletesLink(t *testing.T) {
	f := newFixture(t)
	orphan := testutil.CreateFace(t, f.db, models.Face{ImageID: 4242})
	kept := f.face(t, nil, nil, false, true)

	e := newEngine(f.db, nil)
	finding, err := e.Detect(context.Background(), DanglingPhotoReference)
	require.NoError(t, err)
	require.Equal(t, 1, finding.Count)
	assert.Equal(t, orphan.ID, finding.Sample[0].ID)

	res := e.Repair(context.Background(), DanglingPhotoReference)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(1), res.Fixed)
	assert.Equal(t, []uint{orphan.ID}, res.IDs)

	assert.False(t, testutil.FaceExists(t, f.db, orphan.ID))
	assert.True(t, testutil.FaceExists(t, f.db, kept.ID))

	finding, err = e.Detect(context.Background(), DanglingPhotoReference)
	require.NoError(t, err)
	assert.Zero(t, finding.Count)
}

func TestRepair_DanglingIdentityUnassigns(t *testing.T) {
	f := newFixture(t)
	ghost := f.face(t, testutil.Ptr(uint(9999)), testutil.Ptr(1.0), true, true)

	res := newEngine(f.db, nil).Repair(context.Background(), DanglingIdentityReference)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(1), res.Fixed)

	got := testutil.ReloadFace(t, f.db, ghost.ID)
	assert.Nil(t, got.PersonID)
	assert.False(t, got.Verified)
	assert.Nil(t, got.RecognitionConfidence)
	assert.True(t, got.HasDescriptor())
}

func TestRepair_WeakLinksRaisedToMatchThreshold(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	weak := f.face(t, pid, testutil.Ptr(0.2), false, true)
	noDescriptor := f.face(t, pid, testutil.Ptr(0.2), false, false)

	e := newEngine(f.db, nil)
	res := e.Repair(context.Background(), WeakLinks)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(1), res.Fixed)

	got := testutil.ReloadFace(t, f.db, weak.ID)
	assert.InDelta(t, 0.6, *got.RecognitionConfidence, 1e-9)
	assert.False(t, got.Verified)
	assert.InDelta(t, 0.2, *testutil.ReloadFace(t, f.db, noDescriptor.ID).RecognitionConfidence, 1e-9)
}

func TestRepair_IdentityWithoutConfidenceUsesUnknownDefault(t *testing.T) {
	f := newFixture(t)
	face := f.face(t, &f.person.ID, nil, false, false)

	res := newEngine(f.db, nil).Repair(context.Background(), IdentityWithoutConfidence)
	require.True(t, res.Success, res.Error)
	got := testutil.ReloadFace(t, f.db, face.ID)
	assert.InDelta(t, 0.5, *got.RecognitionConfidence, 1e-9)
	assert.False(t, got.Verified)
}

func TestRepair_IDsAreCapped(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.face(t, nil, testutil.Ptr(0.4), false, false)
	}

	res := newEngine(f.db, nil).Repair(context.Background(), ConfidenceWithoutIdentity)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(7), res.Fixed)
	assert.Len(t, res.IDs, 4)
}

func TestRepair_IDsExcludeRowsFixedConcurrently(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	first := f.face(t, pid, testutil.Ptr(0.5), true, false)
	second := f.face(t, pid, testutil.Ptr(0.5), true, false)

	// Another writer repairs the second link between id collection and the
	// first write.
	fired := false
	err := f.db.Callback().Update().Before("gorm:update").Register("test:concurrent_fix", func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		err := tx.Session(&gorm.Session{NewDB: true}).Model(&models.Face{}).
			Where("id = ?", second.ID).Update("recognition_confidence", 1.0).Error
		require.NoError(t, err)
	})
	require.NoError(t, err)

	res := newEngine(f.db, nil).Repair(context.Background(), VerifiedWrongConfidence)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, int64(1), res.Fixed)
	assert.Equal(t, []uint{first.ID}, res.IDs)
}

func TestRepair_UnknownOrInformationalCategoryIsReported(t *testing.T) {
	e := newEngine(newFixture(t).db, nil)

	res := e.Repair(context.Background(), "drop_everything")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrUnknownCategory.Error())

	res = e.Repair(context.Background(), Unrecognized)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrNotAutoFixable.Error())
}

func TestRepair_CancelledContextReportsFailure(t *testing.T) {
	f := newFixture(t)
	f.face(t, nil, testutil.Ptr(0.4), false, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newEngine(f.db, nil).Repair(ctx, ConfidenceWithoutIdentity)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, res.Fixed)
}
