package duplicates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/testutil"
)

type mergeFixture struct {
	db      *gorm.DB
	a, b, c models.Person
	faces   []models.Face
}

func newMergeFixture(t *testing.T) mergeFixture {
	db := testutil.NewDB(t)
	img := testutil.CreateImage(t, db, "group.jpg")
	f := mergeFixture{db: db}
	f.a = testutil.CreatePerson(t, db, models.Person{PrimaryName: "Alice", CreatedAt: 100})
	f.b = testutil.CreatePerson(t, db, models.Person{
		PrimaryName: "Ally", Email: testutil.Ptr("old@example.com"), CreatedAt: 200,
	})
	f.c = testutil.CreatePerson(t, db, models.Person{
		PrimaryName: "A.", Email: testutil.Ptr("new@example.com"), Bio: testutil.Ptr("bio"), CreatedAt: 300,
	})
	require.NoError(t, db.Create(&models.Alias{PersonID: f.b.ID, Name: "Al"}).Error)

	for _, p := range []models.Person{f.a, f.b, f.b, f.c} {
		pid := p.ID
		f.faces = append(f.faces, testutil.CreateFace(t, db, models.Face{
			ImageID: img, PersonID: &pid, Verified: true, RecognitionConfidence: testutil.Ptr(1.0),
		}))
	}
	return f
}

func (f mergeFixture) mapping(t *testing.T) map[uint]uint {
	out := map[uint]uint{}
	for _, face := range f.faces {
		got := testutil.ReloadFace(t, f.db, face.ID)
		require.NotNil(t, got.PersonID)
		out[face.ID] = *got.PersonID
	}
	return out
}

func TestMerge(t *testing.T) {
	f := newMergeFixture(t)
	rec := &realtime.Recorder{}
	r := newResolver(f.db, rec)

	res, err := r.Merge(context.Background(), MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.b.ID, f.c.ID}})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.MovedLinks)
	assert.Equal(t, int64(2), res.DeletedCount)
	assert.Equal(t, []string{"email", "bio"}, res.MergedFields)
	assert.Equal(t, int64(3), res.AliasesAdded)

	// The kept identity's own verified link is untouched.
	kept := testutil.ReloadFace(t, f.db, f.faces[0].ID)
	assert.True(t, kept.Verified)

	for _, face := range f.faces[1:] {
		got := testutil.ReloadFace(t, f.db, face.ID)
		assert.Equal(t, f.a.ID, *got.PersonID)
		assert.False(t, got.Verified)
		assert.InDelta(t, policy.Default().MatchThreshold, *got.RecognitionConfidence, 1e-9)
	}

	var keep models.Person
	require.NoError(t, f.db.Preload("Aliases").First(&keep, f.a.ID).Error)
	// c is the most recent merge identity, so its email wins.
	assert.Equal(t, "new@example.com", *keep.Email)
	assert.Equal(t, "bio", *keep.Bio)
	var names []string
	for _, a := range keep.Aliases {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"A.", "Ally", "Al"}, names)

	assert.False(t, testutil.PersonExists(t, f.db, f.b.ID))
	assert.False(t, testutil.PersonExists(t, f.db, f.c.ID))

	var orphanAliases int64
	require.NoError(t, f.db.Model(&models.Alias{}).Where("person_id IN ?", []uint{f.b.ID, f.c.ID}).Count(&orphanAliases).Error)
	assert.Zero(t, orphanAliases)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, realtime.EventMergeCompleted, events[len(events)-1].Type)
}

func TestMerge_OrderIndependent(t *testing.T) {
	together := newMergeFixture(t)
	_, err := newResolver(together.db, nil).Merge(context.Background(),
		MergeRequest{KeepID: together.a.ID, MergeIDs: []uint{together.b.ID, together.c.ID}})
	require.NoError(t, err)

	stepwise := newMergeFixture(t)
	r := newResolver(stepwise.db, nil)
	_, err = r.Merge(context.Background(), MergeRequest{KeepID: stepwise.a.ID, MergeIDs: []uint{stepwise.c.ID}})
	require.NoError(t, err)
	_, err = r.Merge(context.Background(), MergeRequest{KeepID: stepwise.a.ID, MergeIDs: []uint{stepwise.b.ID}})
	require.NoError(t, err)

	assert.Equal(t, together.mapping(t), stepwise.mapping(t))
}

func TestMerge_RetryAfterCompletionIsRejectedWithoutMutation(t *testing.T) {
	f := newMergeFixture(t)
	r := newResolver(f.db, nil)
	_, err := r.Merge(context.Background(), MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.b.ID}})
	require.NoError(t, err)
	before := f.mapping(t)

	_, err = r.Merge(context.Background(), MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.b.ID, f.c.ID}})
	require.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Equal(t, before, f.mapping(t))
	assert.True(t, testutil.PersonExists(t, f.db, f.c.ID))
}

func TestMerge_StepsAreIdempotent(t *testing.T) {
	f := newMergeFixture(t)
	r := newResolver(f.db, nil)
	ctx := context.Background()

	// Simulate a run that moved the links and then stopped before deleting.
	first, err := r.Merge(ctx, MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.b.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.MovedLinks)

	n, err := r.Writer.UpdateByIDs(ctx, &models.Face{}, []uint{f.faces[1].ID}, nil, map[string]interface{}{"verified": true})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Links already owned by the keep identity are not moved again.
	second, err := r.Merge(ctx, MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.c.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.MovedLinks)
	assert.True(t, testutil.ReloadFace(t, f.db, f.faces[1].ID).Verified)
}

func TestMerge_Validation(t *testing.T) {
	f := newMergeFixture(t)
	r := newResolver(f.db, nil)
	ctx := context.Background()

	_, err := r.Merge(ctx, MergeRequest{KeepID: f.a.ID})
	assert.ErrorIs(t, err, ErrInvalidMerge)

	_, err = r.Merge(ctx, MergeRequest{KeepID: f.a.ID, MergeIDs: []uint{f.a.ID}})
	assert.ErrorIs(t, err, ErrInvalidMerge)

	_, err = r.Merge(ctx, MergeRequest{KeepID: 999, MergeIDs: []uint{f.b.ID}})
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	// Nothing moved.
	for _, face := range f.faces {
		assert.True(t, testutil.ReloadFace(t, f.db, face.ID).Verified)
	}
}

func TestDeleteWithUnlink(t *testing.T) {
	f := newMergeFixture(t)
	rec := &realtime.Recorder{}
	r := newResolver(f.db, rec)

	res, err := r.DeleteWithUnlink(context.Background(), f.b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.UnlinkedLinks)
	assert.True(t, res.Deleted)

	for _, face := range f.faces[1:3] {
		got := testutil.ReloadFace(t, f.db, face.ID)
		assert.Nil(t, got.PersonID)
		assert.False(t, got.Verified)
		assert.Nil(t, got.RecognitionConfidence)
	}
	assert.False(t, testutil.PersonExists(t, f.db, f.b.ID))
	assert.True(t, testutil.FaceExists(t, f.db, f.faces[1].ID))

	_, err = r.DeleteWithUnlink(context.Background(), f.b.ID)
	assert.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Equal(t, realtime.EventPersonDeleted, rec.Events()[0].Type)
}
