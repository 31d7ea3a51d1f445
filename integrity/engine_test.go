package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/duplicates"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/testutil"
)

// newEngine uses tiny pages and batches so every test crosses page and
// batch boundaries.
func newEngine(db *gorm.DB, events realtime.Publisher) *Engine {
	src := policy.Static(policy.Default())
	resolver := duplicates.NewResolver(db, database.NewScanner(db, 2), database.NewWriter(db, 2, 0), src, nil)
	return NewEngine(db, src, resolver, events, Options{
		PageSize:           2,
		ExistenceBatchSize: 2,
		WriteBatchSize:     2,
		SampleSize:         3,
		RepairIDLimit:      4,
	})
}

type fixture struct {
	db     *gorm.DB
	image  uint
	person models.Person
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	return fixture{
		db:     db,
		image:  testutil.CreateImage(t, db, "a.jpg"),
		person: testutil.CreatePerson(t, db, models.Person{PrimaryName: "Jane"}),
	}
}

func (f fixture) face(t *testing.T, personID *uint, conf *float64, verified bool, descriptor bool) models.Face {
	face := models.Face{ImageID: f.image, PersonID: personID, RecognitionConfidence: conf, Verified: verified}
	if descriptor {
		face.SetDescriptor([]float32{1, 0, 0})
	}
	return testutil.CreateFace(t, f.db, face)
}

func TestDetect_EachCategory(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	ghost := testutil.Ptr(uint(9999))

	f.face(t, pid, testutil.Ptr(1.0), true, true)  // healthy verified
	f.face(t, pid, testutil.Ptr(0.8), false, true) // healthy candidate
	f.face(t, nil, testutil.Ptr(1.0), true, false) // verified_without_identity
	f.face(t, pid, testutil.Ptr(0.7), true, false) // verified_wrong_confidence
	f.face(t, pid, nil, true, false)               // verified_wrong_confidence
	f.face(t, pid, testutil.Ptr(0.995), false, false)
	f.face(t, pid, nil, false, false)               // identity_without_confidence
	f.face(t, nil, testutil.Ptr(0.4), false, false) // confidence_without_identity
	f.face(t, ghost, testutil.Ptr(0.8), false, false)
	f.face(t, pid, testutil.Ptr(0.3), false, true) // weak_links
	f.face(t, nil, nil, false, true)               // unrecognized
	testutil.CreateFace(t, f.db, models.Face{ImageID: 4242})

	e := newEngine(f.db, nil)
	want := map[Category]int{
		VerifiedWithoutIdentity:   1,
		VerifiedWrongConfidence:   2,
		ConfidenceWithoutVerified: 1,
		IdentityWithoutConfidence: 1,
		ConfidenceWithoutIdentity: 2,
		DanglingIdentityReference: 1,
		DanglingPhotoReference:    1,
		WeakLinks:                 1,
		Unrecognized:              1,
	}
	for c, n := range want {
		finding, err := e.Detect(context.Background(), c)
		require.NoError(t, err, c)
		assert.Equal(t, n, finding.Count, c)
		assert.Len(t, finding.Sample, n, c)
	}

	_, err := e.Detect(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestDetect_ScansPastFirstPage(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	// Interleave matching and non-matching rows over many pages of two.
	for i := 0; i < 9; i++ {
		f.face(t, pid, testutil.Ptr(0.995), false, false)
		f.face(t, pid, testutil.Ptr(0.8), false, false)
	}

	finding, err := newEngine(f.db, nil).Detect(context.Background(), ConfidenceWithoutVerified)
	require.NoError(t, err)
	assert.Equal(t, 9, finding.Count)
	assert.Len(t, finding.Sample, 3)
}

func TestOffendingFaces_SkipDescriptors(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	weak := f.face(t, pid, testutil.Ptr(0.2), false, true)

	e := newEngine(f.db, nil)
	rule, ok := lookupRule(WeakLinks)
	require.True(t, ok)
	faces, err := e.offendingFaces(context.Background(), rule, policy.Default())
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, weak.ID, faces[0].ID)
	assert.Equal(t, f.image, faces[0].ImageID)
	assert.Nil(t, faces[0].Descriptor)
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	pid := &f.person.ID
	f.face(t, nil, testutil.Ptr(1.0), true, false)
	f.face(t, pid, testutil.Ptr(0.3), false, true)
	f.face(t, nil, nil, false, true)
	testutil.CreatePerson(t, f.db, models.Person{PrimaryName: "Lonely", Email: testutil.Ptr("same@example.com")})
	testutil.CreatePerson(t, f.db, models.Person{PrimaryName: "Lonelier", Email: testutil.Ptr("SAME@example.com")})

	rec := &realtime.Recorder{}
	report, err := newEngine(f.db, rec).Audit(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Errors)
	assert.Equal(t, int64(3), report.Stats.Faces)
	assert.Equal(t, int64(3), report.Stats.People)
	assert.Equal(t, int64(1), report.Stats.Images)

	assert.Equal(t, 1, report.Violations[VerifiedWithoutIdentity])
	assert.Equal(t, 1, report.Violations[WeakLinks])
	assert.Equal(t, 1, report.Violations[Unrecognized])
	assert.Equal(t, 0, report.Violations[DanglingPhotoReference])
	require.NotNil(t, report.IdentityIssues.WithoutLinks)
	assert.Equal(t, 2, *report.IdentityIssues.WithoutLinks)
	require.NotNil(t, report.IdentityIssues.DuplicateGroups)
	assert.Equal(t, 1, *report.IdentityIssues.DuplicateGroups)

	// verified_without_identity + confidence_without_identity + weak_links
	// + 2 without links + 1 group; unrecognized is informational.
	assert.Equal(t, 6, report.TotalIssues)
	assert.Len(t, report.Details[PeopleWithoutLinks], 2)
	assert.False(t, report.Healthy())

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventAuditStarted, events[0].Type)
	assert.Equal(t, realtime.EventAuditCompleted, events[1].Type)
}

func TestAudit_FailedDetectorIsReportedNotZeroed(t *testing.T) {
	f := newFixture(t)
	f.face(t, nil, testutil.Ptr(1.0), true, false)
	require.NoError(t, f.db.Migrator().DropTable(&models.Image{}))

	report, err := newEngine(f.db, nil).Audit(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report.Errors, string(DanglingPhotoReference))
	assert.Contains(t, report.Errors, "stats")
	_, counted := report.Violations[DanglingPhotoReference]
	assert.False(t, counted)
	assert.Equal(t, 1, report.Violations[VerifiedWithoutIdentity])
}

func TestAudit_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.face(t, nil, testutil.Ptr(1.0), true, false)

	e := newEngine(f.db, nil)
	e.Concurrency = 4
	report, err := e.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Violations[VerifiedWithoutIdentity])
}

func TestCategories(t *testing.T) {
	seen := map[Category]bool{}
	for _, info := range Categories() {
		assert.False(t, seen[info.Category])
		seen[info.Category] = true
		_, hasRule := lookupRule(info.Category)
		if info.AutoFixable {
			assert.True(t, hasRule, info.Category)
		}
	}

	c, err := ParseCategory("weak_links")
	require.NoError(t, err)
	assert.Equal(t, WeakLinks, c)
	_, err = ParseCategory("nope")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}
