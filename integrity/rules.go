package integrity

import (
	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
)

var (
	isVerified    = sq.Eq{"verified": true}
	notVerified   = sq.Eq{"verified": false}
	hasPerson     = sq.NotEq{"person_id": nil}
	noPerson      = sq.Eq{"person_id": nil}
	hasConfidence = sq.NotEq{"recognition_confidence": nil}
	noConfidence  = sq.Eq{"recognition_confidence": nil}
	hasDescriptor = sq.NotEq{"descriptor": nil}
)

// antiJoin describes a reference column whose target row must exist.
type antiJoin struct {
	column string
	target interface{}
	table  string
}

// faceRule is one violation over the faces table.
//
// where is evaluated by the store. When keep is set the rule runs through the
// paginated scanner and keep is applied to every candidate row; this is how
// threshold rules avoid under-reporting past the first page. When anti is set
// the candidates are the rows whose reference has no target.
type faceRule struct {
	category Category
	where    func(p policy.Policy) sq.Sqlizer
	keep     func(f models.Face, p policy.Policy) bool
	anti     *antiJoin

	// guard qualifies every repair write; it must match exactly the
	// offending rows so a repaired row is never touched again.
	guard   func(p policy.Policy) sq.Sqlizer
	updates func(p policy.Policy) map[string]interface{}
	remove  bool
}

func (r faceRule) fixable() bool {
	return r.remove || r.updates != nil
}

func clearAssignment() map[string]interface{} {
	return map[string]interface{}{
		"person_id":              gorm.Expr("NULL"),
		"verified":               false,
		"recognition_confidence": gorm.Expr("NULL"),
	}
}

func danglingGuard(a *antiJoin) sq.Sqlizer {
	return sq.And{
		sq.NotEq{a.column: nil},
		sq.Expr(a.column + " NOT IN (SELECT id FROM " + a.table + ")"),
	}
}

func faceRules() []faceRule {
	photoRef := &antiJoin{column: "image_id", target: &models.Image{}, table: models.Image{}.TableName()}
	personRef := &antiJoin{column: "person_id", target: &models.Person{}, table: models.Person{}.TableName()}

	return []faceRule{
		{
			category: DanglingPhotoReference,
			anti:     photoRef,
			guard:    func(policy.Policy) sq.Sqlizer { return danglingGuard(photoRef) },
			remove:   true,
		},
		{
			category: DanglingIdentityReference,
			anti:     personRef,
			guard:    func(policy.Policy) sq.Sqlizer { return danglingGuard(personRef) },
			updates:  func(policy.Policy) map[string]interface{} { return clearAssignment() },
		},
		{
			category: VerifiedWithoutIdentity,
			where:    func(policy.Policy) sq.Sqlizer { return sq.And{isVerified, noPerson} },
			updates: func(policy.Policy) map[string]interface{} {
				return map[string]interface{}{
					"verified":               false,
					"recognition_confidence": gorm.Expr("NULL"),
				}
			},
		},
		{
			category: ConfidenceWithoutIdentity,
			where:    func(policy.Policy) sq.Sqlizer { return sq.And{noPerson, hasConfidence} },
			updates: func(policy.Policy) map[string]interface{} {
				return map[string]interface{}{"recognition_confidence": gorm.Expr("NULL")}
			},
		},
		{
			category: VerifiedWrongConfidence,
			where: func(p policy.Policy) sq.Sqlizer {
				return sq.And{isVerified, hasPerson, sq.Or{
					noConfidence,
					sq.Lt{"recognition_confidence": p.VerifiedThreshold},
				}}
			},
			updates: func(policy.Policy) map[string]interface{} {
				return map[string]interface{}{"recognition_confidence": 1.0}
			},
		},
		{
			category: IdentityWithoutConfidence,
			where:    func(policy.Policy) sq.Sqlizer { return sq.And{hasPerson, noConfidence, notVerified} },
			updates: func(p policy.Policy) map[string]interface{} {
				return map[string]interface{}{"recognition_confidence": p.UnknownConfidence}
			},
		},
		{
			category: ConfidenceWithoutVerified,
			where:    func(policy.Policy) sq.Sqlizer { return sq.And{notVerified, hasPerson, hasConfidence} },
			keep: func(f models.Face, p policy.Policy) bool {
				return *f.RecognitionConfidence >= p.VerifiedThreshold
			},
			guard: func(p policy.Policy) sq.Sqlizer {
				return sq.And{notVerified, hasPerson, sq.GtOrEq{"recognition_confidence": p.VerifiedThreshold}}
			},
			updates: func(policy.Policy) map[string]interface{} {
				return map[string]interface{}{"verified": true}
			},
		},
		{
			category: WeakLinks,
			where: func(policy.Policy) sq.Sqlizer {
				return sq.And{hasPerson, hasDescriptor, notVerified, hasConfidence}
			},
			keep: func(f models.Face, p policy.Policy) bool {
				return *f.RecognitionConfidence < p.MatchThreshold
			},
			guard: func(p policy.Policy) sq.Sqlizer {
				return sq.And{hasPerson, hasDescriptor, notVerified, sq.Lt{"recognition_confidence": p.MatchThreshold}}
			},
			updates: func(p policy.Policy) map[string]interface{} {
				return map[string]interface{}{"recognition_confidence": p.MatchThreshold}
			},
		},
		{
			category: Unrecognized,
			where:    func(policy.Policy) sq.Sqlizer { return sq.And{noPerson, hasDescriptor} },
		},
	}
}

func lookupRule(c Category) (faceRule, bool) {
	for _, r := range faceRules() {
		if r.category == c {
			return r, true
		}
	}
	return faceRule{}, false
}

// guardFor returns the write qualifier of r under p.
func (r faceRule) guardFor(p policy.Policy) sq.Sqlizer {
	if r.guard != nil {
		return r.guard(p)
	}
	return r.where(p)
}
