package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/testutil"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr bool
	}{
		{name: "defaults", mutate: func(p *Policy) {}},
		{name: "match above one", mutate: func(p *Policy) { p.MatchThreshold = 1.2 }, wantErr: true},
		{name: "zero outlier", mutate: func(p *Policy) { p.OutlierThreshold = 0 }, wantErr: true},
		{name: "match not below verified", mutate: func(p *Policy) { p.MatchThreshold = 0.99 }, wantErr: true},
		{name: "unknown not below verified", mutate: func(p *Policy) { p.UnknownConfidence = 1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDBSource(t *testing.T) {
	db := testutil.NewDB(t)
	src := NewDBSource(db, Static(Default()))

	p, err := src.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), p)

	require.NoError(t, db.Create(&models.IntegritySettings{
		ID:             models.IntegritySettingsID,
		MatchThreshold: 0.7,
	}).Error)

	p, err = src.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.7, p.MatchThreshold)
	assert.Equal(t, DefaultOutlierThreshold, p.OutlierThreshold)
}

func TestDBSource_RejectsInvalidRow(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&models.IntegritySettings{
		ID:             models.IntegritySettingsID,
		MatchThreshold: 1.5,
	}).Error)

	_, err := NewDBSource(db, Static(Default())).Policy(context.Background())
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")

	p, err := FileSource{Path: path, Base: Default()}.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), p)

	require.NoError(t, os.WriteFile(path, []byte("match_threshold = 0.65\noutlier_threshold = 0.8\n"), 0o644))
	p, err = FileSource{Path: path, Base: Default()}.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.65, p.MatchThreshold)
	assert.Equal(t, 0.8, p.OutlierThreshold)
	assert.Equal(t, DefaultVerifiedThreshold, p.VerifiedThreshold)

	require.NoError(t, os.WriteFile(path, []byte("threshold_for_matching = 0.65\n"), 0o644))
	_, err = FileSource{Path: path, Base: Default()}.Policy(context.Background())
	assert.Error(t, err)
}

func TestDBSource_LayersOverFile(t *testing.T) {
	db := testutil.NewDB(t)
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte("outlier_threshold = 0.8\nmatch_threshold = 0.65\n"), 0o644))
	require.NoError(t, db.Create(&models.IntegritySettings{
		ID:             models.IntegritySettingsID,
		MatchThreshold: 0.7,
	}).Error)

	p, err := NewDBSource(db, FileSource{Path: path, Base: Default()}).Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.7, p.MatchThreshold)
	assert.Equal(t, 0.8, p.OutlierThreshold)
	assert.Equal(t, DefaultUnknownConfidence, p.UnknownConfidence)
}
