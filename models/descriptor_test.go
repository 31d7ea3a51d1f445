package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorCodec(t *testing.T) {
	var f Face
	f.SetDescriptor([]float32{0.25, -1.5, 3})
	assert.Len(t, f.Descriptor, 12)
	assert.True(t, f.HasDescriptor())
	assert.Equal(t, []float32{0.25, -1.5, 3}, f.DescriptorVector())

	f.SetDescriptor(nil)
	assert.False(t, f.HasDescriptor())
	assert.Nil(t, f.DescriptorVector())
}

func TestPersonStringField(t *testing.T) {
	handle := "@jane"
	p := Person{PrimaryName: "Jane", Handle: &handle}
	assert.Equal(t, "Jane", p.StringField("primary_name"))
	assert.Equal(t, "@jane", p.StringField("handle"))
	assert.Equal(t, "", p.StringField("email"))
	assert.Equal(t, "", p.StringField("no_such_column"))
}
