package hashedrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	ID     string
	Name   string
	Active bool
}

func (r *fakeRecord) Columns() []string { return []string{"name", "active"} }
func (r *fakeRecord) Excluded() []string { return []string{"active"} }
func (r *fakeRecord) Fields() map[string]any {
	return map[string]any{"name": r.Name, "active": r.Active}
}

func TestGenerateIDExcludesMutableColumns(t *testing.T) {
	a := &fakeRecord{Name: "alice", Active: true}
	b := &fakeRecord{Name: "alice", Active: false}

	idA, err := GenerateID(a)
	require.NoError(t, err)
	idB, err := GenerateID(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB, "excluded columns must not affect the content-addressed ID")
}

func TestGenerateIDChangesWithHashedColumn(t *testing.T) {
	a := &fakeRecord{Name: "alice"}
	b := &fakeRecord{Name: "bob"}

	idA, err := GenerateID(a)
	require.NoError(t, err)
	idB, err := GenerateID(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestVerifyID(t *testing.T) {
	a := &fakeRecord{Name: "alice"}
	id, err := GenerateID(a)
	require.NoError(t, err)

	ok, err := VerifyID(a, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyID(a, "not-the-right-id")
	require.NoError(t, err)
	assert.False(t, ok)
}
