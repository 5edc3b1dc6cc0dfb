package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotebookHasOneEmptyCodeCell(t *testing.T) {
	nb := New()
	require.Equal(t, 1, nb.Len())
	c := nb.CellAt(0)
	require.NotNil(t, c)
	assert.Equal(t, KindCode, c.Kind)
	assert.Equal(t, "", c.Source)
}

func TestDeleteLastCellLeavesOneEmptyCodeCell(t *testing.T) {
	nb := New()
	nb.Delete(0)
	require.Equal(t, 1, nb.Len())
	assert.Equal(t, KindCode, nb.CellAt(0).Kind)
}

func TestInsertAssignsFreshStableID(t *testing.T) {
	nb := New()
	originalID := nb.CellAt(0).ID
	nb.Insert(1, KindMarkdown, "# hi")
	require.Equal(t, 2, nb.Len())
	assert.Equal(t, originalID, nb.CellAt(0).ID, "original cell id must be preserved")
	assert.NotEqual(t, originalID, nb.CellAt(1).ID)
	assert.NotEmpty(t, nb.CellAt(1).ID)
}

func TestSplitConcatenationEqualsOriginal(t *testing.T) {
	nb := New()
	nb.CellAt(0).Source = "hello world"
	ok := nb.Split(0, 5)
	require.True(t, ok)
	require.Equal(t, 2, nb.Len())
	assert.Equal(t, "hello world", nb.CellAt(0).Source+nb.CellAt(1).Source)
}

func TestMergeCombinesSourcesAndOutputs(t *testing.T) {
	nb := New()
	nb.CellAt(0).Source = "a"
	second := nb.Insert(1, KindCode, "b")
	second.AddOutput(Output{Kind: OutputStream, StreamName: "stdout", Text: "out"})
	ok := nb.Merge(0)
	require.True(t, ok)
	require.Equal(t, 1, nb.Len())
	assert.Equal(t, "a\nb", nb.CellAt(0).Source)
	require.Len(t, nb.CellAt(0).Outputs, 1)
}

func TestMoveOutOfBoundsIsNoOp(t *testing.T) {
	nb := New()
	nb.Insert(1, KindCode, "x")
	assert.False(t, nb.Move(0, -1))
	assert.False(t, nb.Move(1, 1))
	assert.True(t, nb.Move(0, 1))
}

func TestStreamMergeAcrossAddOutputCalls(t *testing.T) {
	c := NewCell(KindCode, "1+1")
	c.AddOutput(Output{Kind: OutputStream, StreamName: "stdout", Text: "Hello "})
	c.AddOutput(Output{Kind: OutputStream, StreamName: "stdout", Text: "world\n"})
	c.AddOutput(Output{Kind: OutputStream, StreamName: "stderr", Text: "!"})

	require.Len(t, c.Outputs, 2)
	assert.Equal(t, "stdout", c.Outputs[0].StreamName)
	assert.Equal(t, "Hello world\n", c.Outputs[0].Text)
	assert.Equal(t, "stderr", c.Outputs[1].StreamName)
	assert.Equal(t, "!", c.Outputs[1].Text)
}

func TestReplaceByDisplayID(t *testing.T) {
	c := NewCell(KindCode, "")
	c.AddOutput(Output{Kind: OutputDisplayData, DisplayID: "d1", Data: map[string]any{"text/plain": "1"}})
	ok := c.ReplaceByDisplayID("d1", map[string]any{"text/plain": "2"}, nil)
	require.True(t, ok)
	assert.Equal(t, "2", c.Outputs[0].Data["text/plain"])

	assert.False(t, c.ReplaceByDisplayID("missing", nil, nil))
}

func TestPasteAssignsFreshIDs(t *testing.T) {
	nb := New()
	clip := []*Cell{NewCell(KindCode, "x"), NewCell(KindMarkdown, "y")}
	clipIDs := map[string]bool{clip[0].ID: true, clip[1].ID: true}

	inserted := nb.Paste(1, clip)
	require.Len(t, inserted, 2)
	for _, c := range inserted {
		assert.False(t, clipIDs[c.ID], "pasted cell must not reuse clipboard id")
	}
	// pasting the same clipboard again must not collide with the first paste
	inserted2 := nb.Paste(1, clip)
	assert.NotEqual(t, inserted[0].ID, inserted2[0].ID)
}
