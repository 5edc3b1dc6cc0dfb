package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpliceBuffersInjectsIntoNestedPath(t *testing.T) {
	data := map[string]any{
		"state": map[string]any{
			"value": map[string]any{
				"payload": nil,
			},
		},
		"buffer_paths": []any{
			[]any{"value", "payload"},
		},
	}
	buf := []byte{1, 2, 3}

	require.NoError(t, spliceBuffers(data, [][]byte{buf}))

	state := data["state"].(map[string]any)
	value := state["value"].(map[string]any)
	require.Equal(t, buf, value["payload"])
}

func TestManagerOpenFallsBackToUnimplementedModel(t *testing.T) {
	m := NewManager()
	c := m.Open("comm-1", "some.other.widget", map[string]any{"state": map[string]any{}}, nil)
	require.NotNil(t, c)

	view := c.CreateView()
	require.Equal(t, []string{"[Widget not implemented]"}, view.Lines())
}

func TestIntSliderRoundTripsValueUpdates(t *testing.T) {
	m := NewManager()
	var sent []map[string]any
	send := func(commID string, data map[string]any) error {
		sent = append(sent, data)
		return nil
	}

	c := m.Open("slider-1", "jupyter.widget", map[string]any{
		"state": map[string]any{
			"_model_name": "IntSliderModel",
			"description": "count",
			"min":         float64(0),
			"max":         float64(10),
			"value":       float64(3),
		},
	}, send)

	view := c.CreateView()
	require.Contains(t, view.Lines()[0], "count")

	require.NoError(t, c.SetState("value", float64(7)))
	require.Len(t, sent, 1)
	require.Equal(t, "update", sent[0]["method"])

	err := m.Message("slider-1", map[string]any{
		"method": "update",
		"state":  map[string]any{"value": float64(9)},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, float64(9), c.StateValue("value"))
}

func TestCommUnlinkStopsSyncing(t *testing.T) {
	m := NewManager()
	calls := 0
	send := func(commID string, data map[string]any) error {
		calls++
		return nil
	}
	c := m.Open("c1", "jupyter.widget", map[string]any{"state": map[string]any{"value": "a"}}, send)

	c.Unlink()
	require.NoError(t, c.SetState("value", "b"))
	require.Equal(t, 0, calls)
	require.Equal(t, "b", c.StateValue("value"))
}

func TestSaveAndLoadStateRoundTripsBuffers(t *testing.T) {
	m := NewManager()
	data := map[string]any{
		"state": map[string]any{
			"_model_name": "IntSliderModel",
			"value":       float64(5),
			"image": map[string]any{
				"bytes": []byte{9, 9, 9},
			},
		},
	}
	m.Open("w1", "jupyter.widget", data, nil)

	saved := m.SaveState()
	require.Contains(t, saved.State, "w1")
	require.Len(t, saved.State["w1"].Buffers, 1)

	m2 := NewManager()
	m2.LoadState(saved)

	restored := m2.Get("w1")
	require.NotNil(t, restored)
	state := restored.StateValue("_model_name")
	require.Equal(t, "IntSliderModel", state)

	image, _ := restored.StateValue("image").(map[string]any)
	require.Equal(t, []byte{9, 9, 9}, image["bytes"])
}
