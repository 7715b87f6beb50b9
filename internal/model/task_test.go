package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/taskqueue/internal/model"
)

func TestTaskSummaryJSON_UnsetFieldsAreNull(t *testing.T) {
	s := model.TaskSummary{
		Task:       model.Task{ID: 3, Query: `{"a":1}`},
		TaskType:   "scrape",
		TaskStatus: model.TaskStatusUnclaimed,
	}
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	for _, key := range []string{
		"notes", "claimed_by_agent", "claimed_time", "completed_time",
		"failed_time", "object_storage_key_for_results", "message",
	} {
		v, ok := got[key]
		assert.True(t, ok, "%s must always be present", key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, "scrape", got["task_type"])
	assert.Equal(t, "unclaimed", got["task_status"])
}
