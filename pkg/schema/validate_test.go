package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTaskExecutionValidates(t *testing.T) {
	task := BuildTaskExecution("t1", TaskTypeCodeGeneration, "Generate a fibonacci function", "m1", PriorityNormal)
	assert.NoError(t, Validate(task, KindTaskExecution))
}

func TestTaskIDTooLongFails(t *testing.T) {
	longID := ""
	for i := 0; i < 101; i++ {
		longID += "a"
	}
	task := BuildTaskExecution(longID, TaskTypeGeneral, "Generate a fibonacci function", "m1", PriorityNormal)

	err := Validate(task, KindTaskExecution)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "task_id", ve.Path)
}

func TestDescriptionTooShortFails(t *testing.T) {
	task := BuildTaskExecution("t1", TaskTypeGeneral, "short", "m1", PriorityNormal)

	err := Validate(task, KindTaskExecution)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "description", ve.Path)
}

func TestValidationReturnsLexicographicallyFirstField(t *testing.T) {
	task := &TaskExecution{
		TaskID:      "",
		TaskType:    "bogus",
		Description: "short",
		Priority:    "bogus",
	}
	err := Validate(task, KindTaskExecution)
	require.Error(t, err)
	ve := err.(*ValidationError)
	assert.Equal(t, "description", ve.Path, "description sorts before priority and task_type lexicographically")
}

func TestTaskBatchSizeLimits(t *testing.T) {
	var empty TaskBatch
	err := Validate(&empty, KindTaskBatch)
	require.Error(t, err)

	tasks := make([]TaskExecution, 101)
	for i := range tasks {
		tasks[i] = *BuildTaskExecution("t1", TaskTypeGeneral, "Generate a fibonacci function", "m1", PriorityNormal)
	}
	oversized := TaskBatch{Tasks: tasks}
	err = Validate(&oversized, KindTaskBatch)
	require.Error(t, err)
}

func TestNotificationDiscriminatedShapes(t *testing.T) {
	n := BuildTaskProgressNotification("executor-1", 42.5, "compiling")
	assert.NoError(t, Validate(n, KindNotification))

	bad := &Notification{Type: NotifyTaskProgress, Priority: NotificationPriorityLow, Source: "x", Data: map[string]interface{}{}}
	err := Validate(bad, KindNotification)
	require.Error(t, err)
}

func TestAgentEndTaskRoundTrip(t *testing.T) {
	evt := BuildAgentEndTask("t1", "agent-1", ReasonSuccess, "all steps completed", nil, nil)
	assert.NoError(t, Validate(evt, KindAgentEndTask))
}
