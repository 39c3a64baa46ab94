package queue

import (
	"fmt"
	"time"
)

const (
	tasksKey    = "inferflow:tasks"
	retryZKey   = "inferflow:tasks:retry"
	stateKeyTTL = 30 * time.Minute
)

func taskStateKey(taskID string) string {
	return fmt.Sprintf("inferflow:task:%s", taskID)
}

func taskResultKey(taskID string) string {
	return fmt.Sprintf("inferflow:task:%s:result", taskID)
}
