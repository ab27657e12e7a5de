package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func TaskStatusKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task:%s", taskID)
}
