package rollback

import (
	"errors"
	"fmt"

	"github.com/windowsadmins/msiextract/pkg/logging"
)

// RollbackAction defines the steps required to undo a specific action
type RollbackAction struct {
	Description string
	Execute     func() error
}

// RollbackManager manages and executes rollback actions.
// The zero value is ready to use.
type RollbackManager struct {
	Actions []RollbackAction
}

// AddRollbackAction adds a new action to the rollback manager
func (rm *RollbackManager) AddRollbackAction(action RollbackAction) {
	rm.Actions = append(rm.Actions, action)
}

// Add is shorthand for AddRollbackAction.
func (rm *RollbackManager) Add(description string, execute func() error) {
	rm.AddRollbackAction(RollbackAction{Description: description, Execute: execute})
}

// ExecuteRollback executes all rollback actions in reverse order.
// A failing action does not stop the remaining ones; all failures are joined.
// The manager is empty afterwards.
func (rm *RollbackManager) ExecuteRollback() error {
	var errs []error
	for i := len(rm.Actions) - 1; i >= 0; i-- {
		action := rm.Actions[i]
		logging.Debug("Rollback", "action", action.Description)
		if err := action.Execute(); err != nil {
			logging.Warn("Rollback action failed", "action", action.Description, "error", err)
			errs = append(errs, fmt.Errorf("rollback action '%s': %w", action.Description, err))
		}
	}
	rm.Actions = nil
	return errors.Join(errs...)
}
