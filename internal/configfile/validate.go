package configfile

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ValidationError pinpoints one problem in the document. Pointer is a
// path into the document, /tasks/<name> style.
type ValidationError struct {
	Pointer string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Pointer, e.Message)
}

// cronParser accepts standard five-field expressions plus descriptors
// like @daily.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates a schedule cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Validate checks structural rules that parsing alone cannot catch.
// An empty result means the document is usable.
func Validate(doc *Document) []ValidationError {
	var errs []ValidationError

	for _, key := range doc.UnknownRoots {
		errs = append(errs, ValidationError{
			Pointer: "/" + key,
			Message: "unknown configuration key",
		})
	}

	if len(doc.TaskOrder) == 0 {
		errs = append(errs, ValidationError{
			Pointer: "/tasks",
			Message: "no tasks defined",
		})
	}

	for _, name := range doc.TaskOrder {
		task := doc.Tasks[name]
		pointer := "/tasks/" + name
		if task.NonMapping != nil {
			errs = append(errs, ValidationError{
				Pointer: pointer,
				Message: "task configuration must be a mapping",
			})
			continue
		}
		if raw, ok := task.Settings["priority"]; ok && !isInteger(raw) {
			errs = append(errs, ValidationError{
				Pointer: pointer + "/priority",
				Message: fmt.Sprintf("priority must be an integer, got %T", raw),
			})
		}
	}

	for i, schedule := range doc.Schedules {
		pointer := fmt.Sprintf("/schedules/%d", i)
		if len(schedule.Tasks) == 0 {
			errs = append(errs, ValidationError{
				Pointer: pointer + "/tasks",
				Message: "schedule must name at least one task",
			})
		}
		hasInterval := schedule.Interval > 0
		hasCron := schedule.Cron != ""
		switch {
		case hasInterval && hasCron:
			errs = append(errs, ValidationError{
				Pointer: pointer,
				Message: "declare either interval or cron, not both",
			})
		case !hasInterval && !hasCron:
			errs = append(errs, ValidationError{
				Pointer: pointer,
				Message: "schedule needs an interval or a cron expression",
			})
		case hasCron:
			if _, err := ParseCron(schedule.Cron); err != nil {
				errs = append(errs, ValidationError{
					Pointer: pointer + "/cron",
					Message: fmt.Sprintf("invalid cron expression %q: %v", schedule.Cron, err),
				})
			}
		}
	}

	return errs
}

func isInteger(raw any) bool {
	switch v := raw.(type) {
	case int, int64, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	default:
		return false
	}
}
