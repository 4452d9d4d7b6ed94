package descriptor

import (
	"fmt"
	"strconv"
	"strings"
)

// cronField describes the valid value range of one cron position.
type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = []cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ValidateCron checks a five-field cron expression. Each field accepts "*",
// literals, ranges "a-b", lists "a,b,c" and steps "base/step" where base is
// "*", a literal or a range.
func ValidateCron(expr string) error {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	for i, field := range fields {
		if err := validateCronField(field, cronFields[i]); err != nil {
			return fmt.Errorf("invalid %s field %q: %w", cronFields[i].name, field, err)
		}
	}
	return nil
}

func validateCronField(value string, spec cronField) error {
	for _, item := range strings.Split(value, ",") {
		if item == "" {
			return fmt.Errorf("empty list item")
		}
		if err := validateCronItem(item, spec); err != nil {
			return err
		}
	}
	return nil
}

func validateCronItem(item string, spec cronField) error {
	base := item
	if idx := strings.Index(item, "/"); idx != -1 {
		base = item[:idx]
		step := item[idx+1:]
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", step)
		}
	}

	if base == "*" {
		return nil
	}
	if idx := strings.Index(base, "-"); idx != -1 {
		lo, err := parseCronValue(base[:idx], spec)
		if err != nil {
			return err
		}
		hi, err := parseCronValue(base[idx+1:], spec)
		if err != nil {
			return err
		}
		if lo > hi {
			return fmt.Errorf("range %q is inverted", base)
		}
		return nil
	}
	_, err := parseCronValue(base, spec)
	return err
}

func parseCronValue(s string, spec cronField) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if n < spec.min || n > spec.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", n, spec.min, spec.max)
	}
	return n, nil
}
