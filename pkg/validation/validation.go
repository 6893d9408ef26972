package validation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	MinWorkers = 1
	MaxWorkers = 20
)

func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateAPIPath accepts a path relative to the API root or a full http(s) URL.
func ValidateAPIPath(path string) error {
	if err := ValidateNonEmptyString("path", path); err != nil {
		return err
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid URL: %s", path)
		}
		return nil
	}
	if strings.Contains(path, "://") {
		return fmt.Errorf("unsupported URL scheme in %s (must be http or https)", path)
	}
	if strings.ContainsAny(path, " \t\n") {
		return fmt.Errorf("path must not contain whitespace: %q", path)
	}
	return nil
}

func ValidateJSONBody(body string) error {
	if body == "" {
		return nil
	}
	if !json.Valid([]byte(body)) {
		return fmt.Errorf("request body is not valid JSON")
	}
	return nil
}
