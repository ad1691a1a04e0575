package llm

import "fmt"

// StatusError is returned for any non-2xx chat response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llmclient: upstream %d", e.StatusCode)
	}
	return fmt.Sprintf("llmclient: upstream %d: %s", e.StatusCode, e.Body)
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
