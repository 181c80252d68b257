package http

import (
	"encoding/json"
	"net/http"
)

// HTMXResponseBuilder collects the status and headers of an htmx response
// whose body is rendered from a template.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerUploadCompleted lets other widgets on the page refresh after a run.
func (b *HTMXResponseBuilder) TriggerUploadCompleted(generation uint64, categories int) *HTMXResponseBuilder {
	return b.Trigger("upload:completed", map[string]any{"generation": generation, "categories": categories})
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

// applyHeaders sets HX-Trigger. The status is written by whoever renders
// the body.
func (b *HTMXResponseBuilder) applyHeaders(w http.ResponseWriter) {
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
}

// ErrorResponse carries a failed status and an error notification. The
// totals partial is rendered as its body so the page keeps its swap target.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		TriggerNotification(NotificationError, message, 5000)
}
