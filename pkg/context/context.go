// Package context carries request metadata from the transports (HTTP, Kafka)
// down to the synchronizer's logs.
package context

import "context"

type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	RouteKey      ContextKey = "route"
	RemoteIPKey   ContextKey = "remote_ip"
	CallerKey     ContextKey = "caller"
	SourceKey     ContextKey = "source"
	DocumentIDKey ContextKey = "document_id"
)

// Sources of work
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
	SourceCLI   = "cli"
)

var logKeys = []ContextKey{RequestIDKey, SourceKey, CallerKey, RouteKey, DocumentIDKey}

func set(ctx context.Context, key ContextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

// SetCaller records the service or operator invoking a remote operation
func SetCaller(ctx context.Context, caller string) context.Context {
	return set(ctx, CallerKey, caller)
}

func GetCaller(ctx context.Context) string {
	return get(ctx, CallerKey)
}

// SetSource records which transport started the work
func SetSource(ctx context.Context, source string) context.Context {
	return set(ctx, SourceKey, source)
}

func GetSource(ctx context.Context) string {
	return get(ctx, SourceKey)
}

// SetDocumentID records the document being synchronized
func SetDocumentID(ctx context.Context, id string) context.Context {
	return set(ctx, DocumentIDKey, id)
}

func GetDocumentID(ctx context.Context) string {
	return get(ctx, DocumentIDKey)
}

// LogFields returns the metadata present on ctx, keyed for structured logs
func LogFields(ctx context.Context) map[string]any {
	fields := make(map[string]any, len(logKeys))
	for _, key := range logKeys {
		if value := get(ctx, key); value != "" {
			fields[string(key)] = value
		}
	}
	return fields
}
