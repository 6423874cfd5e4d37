package service

import "go.opentelemetry.io/otel"

// tracer resolves through the global provider, so spans are no-ops until one is installed.
var tracer = otel.Tracer("github.com/webitel/im-chat-hub/internal/service")
