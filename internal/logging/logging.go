// Package logging sets up the session core's structured logger and, when
// configured, ships every record to an external log-aggregation exchange.
package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/rosielabs/sessioncore/internal/config"
)

// Setup builds the process-wide slog.Logger per cfg.Logging, wrapping it with
// a Shipper handler when cfg.LogShipper.Enabled. It returns the logger and a
// close function that must run during graceful shutdown.
func Setup(cfg config.LoggingConfig, shipperCfg config.LogShipperConfig) (*slog.Logger, func(), error) {
	level := levelFromString(cfg.Level)

	var base slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		base = slog.NewTextHandler(os.Stdout, opts)
	} else {
		base = slog.NewJSONHandler(os.Stdout, opts)
	}

	if !shipperCfg.Enabled {
		return slog.New(base), func() {}, nil
	}

	shipper, err := NewAMQPShipper(shipperCfg.Endpoint, shipperCfg.SourceName)
	if err != nil {
		return nil, nil, err
	}

	handler := &shippingHandler{next: base, shipper: shipper, source: shipperCfg.SourceName}
	return slog.New(handler), shipper.Close, nil
}

func levelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// shippingHandler forwards every record both to the configured Shipper and to
// the base handler (stdout), mirroring the teacher's pattern of fanning a
// single write out to a durable sink. Shipping runs synchronously inside
// Handle; a record that fails to encode or ship is still written locally.
type shippingHandler struct {
	next    slog.Handler
	shipper Shipper
	source  string
	attrs   []slog.Attr
}

func (h *shippingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *shippingHandler) Handle(ctx context.Context, r slog.Record) error {
	record := shippedRecord{
		Source:  h.source,
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Fields:  map[string]any{},
	}
	for _, a := range h.attrs {
		record.Fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		record.Fields[a.Key] = a.Value.Any()
		return true
	})

	if body, err := json.Marshal(record); err == nil {
		h.shipper.Ship(body)
	}

	return h.next.Handle(ctx, r)
}

func (h *shippingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &shippingHandler{
		next:    h.next.WithAttrs(attrs),
		shipper: h.shipper,
		source:  h.source,
		attrs:   combined,
	}
}

func (h *shippingHandler) WithGroup(name string) slog.Handler {
	return &shippingHandler{
		next:    h.next.WithGroup(name),
		shipper: h.shipper,
		source:  h.source,
		attrs:   h.attrs,
	}
}

type shippedRecord struct {
	Source  string         `json:"source"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}
