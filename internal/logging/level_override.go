package logging

import (
	"context"
	"log/slog"
)

// componentLevelHandler applies per-component minimum levels. The component
// is learned from attributes added through WithAttrs, so every logger built
// with NewComponentLogger picks up its configured level. The wrapped handler
// must be enabled at the most verbose level in use.
type componentLevelHandler struct {
	next   slog.Handler
	levels map[string]slog.Level
	floor  slog.Level
}

func newComponentLevelHandler(next slog.Handler, global slog.Level, levels map[string]slog.Level) slog.Handler {
	return &componentLevelHandler{next: next, levels: levels, floor: global}
}

func (h *componentLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *componentLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *componentLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	floor := h.floor
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		if level, ok := h.levels[attr.Value.String()]; ok {
			floor = level
		}
	}
	return &componentLevelHandler{next: h.next.WithAttrs(attrs), levels: h.levels, floor: floor}
}

func (h *componentLevelHandler) WithGroup(name string) slog.Handler {
	return &componentLevelHandler{next: h.next.WithGroup(name), levels: h.levels, floor: h.floor}
}

// parseComponentLevels returns the parsed overrides and the most verbose
// level any logger may emit at.
func parseComponentLevels(global slog.Level, raw map[string]string) (map[string]slog.Level, slog.Level) {
	if len(raw) == 0 {
		return nil, global
	}
	levels := make(map[string]slog.Level, len(raw))
	lowest := global
	for component, value := range raw {
		level := parseLevel(value)
		levels[component] = level
		lowest = min(lowest, level)
	}
	return levels, lowest
}
