package nakamoto

import (
	"context"
	"io"

	"golang.org/x/exp/slog"
)

type ctxKey int

const rowCtxKey ctxKey = iota

// ContextWithRow attaches the row being resolved to ctx. CtxLogHandler adds
// its time and action to every record logged with that context.
func ContextWithRow(ctx context.Context, row Row) context.Context {
	return context.WithValue(ctx, rowCtxKey, row)
}

// RowFromContext returns the row attached by ContextWithRow.
func RowFromContext(ctx context.Context) (Row, bool) {
	if ctx == nil {
		return Row{}, false
	}
	row, ok := ctx.Value(rowCtxKey).(Row)
	return row, ok
}

type CtxLogHandler struct {
	next slog.Handler
}

func NewCtxLogHandler(next slog.Handler) *CtxLogHandler {
	return &CtxLogHandler{next: next}
}

// NewLogger is the logger used by the commands: text output with the source
// file and the row attributes of the context.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewCtxLogHandler(slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true, Level: level})))
}

func (h *CtxLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *CtxLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if row, found := RowFromContext(ctx); found {
		record.AddAttrs(slog.String("row", row.TimeStr()))
		if row.Resolved() {
			record.AddAttrs(slog.String("row_action", string(row.Action)))
		}
	}
	return h.next.Handle(ctx, record)
}

// WithAttrs returns a new handler with the provided attributes.
func (h *CtxLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CtxLogHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the provided group name.
func (h *CtxLogHandler) WithGroup(name string) slog.Handler {
	return &CtxLogHandler{next: h.next.WithGroup(name)}
}

var _ slog.Handler = (*CtxLogHandler)(nil)
