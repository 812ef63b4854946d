package main

import (
	"context"
	"log/slog"

	"coursemirror/cmd/coursemirror/commands"
	"coursemirror/lib/telemetry"
)

func main() {
	ctx := context.Background()
	tel, err := telemetry.SetupFromEnv(ctx, "coursemirror")
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without it", "err", err)
	} else {
		defer tel.Shutdown(ctx)
	}
	commands.ExecuteContext(ctx)
}
