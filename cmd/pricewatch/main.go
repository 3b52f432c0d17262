package main

import (
	"log/slog"

	"pricewatch-backend/cmd/pricewatch/commands"
	"pricewatch-backend/lib/serviceutil"
	"pricewatch-backend/lib/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	ctx := serviceutil.SignalContext()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	telemetry.InitSlog(false)
	if err := telemetry.SetupFromEnv(ctx, "pricewatch"); err != nil {
		serviceutil.Fatal("failed to set up telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
