package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	drawingFunction *services.DrawingFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Storage finalize events land on the CloudEvent entry point; the HTTP
	// entry point lets a workflow re-drive a single object.
	functions.CloudEvent("IngestDrawing", ingestDrawing)
	functions.HTTP("IngestDrawingHTTP", ingestDrawingHTTP)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() error {
	once.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = err
			return
		}
		drawingFunction, initErr = services.NewDrawingFunction(context.Background(), cfg, slog.Default())
	})
	return initErr
}

func ingestDrawing(ctx context.Context, e cloudevents.Event) error {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return drawingFunction.Process(ctx, gcsEvent)
}

func ingestDrawingHTTP(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var gcsEvent services.GCSEvent
	if err := json.NewDecoder(r.Body).Decode(&gcsEvent); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		http.Error(w, "Bad Request: bucket and name are required", http.StatusBadRequest)
		return
	}

	if err := drawingFunction.Process(r.Context(), gcsEvent); err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}
