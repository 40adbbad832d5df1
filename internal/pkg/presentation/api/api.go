package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/water-network/internal/pkg/application"
	"github.com/diwise/water-network/internal/pkg/application/hierarchy"
	"github.com/diwise/water-network/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("water-network/api")

const (
	contentTypeJSON    string = "application/json"
	contentTypeGeoJSON string = "application/geo+json"
	contentTypeCSV     string = "text/csv"

	maxImportSize int64 = 10 << 20
)

// RegisterHandlers mounts the network api on router. The live view and the
// metrics endpoint are served by the handlers passed in.
func RegisterHandlers(ctx context.Context, router *chi.Mux, app application.App, liveView, metrics http.Handler) *chi.Mux {
	log := logging.GetFromContext(ctx)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}

	if liveView != nil {
		router.Method(http.MethodGet, "/events/*", liveView)
	}

	router.Route("/api/v0", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", queryDevicesHandler(log, app))
			r.Post("/", createDeviceHandler(log, app))
			r.Get("/{id}", getDeviceHandler(log, app))
			r.Delete("/{id}", deleteDeviceHandler(log, app))
		})

		r.Route("/gatewalls", func(r chi.Router) {
			r.Get("/", queryGateWallsHandler(log, app))
			r.Post("/", createGateWallHandler(log, app))
			r.Get("/{id}", getGateWallHandler(log, app))
			r.Delete("/{id}", deleteGateWallHandler(log, app))
			r.Put("/{id}/flow", setFlowDirectionHandler(log, app))
			r.Get("/{id}/history", getHistoryHandler(log, app))
		})

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", queryPipelinesHandler(log, app))
			r.Post("/", createPipelineHandler(log, app))
			r.Get("/{id}", getPipelineHandler(log, app))
			r.Delete("/{id}", deletePipelineHandler(log, app))
		})

		r.Route("/drawing", func(r chi.Router) {
			r.Get("/", getDrawingHandler(log, app))
			r.Post("/", startDrawingHandler(log, app))
			r.Delete("/", cancelDrawingHandler(log, app))
			r.Post("/points", submitPointHandler(log, app))
			r.Post("/segments", breakSegmentHandler(log, app))
			r.Post("/finish", finishDrawingHandler(log, app))
		})

		r.Get("/hierarchy", queryHierarchyHandler(log, app))
		r.Get("/hierarchy/leaf", getHierarchyLeafHandler(log, app))
		r.Get("/search", searchHandler(log, app))

		r.Get("/export", exportHandler(log, app))
		r.Post("/import", importHandler(log, app))
	})

	return router
}

func queryDevicesHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "query-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		devices := app.Devices(ctx)

		switch accepts(r) {
		case contentTypeGeoJSON:
			writeJSON(w, contentTypeGeoJSON, http.StatusOK, NewFeatureCollectionWithDevices(devices))
		case contentTypeCSV:
			w.Header().Add("Content-Type", contentTypeCSV)
			w.WriteHeader(http.StatusOK)
			err = writeCsvWithDevices(w, devices)
			if err != nil {
				requestLogger.Error().Err(err).Msg("unable to write csv")
			}
		default:
			writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(devices))
		}
	}
}

// createDeviceHandler accepts either a single device as json or a semicolon
// separated seed file uploaded as multipart form data.
func createDeviceHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-device")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			var file io.ReadCloser
			file, _, err = r.FormFile("fileupload")
			if err != nil {
				requestLogger.Error().Err(err).Msg("unable to read file")
				writeError(w, http.StatusBadRequest, err)
				return
			}
			defer file.Close()

			err = application.Seed(ctx, app, file)
			if err != nil {
				requestLogger.Error().Err(err).Msg("unable to seed devices")
				writeError(w, statusFromError(err), err)
				return
			}

			w.WriteHeader(http.StatusCreated)
			return
		}

		var d types.Device
		err = decodeBody(r, &d)
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to unmarshal body")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var added types.Device
		added, err = app.AddDevice(ctx, d)
		if err != nil {
			requestLogger.Info().Err(err).Msg("unable to create device")
			writeError(w, statusFromError(err), err)
			return
		}

		w.Header().Add("Location", "/api/v0/devices/"+added.ID)
		writeJSON(w, contentTypeJSON, http.StatusCreated, NewApiResponse(added))
	}
}

func getDeviceHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-device")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var d types.Device
		d, err = app.Device(ctx, chi.URLParam(r, "id"))
		if err != nil {
			requestLogger.Debug().Err(err).Msg("device not found")
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(d))
	}
}

func deleteDeviceHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return deleteHandler(log, "delete-device", app.DeleteDevice)
}

func queryGateWallsHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "query-gatewalls")
		defer span.End()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		gateWalls := app.GateWalls(ctx)

		if accepts(r) == contentTypeGeoJSON {
			writeJSON(w, contentTypeGeoJSON, http.StatusOK, NewFeatureCollectionWithGateWalls(gateWalls))
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(gateWalls))
	}
}

func createGateWallHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-gatewall")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var g types.NewGateWall
		err = decodeBody(r, &g)
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to unmarshal body")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var added types.GateWall
		added, err = app.AddGateWall(ctx, g)
		if err != nil {
			requestLogger.Info().Err(err).Msg("unable to create gate wall")
			writeError(w, statusFromError(err), err)
			return
		}

		w.Header().Add("Location", "/api/v0/gatewalls/"+added.ID)
		writeJSON(w, contentTypeJSON, http.StatusCreated, NewApiResponse(added))
	}
}

func getGateWallHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-gatewall")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var g types.GateWall
		g, err = app.GateWall(ctx, chi.URLParam(r, "id"))
		if err != nil {
			requestLogger.Debug().Err(err).Msg("gate wall not found")
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(g))
	}
}

func deleteGateWallHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return deleteHandler(log, "delete-gatewall", app.DeleteGateWall)
}

func setFlowDirectionHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "set-flow-direction")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")
		requestLogger = requestLogger.With().Str("gatewall_id", id).Logger()

		body := struct {
			Direction types.FlowDirection `json:"direction"`
		}{}

		err = decodeBody(r, &body)
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to unmarshal body")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		// the service ignores unknown gate walls, the api reports them
		_, err = app.GateWall(ctx, id)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		err = app.SetFlowDirection(ctx, id, body.Direction)
		if err != nil {
			requestLogger.Info().Err(err).Msg("unable to set flow direction")
			writeError(w, statusFromError(err), err)
			return
		}

		var g types.GateWall
		g, err = app.GateWall(ctx, id)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(g))
	}
}

func getHistoryHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			limit, err = strconv.Atoi(l)
			if err != nil || limit < 0 {
				err = fmt.Errorf("%w: invalid limit %q", application.ErrValidation, l)
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}

		var entries []types.HistoryEntry
		entries, err = app.History(ctx, chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(entries))
	}
}

func queryPipelinesHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "query-pipelines")
		defer span.End()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pipelines := app.Pipelines(ctx)

		if accepts(r) == contentTypeGeoJSON {
			writeJSON(w, contentTypeGeoJSON, http.StatusOK, NewFeatureCollectionWithPipelines(pipelines))
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(pipelines))
	}
}

func createPipelineHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-pipeline")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var p types.Pipeline
		err = decodeBody(r, &p)
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to unmarshal body")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var added types.Pipeline
		added, err = app.AddPipeline(ctx, p)
		if err != nil {
			requestLogger.Info().Err(err).Msg("unable to create pipeline")
			writeError(w, statusFromError(err), err)
			return
		}

		w.Header().Add("Location", "/api/v0/pipelines/"+added.ID)
		writeJSON(w, contentTypeJSON, http.StatusCreated, NewApiResponse(added))
	}
}

func getPipelineHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-pipeline")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var p types.Pipeline
		p, err = app.Pipeline(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(p))
	}
}

func deletePipelineHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return deleteHandler(log, "delete-pipeline", app.DeletePipeline)
}

func deleteHandler(log zerolog.Logger, operation string, remove func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), operation)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")

		err = remove(ctx, id)
		if err != nil {
			requestLogger.Debug().Err(err).Str("id", id).Msg("unable to delete")
			writeError(w, statusFromError(err), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getDrawingHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return drawingHandler(log, "get-drawing", func(ctx context.Context, r *http.Request) (any, error) {
		return app.Drawing(ctx)
	})
}

func startDrawingHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return drawingHandler(log, "start-drawing", func(ctx context.Context, r *http.Request) (any, error) {
		return app.StartDrawing(ctx)
	})
}

func submitPointHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return drawingHandler(log, "submit-point", func(ctx context.Context, r *http.Request) (any, error) {
		p, err := decodePoint(r)
		if err != nil {
			return nil, err
		}
		return app.SubmitPoint(ctx, p, time.Now())
	})
}

func breakSegmentHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return drawingHandler(log, "break-segment", func(ctx context.Context, r *http.Request) (any, error) {
		p, err := decodePoint(r)
		if err != nil {
			return nil, err
		}
		return app.BreakSegment(ctx, p)
	})
}

func finishDrawingHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return drawingHandler(log, "finish-drawing", func(ctx context.Context, r *http.Request) (any, error) {
		return app.FinishDrawing(ctx)
	})
}

func cancelDrawingHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "cancel-drawing")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		err = app.CancelDrawing(ctx)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func drawingHandler(log zerolog.Logger, operation string, op func(context.Context, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), operation)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var result any
		result, err = op(ctx, r)
		if err != nil {
			requestLogger.Debug().Err(err).Msg(operation + " failed")
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(result))
	}
}

func queryHierarchyHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "query-hierarchy")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var names []string
		names, err = app.Hierarchy(ctx, pathFromQuery(r)...)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(names))
	}
}

func getHierarchyLeafHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-hierarchy-leaf")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var bucket hierarchy.Bucket
		bucket, err = app.HierarchyLeaf(ctx, pathFromQuery(r)...)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}

		writeJSON(w, contentTypeJSON, http.StatusOK, NewApiResponse(bucket))
	}
}

func searchHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "search")
		defer span.End()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		results := app.Search(ctx, r.URL.Query().Get("q"))
		writeJSON(w, contentTypeJSON, http.StatusOK, NewListResponse(results))
	}
}

func exportHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "export")
		defer span.End()
		_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		doc := app.Export(ctx)

		filename := fmt.Sprintf("water-network-%s.json", doc.Timestamp.Format("2006-01-02"))
		w.Header().Add("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		writeJSON(w, contentTypeJSON, http.StatusOK, doc)
	}
}

func importHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "import")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var body []byte
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to read body")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		err = app.Import(ctx, body)
		if err != nil {
			requestLogger.Info().Err(err).Msg("import failed")
			writeError(w, statusFromError(err), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, application.ErrImport),
		errors.Is(err, application.ErrTooFewPoints):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrDuplicateID),
		errors.Is(err, application.ErrDrawingInProgress):
		return http.StatusConflict
	case errors.Is(err, application.ErrNotFound),
		errors.Is(err, application.ErrNoDrawingSession),
		errors.Is(err, hierarchy.ErrPathNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func accepts(r *http.Request) string {
	accept := r.Header.Get("Accept")
	for _, ct := range []string{contentTypeGeoJSON, contentTypeCSV} {
		if strings.Contains(accept, ct) {
			return ct
		}
	}
	return contentTypeJSON
}

func decodeBody(r *http.Request, v any) error {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func decodePoint(r *http.Request) (types.Point, error) {
	loc := struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}{}

	if err := decodeBody(r, &loc); err != nil {
		return types.Point{}, fmt.Errorf("%w: %s", application.ErrValidation, err.Error())
	}

	if loc.Latitude == nil || loc.Longitude == nil {
		return types.Point{}, fmt.Errorf("%w: latitude and longitude are required", application.ErrValidation)
	}

	return types.Point{*loc.Latitude, *loc.Longitude}, nil
}

func pathFromQuery(r *http.Request) []string {
	path := []string{}
	for _, level := range strings.Split(r.URL.Query().Get("path"), "/") {
		if level = strings.TrimSpace(level); level != "" {
			path = append(path, level)
		}
	}
	return path
}

func writeJSON(w http.ResponseWriter, contentType string, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, contentTypeJSON, status, ErrorResponse{Status: status, Detail: err.Error()})
}
