package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/water-network/internal/pkg/application/topology"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/google/uuid"
)

func (a *app) StartDrawing(ctx context.Context) (types.Drawing, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if a.session != nil {
		return types.Drawing{}, ErrDrawingInProgress
	}

	id := "pipeline_" + uuid.NewString()
	name := fmt.Sprintf("Pipeline %d", a.net.PipelineCount()+1)

	a.session = topology.NewSession(a.net, id, name)

	o.notify("Click to add points, double-tap for new segment", types.SeverityInfo)

	log := logging.GetFromContext(ctx)
	log.Debug().Str("pipeline_id", id).Msg("drawing started")

	return drawing(a.session.Draft(), false), nil
}

func (a *app) Drawing(ctx context.Context) (types.Drawing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return types.Drawing{}, ErrNoDrawingSession
	}

	return drawing(a.session.Draft(), false), nil
}

// SubmitPoint feeds a map click into the drawing session. A click that repeats
// the previous one within the double-click window starts a new segment.
func (a *app) SubmitPoint(ctx context.Context, p types.Point, now time.Time) (types.Drawing, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if a.session == nil {
		return types.Drawing{}, ErrNoDrawingSession
	}

	if err := validPoint(p); err != nil {
		return types.Drawing{}, err
	}

	found, broke := a.session.Submit(p, now)
	if broke {
		o.notify("New segment started", types.SeverityInfo)
	}

	a.connected(o, found)

	return drawing(a.session.Draft(), broke), nil
}

func (a *app) BreakSegment(ctx context.Context, p types.Point) (types.Drawing, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if a.session == nil {
		return types.Drawing{}, ErrNoDrawingSession
	}

	if err := validPoint(p); err != nil {
		return types.Drawing{}, err
	}

	a.session.BreakSegment(p)
	o.notify("New segment started", types.SeverityInfo)

	return drawing(a.session.Draft(), true), nil
}

// FinishDrawing commits the drawn pipeline. When it has too few points the
// session stays open so that more points can be added.
func (a *app) FinishDrawing(ctx context.Context) (types.Pipeline, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if a.session == nil {
		return types.Pipeline{}, ErrNoDrawingSession
	}

	p, err := a.session.Finalize()
	if err != nil {
		if errors.Is(err, topology.ErrTooFewPoints) {
			o.notify("Need at least 2 points for pipeline", types.SeverityWarning)
		}
		return types.Pipeline{}, err
	}

	added, err := a.addPipeline(o, p)
	if err != nil {
		return types.Pipeline{}, err
	}

	a.session = nil

	o.notify("Pipeline created successfully!", types.SeveritySuccess)
	o.snapshot = a.snapshot()

	log := logging.GetFromContext(ctx)
	log.Info().Str("pipeline_id", added.ID).Int("points", added.PointCount()).Msg("pipeline created")

	return added, nil
}

func (a *app) CancelDrawing(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return ErrNoDrawingSession
	}

	a.session.Cancel()
	a.session = nil

	return nil
}

func (a *app) connected(o *outbox, found topology.Connections) {
	for _, id := range found.Devices {
		if d, ok := a.net.Device(id); ok {
			o.notify(fmt.Sprintf("Connected to %s", d.Name), types.SeveritySuccess)
		}
	}
	for _, id := range found.GateWalls {
		if g, ok := a.net.GateWall(id); ok {
			o.notify(fmt.Sprintf("Connected to %s", g.Name), types.SeveritySuccess)
		}
	}
}

func validPoint(p types.Point) error {
	if p.Lat() < -90 || p.Lat() > 90 || p.Lon() < -180 || p.Lon() > 180 {
		return fmt.Errorf("%w: point %v is out of range", ErrValidation, p)
	}
	return nil
}

func drawing(d topology.Draft, segmentBreak bool) types.Drawing {
	return types.Drawing{
		ID:                 d.ID,
		Name:               d.Name,
		Segments:           d.Segments,
		Current:            d.Current,
		ConnectedDevices:   d.ConnectedDevices,
		ConnectedGateWalls: d.ConnectedGateWalls,
		SegmentBreak:       segmentBreak,
	}
}
