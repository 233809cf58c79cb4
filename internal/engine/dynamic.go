package engine

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/papapumpkin/ratsnest/internal/connectivity"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/ratsnest"
	"github.com/papapumpkin/ratsnest/internal/telemetry"
	"github.com/papapumpkin/ratsnest/internal/worker"
)

// NetEdge is a ratsnest edge tagged with its net.
type NetEdge struct {
	Net  int
	Edge ratsnest.Edge
}

// DynamicRatsnest is the preview shown while features are being dragged.
type DynamicRatsnest struct {
	Lines  []NetEdge       // nearest link from each moving cluster to the rest of its net
	Static []NetEdge       // unconnected edges of the touched nets not ending on a moving feature
	Hidden map[string]bool // IDs of the moving features
}

// dynamicState guards the dynamic worker. gen is bumped on every compute and
// clear; a job only publishes when its generation is still current.
type dynamicState struct {
	mu     sync.Mutex
	gen    uint64
	worker *worker.Worker
	result *DynamicRatsnest
}

// ComputeDynamicRatsnest starts a preview job for the moving features on the
// dynamic worker, replacing any job still running. The preview is computed
// against the last published result and does not touch the main arena.
func (d *Data) ComputeDynamicRatsnest(moving []pcb.Feature) error {
	d.dyn.mu.Lock()
	d.dyn.gen++
	gen := d.dyn.gen
	old := d.dyn.worker
	d.dyn.mu.Unlock()

	if old != nil {
		old.Interrupt()
		_ = old.Join()
	}

	base := d.result.Load()
	feats := slices.Clone(moving)
	jobID := telemetry.NewJobID()
	w := worker.New(func(ctx context.Context) error {
		dr, err := d.dynamic(ctx, base, feats)
		if err != nil {
			return err
		}
		d.dyn.mu.Lock()
		defer d.dyn.mu.Unlock()
		if d.dyn.gen != gen || ctx.Err() != nil {
			return worker.ErrAborted
		}
		d.dyn.result = dr
		_ = d.telemetry.Job(telemetry.KindDynamicDone, jobID, map[string]int{
			"moving": len(feats),
			"lines":  len(dr.Lines),
		})
		return nil
	}, worker.WithName("dynamic"), worker.WithLogger(d.logger.With(zap.String("job", jobID))))

	d.dyn.mu.Lock()
	d.dyn.worker = w
	d.dyn.mu.Unlock()
	return w.Run()
}

// SyncDynamic waits for the running preview job and returns its error.
func (d *Data) SyncDynamic() error {
	d.dyn.mu.Lock()
	w := d.dyn.worker
	d.dyn.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Join()
}

// DynamicRatsnest returns the latest preview, or nil.
func (d *Data) DynamicRatsnest() *DynamicRatsnest {
	d.dyn.mu.Lock()
	defer d.dyn.mu.Unlock()
	return d.dyn.result
}

// ClearDynamicRatsnest cancels the preview job and discards its result.
func (d *Data) ClearDynamicRatsnest() {
	d.dyn.mu.Lock()
	d.dyn.gen++
	w := d.dyn.worker
	d.dyn.worker = nil
	d.dyn.result = nil
	d.dyn.mu.Unlock()

	if w != nil {
		w.Interrupt()
		_ = w.Join()
	}
}

// dynamic computes one preview. Moving features take the effective net they
// had in base; features base does not know keep their own net code.
func (d *Data) dynamic(ctx context.Context, base *result, moving []pcb.Feature) (*DynamicRatsnest, error) {
	dr := &DynamicRatsnest{Hidden: make(map[string]bool, len(moving))}
	nets := make(map[string]int, len(moving))
	for _, f := range moving {
		dr.Hidden[f.ID()] = true
		nets[f.ID()] = f.NetCode()
		if base != nil && len(base.handles[f.ID()]) > 0 {
			nets[f.ID()] = base.full.EffectiveNet(base.handles[f.ID()][0])
		}
	}

	algo := connectivity.New(connectivity.WithEpsilon(d.algo.Epsilon()))
	algo.Build(moving)
	view := algo.Snapshot().WithFeatureNets(nets)
	cs, err := connectivity.SearchClusters(ctx, view, connectivity.ModeRatsnest, 0)
	if err != nil {
		return nil, err
	}

	statics := make(map[int]*ratsnest.Net)
	for _, c := range cs.Clusters() {
		if ctx.Err() != nil {
			return nil, connectivity.ErrAborted
		}
		code := c.Net()
		if base == nil || code >= len(base.nets) || base.nets[code] == nil {
			continue
		}
		static, ok := statics[code]
		if !ok {
			static = base.nets[code].Without(dr.Hidden)
			statics[code] = static
		}
		mv := ratsnest.NewNet(code)
		mv.AddCluster(cs, c)
		if a, b, ok := mv.NearestBicoloredPair(static); ok {
			dr.Lines = append(dr.Lines, NetEdge{Net: code, Edge: ratsnest.Edge{A: a, B: b, DistSq: a.Pos.DistSq(b.Pos)}})
		}
	}

	for _, code := range slices.Sorted(maps.Keys(statics)) {
		for _, e := range base.nets[code].VisibleUnconnected(dr.Hidden) {
			dr.Static = append(dr.Static, NetEdge{Net: code, Edge: e})
		}
	}
	return dr, nil
}
