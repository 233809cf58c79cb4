package engine

import (
	"context"
	"encoding/binary"
	"maps"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/papapumpkin/ratsnest/internal/connectivity"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/ratsnest"
	"github.com/papapumpkin/ratsnest/internal/telemetry"
	"github.com/papapumpkin/ratsnest/internal/worker"
)

// result is one published recalculation. It is never modified after the
// atomic swap that publishes it.
type result struct {
	jobID    string
	stamp    uint64
	full     *connectivity.ClusterSet // every item, effective nets
	clusters *connectivity.ClusterSet // ratsnest mode
	nets     []*ratsnest.Net
	prints   map[int]uint64
	features map[string]pcb.Feature
	handles  map[string][]int
	names    map[int]string
}

// Recalculate interrupts a running job, waits for it to stop, applies queued
// edits and starts a new job over the current features. When lazy is false
// it blocks until the job has finished and returns its error.
func (d *Data) Recalculate(lazy bool) error {
	d.stopWorker()
	d.algo.Release()
	d.algo.Flush()
	d.state.Store(int32(StateInvalid))

	view := d.algo.Snapshot()
	prev := d.result.Load()
	names := d.netNames()
	jobID := telemetry.NewJobID()

	w := worker.New(func(ctx context.Context) error {
		return d.run(ctx, jobID, view, prev, names)
	}, worker.WithName("recalculate"), worker.WithLogger(d.logger))

	d.mu.Lock()
	d.worker = w
	d.mu.Unlock()

	if err := w.Run(); err != nil {
		return err
	}
	if lazy {
		return nil
	}
	return w.Join()
}

// run is the body of one recalculation job. Everything it writes lives in
// the new result until publish.
func (d *Data) run(ctx context.Context, jobID string, view *connectivity.View, prev *result, names map[int]string) error {
	start := time.Now()
	log := d.logger.With(zap.String("job", jobID))
	_ = d.telemetry.Job(telemetry.KindJobStart, jobID, map[string]int{"items": view.Len()})

	abort := func(err error) error {
		log.Debug("recalculation aborted", zap.Error(err))
		_ = d.telemetry.Job(telemetry.KindJobAborted, jobID, nil)
		return err
	}

	eff, full, err := connectivity.PropagateNets(ctx, view)
	if err != nil {
		return abort(err)
	}
	cs, err := connectivity.SearchClusters(ctx, eff, connectivity.ModeRatsnest, 0)
	if err != nil {
		return abort(err)
	}

	byNet := make(map[int][]*connectivity.Cluster)
	for _, c := range cs.Clusters() {
		if c.Net() > 0 {
			byNet[c.Net()] = append(byNet[c.Net()], c)
		}
	}
	codes := slices.Sorted(maps.Keys(byNet))

	size := 0
	if len(codes) > 0 {
		size = codes[len(codes)-1] + 1
	}
	if prev != nil {
		size = max(size, len(prev.nets))
	}

	res := &result{
		jobID:    jobID,
		stamp:    view.Stamp(),
		full:     full,
		clusters: cs,
		nets:     make([]*ratsnest.Net, size),
		prints:   make(map[int]uint64, len(codes)),
		names:    names,
	}
	res.indexFeatures(eff)

	dirty := make(map[int]bool)
	for _, c := range d.algo.DirtyClusters(cs) {
		dirty[c.Net()] = true
	}

	var rebuild []*ratsnest.Net
	for _, code := range codes {
		if ctx.Err() != nil {
			return abort(connectivity.ErrAborted)
		}
		fp := fingerprint(cs, byNet[code])
		res.prints[code] = fp
		if prev.reusable(code, fp) && !dirty[code] {
			res.nets[code] = prev.nets[code]
			continue
		}
		n := ratsnest.NewNet(code)
		for _, c := range byNet[code] {
			n.AddCluster(cs, c)
		}
		res.nets[code] = n
		rebuild = append(rebuild, n)
	}

	p := pool.New().WithMaxGoroutines(d.parallelism)
	for _, n := range rebuild {
		p.Go(func() {
			if ctx.Err() == nil {
				n.Update()
			}
		})
	}
	p.Wait()
	if ctx.Err() != nil {
		return abort(connectivity.ErrAborted)
	}

	if !d.publish(ctx, res) {
		return abort(worker.ErrAborted)
	}

	stats := res.stats(len(rebuild), time.Since(start))
	for _, c := range connectivity.Conflicts(full) {
		log.Warn("conflicting cluster", zap.Ints("nets", c.ConflictNets()), zap.Int("items", c.Size()))
	}
	log.Debug("recalculation finished",
		zap.Int("clusters", stats.Clusters),
		zap.Int("rebuilt_nets", stats.RebuiltNets),
		zap.Int("unconnected", stats.Unconnected))
	_ = d.telemetry.Job(telemetry.KindJobDone, jobID, stats)
	return nil
}

// publish swaps res in unless the job was cancelled. It serializes with
// KillCalculations so a killed job cannot publish.
func (d *Data) publish(ctx context.Context, res *result) bool {
	d.pubMu.Lock()
	if ctx.Err() != nil {
		d.pubMu.Unlock()
		return false
	}
	d.result.Store(res)
	d.algo.ClearDirtyFlags(res.stamp)
	if d.algo.Stamp() == res.stamp {
		d.state.Store(int32(StateValid))
	}
	notify := d.notify
	d.pubMu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// reusable reports whether the previous ratsnest of code can be kept: it
// exists and the net's cluster membership is unchanged.
func (r *result) reusable(code int, fp uint64) bool {
	if r == nil || code >= len(r.nets) || r.nets[code] == nil {
		return false
	}
	old, ok := r.prints[code]
	return ok && old == fp
}

// indexFeatures records every live feature and its handles.
func (r *result) indexFeatures(v *connectivity.View) {
	r.features = make(map[string]pcb.Feature)
	r.handles = make(map[string][]int)
	for h := range v.Len() {
		it := v.Item(h)
		if it == nil {
			continue
		}
		id := it.Feature().ID()
		r.features[id] = it.Feature()
		r.handles[id] = append(r.handles[id], h)
	}
}

func (r *result) stats(rebuilt int, elapsed time.Duration) telemetry.JobStats {
	s := telemetry.JobStats{
		Items:       len(r.features),
		Clusters:    len(r.full.Clusters()),
		RebuiltNets: rebuilt,
		Conflicts:   len(connectivity.Conflicts(r.full)),
		ElapsedMS:   elapsed.Milliseconds(),
	}
	for _, n := range r.nets {
		if n != nil {
			s.Nets++
			s.Unconnected += len(n.Unconnected())
		}
	}
	return s
}

// fingerprint hashes the ordered membership of a net's clusters: every
// member's identity and anchors and every walked link. Two searches that
// yield the same fingerprint yield the same ratsnest.
func fingerprint(cs *connectivity.ClusterSet, clusters []*connectivity.Cluster) uint64 {
	h := xxhash.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	putItem := func(handle int) {
		it := cs.Item(handle)
		id := it.Feature().ID()
		putInt(int64(len(id)))
		_, _ = h.WriteString(id)
		putInt(int64(it.Part()))
	}

	for _, c := range clusters {
		putInt(int64(c.Size()))
		for _, m := range c.Members() {
			it := cs.Item(m)
			putItem(m)
			putInt(int64(it.Kind()))
			putInt(int64(len(it.Anchors())))
			for _, p := range it.Anchors() {
				putInt(p.X)
				putInt(p.Y)
			}
		}
		putInt(int64(len(c.Links())))
		for _, l := range c.Links() {
			putItem(l[0])
			putItem(l[1])
		}
	}
	return h.Sum64()
}
