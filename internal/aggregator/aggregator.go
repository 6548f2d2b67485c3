// Package aggregator implements the bounded concurrent metric store.
//
// The store maps a metric identity (name plus tag set) to one accumulated
// entry. Counters sum, gauges replace, distributions feed a DDSketch.
// Capacity is a hard ceiling on distinct identities: once reached, inserts
// for new identities fail and the observation is dropped by the caller.
// Every insert and every snapshot runs under the same exclusive lock, so a
// snapshot never observes a partially applied insert.
package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"google.golang.org/protobuf/proto"

	internalerrors "github.com/p-datadog/libdatadog/internal/errors"
	models "github.com/p-datadog/libdatadog/internal/model"
)

// sketchRelativeAccuracy bounds the relative error of reported quantiles.
const sketchRelativeAccuracy = 0.01

type entry struct {
	metric models.Metric
	sketch *ddsketch.DDSketch
}

// Aggregator is a capacity-bounded store of aggregation entries.
//
// It is safe for concurrent use; the ingestion loop writes while the flush
// collaborator snapshots on its own schedule.
type Aggregator struct {
	// mu guards entries for both inserts and export snapshots
	mu sync.Mutex

	// entries maps a metric identity to its accumulated state
	entries map[string]*entry

	// defaultTags are prepended to the tags of every exported record
	defaultTags []string

	// capacity is the maximum number of distinct identities tracked
	capacity int
}

// New creates an aggregator with the given default tags and capacity.
//
// Capacity must be positive and every default tag must be of the form
// key:value.
func New(defaultTags []string, capacity int) (*Aggregator, error) {
	if capacity <= 0 {
		return nil, internalerrors.ErrInvalidCapacity
	}
	for _, tag := range defaultTags {
		key, value, found := strings.Cut(tag, ":")
		if !found || key == "" || value == "" {
			return nil, fmt.Errorf("%w: %q", internalerrors.ErrInvalidTag, tag)
		}
	}
	return &Aggregator{
		entries:     make(map[string]*entry),
		defaultTags: defaultTags,
		capacity:    capacity,
	}, nil
}

// Insert merges one metric into the store.
//
// An already-tracked identity always succeeds; a new identity fails with
// ErrAggregatorFull once the table holds capacity entries.
func (a *Aggregator) Insert(metric models.Metric) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocked(metric)
}

// InsertBatch merges a batch of metrics under a single lock acquisition, so
// a datagram's worth of metrics is applied atomically with respect to
// concurrent snapshots. The returned slice holds one error per failed
// metric; successes are not reported.
func (a *Aggregator) InsertBatch(metrics []models.Metric) []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for _, metric := range metrics {
		if err := a.insertLocked(metric); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", metric.Name, err))
		}
	}
	return errs
}

func (a *Aggregator) insertLocked(metric models.Metric) error {
	id := metric.Identity()
	existing, tracked := a.entries[id]
	if !tracked {
		if len(a.entries) >= a.capacity {
			return internalerrors.ErrAggregatorFull
		}
		switch metric.Kind {
		case models.Counter, models.Gauge:
			a.entries[id] = &entry{metric: metric}
		case models.Distribution:
			sketch, err := ddsketch.NewDefaultDDSketch(sketchRelativeAccuracy)
			if err != nil {
				return fmt.Errorf("creating sketch: %w", err)
			}
			if err := sketch.Add(metric.Value); err != nil {
				return fmt.Errorf("adding to sketch: %w", err)
			}
			a.entries[id] = &entry{metric: metric, sketch: sketch}
		default:
			return fmt.Errorf("%w: %q", internalerrors.ErrUnknownMetricType, metric.Kind)
		}
		return nil
	}

	// Merge follows the kind the entry was created with; an identity
	// resent under a different kind is dropped, never merged into state
	// the wrong export view would miss.
	if existing.metric.Kind != metric.Kind {
		return fmt.Errorf("%w: %s tracked as %s, resent as %s",
			internalerrors.ErrMetricKindMismatch, metric.Name, existing.metric.Kind, metric.Kind)
	}
	switch existing.metric.Kind {
	case models.Counter:
		existing.metric.Value += metric.Value
	case models.Gauge:
		existing.metric.Value = metric.Value
	case models.Distribution:
		if err := existing.sketch.Add(metric.Value); err != nil {
			return fmt.Errorf("adding to sketch: %w", err)
		}
	}
	return nil
}

// ToSeries snapshots every counter and gauge entry, sorted by identity for
// a deterministic export order. Entries stay in the store.
func (a *Aggregator) ToSeries() []models.Serie {
	a.mu.Lock()
	defer a.mu.Unlock()
	return seriesOf(a.entries, a.defaultTags)
}

// ToSketchPayload snapshots every distribution entry, each sketch encoded
// through its protobuf representation. Entries stay in the store.
func (a *Aggregator) ToSketchPayload() (models.SketchPayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sketchPayloadOf(a.entries, a.defaultTags)
}

// Snapshot holds entries drained from the store, frozen for export.
type Snapshot struct {
	entries     map[string]*entry
	defaultTags []string
}

// Drain atomically removes every entry and returns them as a snapshot, so
// nothing inserted after the drain can be lost by a later reset. The
// snapshot renders the same two export views as the live store.
func (a *Aggregator) Drain() *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	drained := a.entries
	a.entries = make(map[string]*entry)
	return &Snapshot{entries: drained, defaultTags: a.defaultTags}
}

// Restore merges a drained snapshot back into the store, used when
// shipping failed and the entries should keep accumulating. Identities
// re-tracked since the drain merge by kind: counters sum, gauges keep the
// newer value, distribution sketches merge. Entries that no longer fit
// under the capacity are dropped.
func (a *Aggregator) Restore(s *Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, e := range s.entries {
		current, tracked := a.entries[id]
		if !tracked {
			if len(a.entries) < a.capacity {
				a.entries[id] = e
			}
			continue
		}
		if current.metric.Kind != e.metric.Kind {
			continue
		}
		switch e.metric.Kind {
		case models.Counter:
			current.metric.Value += e.metric.Value
		case models.Gauge:
			// The post-drain value is newer and wins
		case models.Distribution:
			if err := current.sketch.MergeWith(e.sketch); err != nil {
				// Same-accuracy sketches always merge; keep the newer one
				continue
			}
		}
	}
}

// Series renders the counter and gauge entries of the snapshot.
func (s *Snapshot) Series() []models.Serie {
	return seriesOf(s.entries, s.defaultTags)
}

// SketchPayload renders the distribution entries of the snapshot.
func (s *Snapshot) SketchPayload() (models.SketchPayload, error) {
	return sketchPayloadOf(s.entries, s.defaultTags)
}

// Len reports the number of identities held by the snapshot.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

func seriesOf(entries map[string]*entry, defaultTags []string) []models.Serie {
	series := make([]models.Serie, 0, len(entries))
	for _, id := range sortedIDs(entries) {
		e := entries[id]
		if e.metric.Kind == models.Distribution {
			continue
		}
		series = append(series, models.Serie{
			Name:  e.metric.Name,
			Value: e.metric.Value,
			Tags:  models.JoinTags(defaultTags, e.metric.Tags),
		})
	}
	return series
}

func sketchPayloadOf(entries map[string]*entry, defaultTags []string) (models.SketchPayload, error) {
	payload := models.SketchPayload{Sketches: []models.SketchEntry{}}
	for _, id := range sortedIDs(entries) {
		e := entries[id]
		if e.metric.Kind != models.Distribution {
			continue
		}
		encoded, err := proto.Marshal(e.sketch.ToProto())
		if err != nil {
			return models.SketchPayload{}, fmt.Errorf("encoding sketch for %s: %w", e.metric.Name, err)
		}
		payload.Sketches = append(payload.Sketches, models.SketchEntry{
			Name:   e.metric.Name,
			Tags:   models.JoinTags(defaultTags, e.metric.Tags),
			Sketch: encoded,
		})
	}
	return payload, nil
}

// Quantile reports the value at quantile q of a tracked distribution,
// mainly for tests and the ops surface.
func (a *Aggregator) Quantile(name string, tags []string, q float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, tracked := a.entries[models.Metric{Name: name, Tags: tags}.Identity()]
	if !tracked || e.sketch == nil {
		return 0, fmt.Errorf("no distribution tracked for %q", name)
	}
	return e.sketch.GetValueAtQuantile(q)
}

func sortedIDs(entries map[string]*entry) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of distinct identities currently tracked.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Clear drops every entry; the capacity and default tags are kept.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.entries)
}
