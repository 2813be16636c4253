package server

import (
	"net/http"
	"os"
	"slices"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
	"google.golang.org/protobuf/proto"
)

// MetricsHandler serves the hub's gauges and counters in the Prometheus text
// exposition format.
func MetricsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		for _, mf := range collectMetrics(hub) {
			// The text encoder rejects families without samples.
			if len(mf.GetMetric()) == 0 {
				continue
			}
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				hub.log.Warn("Error writing metrics", "metric", mf.GetName(), "err", err)
				return
			}
		}
	}
}

func collectMetrics(hub *Hub) []*dto.MetricFamily {
	relay := hub.Relay()

	families := []*dto.MetricFamily{
		gauge("chat_connections", "Open WebSocket connections.", float64(hub.Count())),
		gauge("chat_rooms", "Rooms that currently have members.", float64(relay.Directory.Len())),
		gauge("chat_identities", "Usernames currently claimed.", float64(relay.Registry.Len())),
		roomMembers(relay.Directory.Sizes()),
		counter("chat_events_relayed_total", "Events queued for delivery to a connection.", float64(relay.Dispatcher.Relayed())),
		counter("chat_events_dropped_total", "Events dropped because a connection could not accept them.", float64(relay.Dispatcher.Dropped())),
	}

	if rss, ok := residentMemory(); ok {
		families = append(families, gauge("process_resident_memory_bytes", "Resident memory size in bytes.", rss))
	}
	return families
}

func roomMembers(sizes map[string]int) *dto.MetricFamily {
	rooms := lo.Keys(sizes)
	slices.Sort(rooms)

	mf := &dto.MetricFamily{
		Name: proto.String("chat_room_members"),
		Help: proto.String("Members per room."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, room := range rooms {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{Name: proto.String("room"), Value: proto.String(room)}},
			Gauge: &dto.Gauge{Value: proto.Float64(float64(sizes[room]))},
		})
	}
	return mf
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func residentMemory() (float64, bool) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, false
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, false
	}
	return float64(mem.RSS), true
}
