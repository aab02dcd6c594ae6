// Package metrics exposes Prometheus counters for phase saves, document
// uploads and project progress syncs. A nil *Recorder records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	phaseSaves      *prometheus.CounterVec
	phasePercent    *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	progressSyncs   *prometheus.CounterVec
	projectProgress *prometheus.GaugeVec
}

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		phaseSaves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heatline_phase_saves_total",
				Help: "Phase record saves by phase and result",
			},
			[]string{"phase", "result"},
		),
		phasePercent: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heatline_phase_completion_percent",
				Help:    "Form completion percentage observed on save",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"phase"},
		),
		uploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heatline_document_uploads_total",
				Help: "Document uploads by field and result",
			},
			[]string{"field", "result"},
		),
		progressSyncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heatline_progress_syncs_total",
				Help: "Writes of the checklist aggregate onto projects by result",
			},
			[]string{"result"},
		),
		projectProgress: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "heatline_project_progress_percent",
				Help: "Last synced checklist progress per project",
			},
			[]string{"project"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *Recorder) PhaseSaved(phase string, percent int, err error) {
	if r == nil {
		return
	}
	r.phaseSaves.WithLabelValues(phase, result(err)).Inc()
	if err == nil {
		r.phasePercent.WithLabelValues(phase).Observe(float64(percent))
	}
}

func (r *Recorder) DocumentUploaded(field string, err error) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(field, result(err)).Inc()
}

func (r *Recorder) ProgressSynced(projectID string, percent int, err error) {
	if r == nil {
		return
	}
	r.progressSyncs.WithLabelValues(result(err)).Inc()
	if err == nil {
		r.projectProgress.WithLabelValues(projectID).Set(float64(percent))
	}
}

func (r *Recorder) ProjectDeleted(projectID string) {
	if r == nil {
		return
	}
	r.projectProgress.DeleteLabelValues(projectID)
}
