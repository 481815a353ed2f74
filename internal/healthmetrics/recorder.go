package healthmetrics

import (
	"context"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// API is the slice of the backend client the recorder needs.
type API interface {
	AddHealthMetric(ctx context.Context, userID int64, req healthapi.HealthMetricRequest) (healthapi.HealthMetric, error)
	HealthMetrics(ctx context.Context, userID int64) ([]healthapi.HealthMetric, error)
}

// Recorder submits normalized weight/height observations for a user.
type Recorder struct {
	api    API
	logger *logging.Logger
}

func NewRecorder(api API, logger *logging.Logger) *Recorder {
	if api == nil {
		panic("healthmetrics: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{api: api, logger: logger}
}

// Record parses the raw entries, then submits them. Parse failures surface
// as ValidationError before any network call.
func (r *Recorder) Record(ctx context.Context, userID int64, weightInput, heightInput string) (healthapi.HealthMetric, error) {
	weight, err := ParseWeight(weightInput)
	if err != nil {
		return healthapi.HealthMetric{}, err
	}
	height, err := ParseHeight(heightInput)
	if err != nil {
		return healthapi.HealthMetric{}, err
	}
	m, err := r.api.AddHealthMetric(ctx, userID, healthapi.HealthMetricRequest{Weight: weight, Height: height})
	if err != nil {
		return healthapi.HealthMetric{}, err
	}
	r.logger.Info("health metric recorded", "user_id", userID, "weight_lbs", weight, "height_m", height)
	return m, nil
}

// History lists the user's recorded metrics.
func (r *Recorder) History(ctx context.Context, userID int64) ([]healthapi.HealthMetric, error) {
	return r.api.HealthMetrics(ctx, userID)
}
