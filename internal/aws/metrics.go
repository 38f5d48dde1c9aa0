package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder emits lifecycle-transition counters to CloudWatch. Emission
// is best-effort; callers log failures and move on.
type MetricsRecorder struct {
	CW        CloudWatchAPI
	Namespace string
	nowFunc   func() time.Time
}

// NewMetricsRecorder returns a recorder publishing under the given namespace.
func NewMetricsRecorder(cw CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		CW:        cw,
		Namespace: namespace,
		nowFunc:   time.Now,
	}
}

// RecordTransition counts one pedido lifecycle transition, dimensioned by the
// pagamento and status that were persisted.
func (m *MetricsRecorder) RecordTransition(ctx context.Context, pagamento, status string) error {
	if m == nil || m.CW == nil {
		return nil
	}
	now := m.nowFunc()
	dims := []cwtypes.Dimension{
		{Name: awsString("Pagamento"), Value: awsString(pagamento)},
	}
	if status != "" {
		dims = append(dims, cwtypes.Dimension{Name: awsString("Status"), Value: awsString(status)})
	}
	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString("PedidoTransitions"),
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      awsFloat(1),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func awsFloat(f float64) *float64 { return &f }
