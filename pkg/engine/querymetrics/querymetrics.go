// Package querymetrics holds the per-page execution metrics reported by the
// backend and merges them across pages and partitions.
package querymetrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Keys of the delimited metrics form, e.g.
// "totalExecutionTimeInMs=0.3;retrievedDocumentCount=12;...".
const (
	KeyRetrievedDocumentCount    = "retrievedDocumentCount"
	KeyRetrievedDocumentSize     = "retrievedDocumentSize"
	KeyOutputDocumentCount       = "outputDocumentCount"
	KeyOutputDocumentSize        = "outputDocumentSize"
	KeyIndexHitRatio             = "indexUtilizationRatio"
	KeyTotalQueryExecutionTimeMs = "totalExecutionTimeInMs"
	KeyQueryCompileTimeMs        = "queryCompileTimeInMs"
	KeyLogicalPlanBuildTimeMs    = "queryLogicalPlanBuildTimeInMs"
	KeyPhysicalPlanBuildTimeMs   = "queryPhysicalPlanBuildTimeInMs"
	KeyQueryOptimizationTimeMs   = "queryOptimizationTimeInMs"
	KeyIndexLookupTimeMs         = "indexLookupTimeInMs"
	KeyDocumentLoadTimeMs        = "documentLoadTimeInMs"
	KeyVMExecutionTimeMs         = "VMExecutionTimeInMs"
	KeySystemFunctionTimeMs      = "systemFunctionExecuteTimeInMs"
	KeyUserFunctionTimeMs        = "userFunctionExecuteTimeInMs"
	KeyDocumentWriteTimeMs       = "documentWriteTimeInMs"
)

// QueryMetrics are the backend execution statistics of one or more pages.
// The zero value is the identity for [QueryMetrics.Add].
type QueryMetrics struct {
	RetrievedDocumentCount int64
	RetrievedDocumentSize  int64
	OutputDocumentCount    int64
	OutputDocumentSize     int64
	IndexHitDocumentCount  int64

	TotalQueryExecutionTime time.Duration
	QueryPreparationTime    time.Duration // compile, plan build and optimization
	IndexLookupTime         time.Duration
	DocumentLoadTime        time.Duration
	VMExecutionTime         time.Duration
	RuntimeExecutionTime    time.Duration // system and user function execution
	DocumentWriteTime       time.Duration
}

// Parse decodes the delimited metrics form. Unknown keys are ignored.
func Parse(delimited string) (QueryMetrics, error) {
	values := make(map[string]float64)
	for _, part := range strings.Split(delimited, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, raw, ok := strings.Cut(part, "=")
		if !ok {
			return QueryMetrics{}, fmt.Errorf("malformed query metric %q", part)
		}
		// ParseFloat is locale independent.
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return QueryMetrics{}, fmt.Errorf("malformed query metric %q: %w", part, err)
		}
		values[strings.TrimSpace(key)] = f
	}

	retrieved := values[KeyRetrievedDocumentCount]
	return QueryMetrics{
		RetrievedDocumentCount: int64(retrieved),
		RetrievedDocumentSize:  int64(values[KeyRetrievedDocumentSize]),
		OutputDocumentCount:    int64(values[KeyOutputDocumentCount]),
		OutputDocumentSize:     int64(values[KeyOutputDocumentSize]),
		IndexHitDocumentCount:  int64(math.Round(values[KeyIndexHitRatio] * retrieved)),

		TotalQueryExecutionTime: millis(values[KeyTotalQueryExecutionTimeMs]),
		QueryPreparationTime: millis(values[KeyQueryCompileTimeMs] +
			values[KeyLogicalPlanBuildTimeMs] +
			values[KeyPhysicalPlanBuildTimeMs] +
			values[KeyQueryOptimizationTimeMs]),
		IndexLookupTime:      millis(values[KeyIndexLookupTimeMs]),
		DocumentLoadTime:     millis(values[KeyDocumentLoadTimeMs]),
		VMExecutionTime:      millis(values[KeyVMExecutionTimeMs]),
		RuntimeExecutionTime: millis(values[KeySystemFunctionTimeMs] + values[KeyUserFunctionTimeMs]),
		DocumentWriteTime:    millis(values[KeyDocumentWriteTimeMs]),
	}, nil
}

func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

// Add returns the sum of m and others.
func (m QueryMetrics) Add(others ...QueryMetrics) QueryMetrics {
	for _, o := range others {
		m.RetrievedDocumentCount += o.RetrievedDocumentCount
		m.RetrievedDocumentSize += o.RetrievedDocumentSize
		m.OutputDocumentCount += o.OutputDocumentCount
		m.OutputDocumentSize += o.OutputDocumentSize
		m.IndexHitDocumentCount += o.IndexHitDocumentCount
		m.TotalQueryExecutionTime += o.TotalQueryExecutionTime
		m.QueryPreparationTime += o.QueryPreparationTime
		m.IndexLookupTime += o.IndexLookupTime
		m.DocumentLoadTime += o.DocumentLoadTime
		m.VMExecutionTime += o.VMExecutionTime
		m.RuntimeExecutionTime += o.RuntimeExecutionTime
		m.DocumentWriteTime += o.DocumentWriteTime
	}
	return m
}

// IndexHitRatio is the share of retrieved documents served by the index.
// It is 1 when nothing was retrieved.
func (m QueryMetrics) IndexHitRatio() float64 {
	if m.RetrievedDocumentCount == 0 {
		return 1
	}
	return float64(m.IndexHitDocumentCount) / float64(m.RetrievedDocumentCount)
}

// String renders m in the delimited form accepted by [Parse].
func (m QueryMetrics) String() string {
	var sb strings.Builder
	write := func(key string, v float64) {
		if sb.Len() > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	ms := func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	}

	write(KeyRetrievedDocumentCount, float64(m.RetrievedDocumentCount))
	write(KeyRetrievedDocumentSize, float64(m.RetrievedDocumentSize))
	write(KeyOutputDocumentCount, float64(m.OutputDocumentCount))
	write(KeyOutputDocumentSize, float64(m.OutputDocumentSize))
	write(KeyIndexHitRatio, m.IndexHitRatio())
	write(KeyTotalQueryExecutionTimeMs, ms(m.TotalQueryExecutionTime))
	write(KeyQueryCompileTimeMs, ms(m.QueryPreparationTime))
	write(KeyIndexLookupTimeMs, ms(m.IndexLookupTime))
	write(KeyDocumentLoadTimeMs, ms(m.DocumentLoadTime))
	write(KeyVMExecutionTimeMs, ms(m.VMExecutionTime))
	write(KeySystemFunctionTimeMs, ms(m.RuntimeExecutionTime))
	write(KeyDocumentWriteTimeMs, ms(m.DocumentWriteTime))
	return sb.String()
}
