package feed

import (
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/executor"
	"github.com/crossquery/crossquery/pkg/engine/querymetrics"
)

// RecordedPage is a partition response as stored in a recording.
type RecordedPage struct {
	Partition string
	Response  *executor.Response
}

// DecodePage parses one recorded partition response:
//
//	{
//	  "partition": "0",
//	  "statusCode": 200,
//	  "subStatusCode": 0,
//	  "message": "",
//	  "activityId": "...",
//	  "requestCharge": 2.9,
//	  "responseLengthBytes": 512,
//	  "queryMetrics": "retrievedDocumentCount=3;...",
//	  "continuation": "...",
//	  "Documents": [...]
//	}
//
// A status code of 400 or above makes the page a failure.
func DecodePage(data []byte) (RecordedPage, error) {
	var (
		page       RecordedPage
		resp       = &executor.Response{Items: []document.Value{}}
		failure    executor.Failure
		metrics    querymetrics.QueryMetrics
		hasMetrics bool
	)
	failure.StatusCode = 200

	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		var err error
		switch string(key) {
		case "partition":
			page.Partition, err = jsonparser.ParseString(value)
		case "statusCode":
			var v int64
			v, err = jsonparser.ParseInt(value)
			failure.StatusCode = int(v)
		case "subStatusCode":
			var v int64
			v, err = jsonparser.ParseInt(value)
			failure.SubStatusCode = int(v)
		case "message":
			failure.Message, err = jsonparser.ParseString(value)
		case "activityId":
			resp.ActivityID, err = jsonparser.ParseString(value)
		case "requestCharge":
			resp.RequestCharge, err = jsonparser.ParseFloat(value)
		case "responseLengthBytes":
			resp.ResponseLengthBytes, err = jsonparser.ParseInt(value)
		case "queryMetrics":
			var raw string
			if raw, err = jsonparser.ParseString(value); err == nil {
				metrics, err = querymetrics.Parse(raw)
				hasMetrics = true
			}
		case "continuation":
			if dataType != jsonparser.Null {
				resp.ContinuationToken, err = jsonparser.ParseString(value)
			}
		case "Documents":
			if dataType != jsonparser.Array {
				return fmt.Errorf("Documents must be an array, got %s", dataType)
			}
			var docErr error
			_, err = jsonparser.ArrayEach(value, func(value []byte, dataType jsonparser.ValueType, _ int, itemErr error) {
				if itemErr != nil || docErr != nil {
					return
				}
				var doc document.Value
				if doc, docErr = document.FromJSON(value, dataType); docErr == nil {
					resp.Items = append(resp.Items, doc)
				}
			})
			if err == nil {
				err = docErr
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return RecordedPage{}, fmt.Errorf("decoding recorded page: %w", err)
	}

	if failure.StatusCode >= 400 {
		resp.Items = nil
		resp.ContinuationToken = ""
		resp.Failure = &failure
	}
	if hasMetrics || resp.RequestCharge != 0 || resp.ActivityID != "" {
		resp.Diagnostics = executor.Diagnostics{{
			PartitionID:   page.Partition,
			ActivityID:    resp.ActivityID,
			RequestCharge: resp.RequestCharge,
			Metrics:       metrics,
		}}
	}
	page.Response = resp
	return page, nil
}
