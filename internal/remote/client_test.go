package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/require"

	"github.com/fairlabs/stms-dashboard/internal/models"
	"github.com/fairlabs/stms-dashboard/internal/remote"
)

type stubInvoker struct {
	calls    []*lambda.InvokeInput
	payloads map[string][]byte
	err      error
	fnErr    *string
}

func (s *stubInvoker) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	s.calls = append(s.calls, in)
	if s.err != nil {
		return nil, s.err
	}
	return &lambda.InvokeOutput{
		StatusCode:    200,
		FunctionError: s.fnErr,
		Payload:       s.payloads[aws.ToString(in.FunctionName)],
	}, nil
}

func searchEnvelope(t *testing.T, status int, body any) []byte {
	t.Helper()
	inner, err := json.Marshal(body)
	require.NoError(t, err)
	out, err := json.Marshal(map[string]any{"statusCode": status, "body": string(inner)})
	require.NoError(t, err)
	return out
}

func sampleRequest() models.SearchRequest {
	return models.SearchRequest{
		KeywordQuery:       "battery",
		SemanticQuery:      "solid state electrolyte",
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		SearchSimilarity:   0.5,
		ClusterMinSize:     5,
		ClusterTopN:        3,
		ClusterSimilarity:  0.6,
		IncludeDescription: true,
		SampleSize:         4,
	}
}

func TestSearchSendsPayloadAndDecodesBody(t *testing.T) {
	inv := &stubInvoker{payloads: map[string][]byte{
		"semantic_search": searchEnvelope(t, 200, map[string]any{
			"summaries": map[string]string{"0": "Anodes", "1": "Cathodes"},
			"articles":  map[string][]string{"0": {"a1", "a2"}, "1": {"c1"}},
			"filepath":  "s3://fairlabs-shared/results/abc.csv",
		}),
	}}
	client := remote.New(inv, "semantic_search", "gpt_analytics", nil)

	resp, err := client.Search(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "Cathodes", resp.Summaries["1"])
	require.Equal(t, []string{"a1", "a2"}, resp.Articles["0"])
	require.Equal(t, "s3://fairlabs-shared/results/abc.csv", resp.Filepath)

	require.Len(t, inv.calls, 1)
	call := inv.calls[0]
	require.Equal(t, "semantic_search", aws.ToString(call.FunctionName))
	require.Equal(t, types.InvocationTypeRequestResponse, call.InvocationType)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(call.Payload, &sent))
	require.Equal(t, "2024-01-01", sent["start_date"])
	require.Equal(t, "2024-03-01", sent["end_date"])
	require.Equal(t, false, sent["_use_main_articles"])
	require.Equal(t, true, sent["_use_body"])
	require.EqualValues(t, 3, sent["cluster_top_n"])
	require.EqualValues(t, 4, sent["give_gpt_n_sample"])
	require.Len(t, sent, 11)
}

func TestNewSearchPayloadEndDateIsNextDay(t *testing.T) {
	tests := []struct {
		end  time.Time
		want string
	}{
		{end: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), want: "2024-02-01"},
		{end: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), want: "2024-01-01"},
		{end: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), want: "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			req := sampleRequest()
			req.EndDate = tt.end
			require.Equal(t, tt.want, remote.NewSearchPayload(req).EndDate)
		})
	}
}

func TestSearchUnsuccessfulStatus(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "with body", payload: searchEnvelope(t, 500, map[string]any{"error": "boom"})},
		{name: "status only", payload: []byte(`{"statusCode":500}`)},
		{name: "null body", payload: []byte(`{"statusCode":502,"body":null}`)},
		{name: "no status", payload: []byte(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &stubInvoker{payloads: map[string][]byte{"semantic_search": tt.payload}}
			client := remote.New(inv, "semantic_search", "gpt_analytics", nil)

			resp, err := client.Search(context.Background(), sampleRequest())
			require.ErrorIs(t, err, remote.ErrUnsuccessfulStatus)
			require.Nil(t, resp)
		})
	}
}

func TestSearchFailuresAreVisible(t *testing.T) {
	tests := []struct {
		name string
		inv  *stubInvoker
	}{
		{name: "transport", inv: &stubInvoker{err: errors.New("connection reset")}},
		{name: "function error", inv: &stubInvoker{fnErr: aws.String("Unhandled"), payloads: map[string][]byte{"semantic_search": []byte(`{"errorMessage":"x"}`)}}},
		{name: "malformed envelope", inv: &stubInvoker{payloads: map[string][]byte{"semantic_search": []byte(`{not json`)}}},
		{name: "malformed body", inv: &stubInvoker{payloads: map[string][]byte{"semantic_search": []byte(`{"statusCode":200,"body":"{oops"}`)}}},
		{name: "missing body", inv: &stubInvoker{payloads: map[string][]byte{"semantic_search": []byte(`{"statusCode":200}`)}}},
		{name: "missing filepath", inv: &stubInvoker{payloads: map[string][]byte{"semantic_search": []byte(`{"statusCode":200,"body":"{\"summaries\":{}}"}`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := remote.New(tt.inv, "semantic_search", "gpt_analytics", nil)
			resp, err := client.Search(context.Background(), sampleRequest())
			require.Error(t, err)
			require.Nil(t, resp)
			require.Len(t, tt.inv.calls, 1)
		})
	}
}

func TestReport(t *testing.T) {
	body, err := json.Marshal([]string{"first", "second"})
	require.NoError(t, err)
	env, err := json.Marshal(map[string]any{"body": string(body)})
	require.NoError(t, err)

	inv := &stubInvoker{payloads: map[string][]byte{"gpt_analytics": env}}
	client := remote.New(inv, "semantic_search", "gpt_analytics", nil)

	resp, err := client.Report(context.Background(), models.ReportRequest{
		Filepath:    "results/abc.csv",
		ClusterTopN: 2,
		SampleSize:  5,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, resp.Reports)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(inv.calls[0].Payload, &sent))
	require.Equal(t, "results/abc.csv", sent["filepath"])
	require.EqualValues(t, 2, sent["cluster_top_n"])
	require.EqualValues(t, 5, sent["give_gpt_n_sample"])
}

func TestReportStatusWithoutBody(t *testing.T) {
	inv := &stubInvoker{payloads: map[string][]byte{"gpt_analytics": []byte(`{"statusCode":500}`)}}
	client := remote.New(inv, "semantic_search", "gpt_analytics", nil)

	_, err := client.Report(context.Background(), models.ReportRequest{Filepath: "x"})
	require.ErrorIs(t, err, remote.ErrUnsuccessfulStatus)
}

func TestReportMalformedBody(t *testing.T) {
	inv := &stubInvoker{payloads: map[string][]byte{"gpt_analytics": []byte(`{"body":"[1,"}`)}}
	client := remote.New(inv, "semantic_search", "gpt_analytics", nil)

	_, err := client.Report(context.Background(), models.ReportRequest{Filepath: "x"})
	require.Error(t, err)
}

func TestOptionsDisableRetries(t *testing.T) {
	var o lambda.Options
	remote.Options(15 * time.Minute)(&o)
	require.IsType(t, aws.NopRetryer{}, o.Retryer)
	require.NotNil(t, o.HTTPClient)
}
