// Package remote invokes the search and report functions over AWS Lambda.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
)

// ErrUnsuccessfulStatus is returned when a response envelope carries a status other than 200.
var ErrUnsuccessfulStatus = errors.New("unsuccessful status")

var errMissingBody = errors.New("missing body")

// Invoker is the subset of the Lambda API the client needs.
type Invoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client calls the remote search and report functions synchronously.
type Client struct {
	lambda Invoker
	search string
	report string
	log    *slog.Logger
}

// New wraps an Invoker. search and report are the Lambda function names.
func New(invoker Invoker, search, report string, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{lambda: invoker, search: search, report: report, log: log}
}

// NewLambdaClient builds a Lambda client that never retries and waits up to
// timeout for both connecting and reading.
func NewLambdaClient(cfg aws.Config, timeout time.Duration) *lambda.Client {
	return lambda.NewFromConfig(cfg, Options(timeout))
}

// Options applies the zero-retry, long-timeout settings to a Lambda client.
func Options(timeout time.Duration) func(*lambda.Options) {
	return func(o *lambda.Options) {
		o.Retryer = aws.NopRetryer{}
		o.HTTPClient = awshttp.NewBuildableClient().
			WithTimeout(timeout).
			WithDialerOptions(func(d *net.Dialer) {
				d.Timeout = timeout
			})
	}
}

// SearchPayload is the JSON document sent to the search function.
type SearchPayload struct {
	KeywordQuery      string  `json:"keyword_query"`
	SemanticQuery     string  `json:"semantic_query"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	SearchSimilarity  float64 `json:"search_similarity"`
	ClusterMinSize    int     `json:"cluster_min_size"`
	ClusterTopN       int     `json:"cluster_top_n"`
	ClusterSimilarity float64 `json:"cluster_similarity"`
	UseBody           bool    `json:"_use_body"`
	UseMainArticles   bool    `json:"_use_main_articles"`
	GiveGPTNSample    int     `json:"give_gpt_n_sample"`
}

// NewSearchPayload converts a request into its wire form. The end date is
// sent as the day after the selected one so the remote range includes it.
func NewSearchPayload(req models.SearchRequest) SearchPayload {
	return SearchPayload{
		KeywordQuery:      req.KeywordQuery,
		SemanticQuery:     req.SemanticQuery,
		StartDate:         req.StartDate.Format(models.DateLayout),
		EndDate:           req.EndDate.AddDate(0, 0, 1).Format(models.DateLayout),
		SearchSimilarity:  req.SearchSimilarity,
		ClusterMinSize:    req.ClusterMinSize,
		ClusterTopN:       req.ClusterTopN,
		ClusterSimilarity: req.ClusterSimilarity,
		UseBody:           req.IncludeDescription,
		UseMainArticles:   false,
		GiveGPTNSample:    req.SampleSize,
	}
}

type envelope struct {
	StatusCode *int            `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// Search invokes the search function and decodes its response body.
func (c *Client) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	payload := NewSearchPayload(req)
	raw, err := c.invoke(ctx, c.search, payload)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.search, err)
	}
	if env.StatusCode == nil || *env.StatusCode != http.StatusOK {
		status := 0
		if env.StatusCode != nil {
			status = *env.StatusCode
		}
		c.log.Warn("search returned unsuccessful status", slog.Int("status", status))
		return nil, fmt.Errorf("%s returned status %d: %w", c.search, status, ErrUnsuccessfulStatus)
	}

	if !env.hasBody() {
		return nil, fmt.Errorf("decode %s body: %w", c.search, errMissingBody)
	}

	var resp models.SearchResponse
	if err := decodeBody(env.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", c.search, err)
	}
	if resp.Filepath == "" {
		return nil, fmt.Errorf("%s body has no filepath", c.search)
	}
	resp.StatusCode = *env.StatusCode

	c.log.Info("search completed",
		slog.Int("clusters", len(resp.Summaries)),
		slog.String("filepath", resp.Filepath),
	)
	return &resp, nil
}

// Report invokes the report function and decodes the ordered narratives.
func (c *Client) Report(ctx context.Context, req models.ReportRequest) (*models.ReportResponse, error) {
	raw, err := c.invoke(ctx, c.report, req)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.report, err)
	}
	if env.StatusCode != nil && *env.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %w", c.report, *env.StatusCode, ErrUnsuccessfulStatus)
	}

	if !env.hasBody() {
		return nil, fmt.Errorf("decode %s body: %w", c.report, errMissingBody)
	}

	var reports []string
	if err := decodeBody(env.Body, &reports); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", c.report, err)
	}

	c.log.Info("report completed", slog.Int("reports", len(reports)))
	return &models.ReportResponse{Reports: reports}, nil
}

func (c *Client) invoke(ctx context.Context, function string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", function, err)
	}

	start := time.Now()
	c.log.Debug("invoking function", slog.String("function", function))
	out, err := c.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        data,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", function, err)
	}
	c.log.Debug("function returned",
		slog.String("function", function),
		slog.Duration("elapsed", time.Since(start)),
	)

	if out.FunctionError != nil {
		return nil, fmt.Errorf("invoke %s: function error %s: %s", function, aws.ToString(out.FunctionError), out.Payload)
	}
	return out.Payload, nil
}

// decodeEnvelope leaves the body unchecked: a failed invocation may carry a
// status and nothing else.
func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func (e envelope) hasBody() bool {
	return len(e.Body) > 0 && string(e.Body) != "null"
}

// decodeBody accepts the body either as a JSON-encoded string, which is what
// the functions return, or as an inline JSON value.
func decodeBody(body json.RawMessage, dst any) error {
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return err
		}
		return json.Unmarshal([]byte(inner), dst)
	}
	return json.Unmarshal(body, dst)
}
