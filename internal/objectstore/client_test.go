package objectstore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/require"

	"github.com/fairlabs/stms-dashboard/internal/objectstore"
)

const resultCSV = `,cluster,topic,title,summary,author,published_date,x,y,similarity,kmeans_cluster
0,0,Anodes,Silicon anodes,"Long text, with comma",Kim,2024-01-03,1.5,-2.25,0.91,3
1,1,Cathodes,Cobalt-free cathodes,Body,Lee,2024-01-04,0.1,0.2,0.77,1
`

type stubGetter struct {
	inputs []*s3.GetObjectInput
	body   string
	err    error
}

func (s *stubGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s.body))}, nil
}

func TestKeyFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "s3 uri", path: "s3://fairlabs-shared/results/abc.csv", want: "abc.csv"},
		{name: "relative", path: "results/abc.csv", want: "abc.csv"},
		{name: "bare", path: "abc.csv", want: "abc.csv"},
		{name: "trailing slash", path: "results/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, objectstore.KeyFromPath(tt.path))
		})
	}
}

func TestFetchTable(t *testing.T) {
	getter := &stubGetter{body: resultCSV}
	client := objectstore.New(getter, "fairlabs-shared", nil)

	table, err := client.FetchTable(context.Background(), "/tmp/results/abc.csv")
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	require.Len(t, getter.inputs, 1)
	require.Equal(t, "fairlabs-shared", aws.ToString(getter.inputs[0].Bucket))
	require.Equal(t, "abc.csv", aws.ToString(getter.inputs[0].Key))

	first := table.Articles[0]
	require.Equal(t, "0", first.Cluster)
	require.Equal(t, "Anodes", first.Topic)
	require.Equal(t, "Long text, with comma", first.Summary)
	require.Equal(t, "2024-01-03", first.PublishedDate)
	require.InDelta(t, 1.5, first.X, 1e-9)
	require.InDelta(t, -2.25, first.Y, 1e-9)
	require.InDelta(t, 0.91, first.Similarity, 1e-9)
	require.Equal(t, "3", first.KMeansCluster)
}

func TestFetchTableStatusFailure(t *testing.T) {
	getter := &stubGetter{err: &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
			Err:      errors.New("NoSuchKey"),
		},
	}}
	client := objectstore.New(getter, "fairlabs-shared", nil)

	table, err := client.FetchTable(context.Background(), "results/missing.csv")
	require.Error(t, err)
	require.Nil(t, table)
	require.Contains(t, err.Error(), "status 404")
}

func TestFetchTableEmptyKey(t *testing.T) {
	getter := &stubGetter{body: resultCSV}
	client := objectstore.New(getter, "fairlabs-shared", nil)

	_, err := client.FetchTable(context.Background(), "results/")
	require.True(t, errors.Is(err, objectstore.ErrEmptyKey))
	require.Empty(t, getter.inputs)
}

func TestDecodeTableErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		missing bool
	}{
		{name: "empty", body: "", missing: true},
		{name: "missing column", body: "cluster,topic,title\n0,a,b\n", missing: true},
		{name: "bad number", body: "cluster,topic,title,summary,author,published_date,x,y,similarity,kmeans_cluster\n0,a,b,c,d,e,NaNx,1,1,0\n"},
		{name: "nan", body: "cluster,topic,title,summary,author,published_date,x,y,similarity,kmeans_cluster\n0,a,b,c,d,e,NaN,1,1,0\n"},
		{name: "ragged row", body: "cluster,topic,title,summary,author,published_date,x,y,similarity,kmeans_cluster\n0,a,b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := objectstore.DecodeTable(strings.NewReader(tt.body))
			require.Error(t, err)
			require.Equal(t, tt.missing, errors.Is(err, objectstore.ErrMissingColumn))
		})
	}
}
