package scorecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/valk-sh/go-scorecache/apierror"
)

// maxErrorBody limits how much of a non-200 response body is kept as the
// error message.
const maxErrorBody = 4096

// archiveRecord is one element of the JSON array served by a score archive.
// Fields other than id and xp are ignored. Both fields are required.
type archiveRecord struct {
	ID *uint64 `json:"id"`
	XP *uint64 `json:"xp"`
}

// HTTPSource fetches the complete score dataset from a URL that serves a JSON
// array of {"id": <u64>, "xp": <u64>} objects.
type HTTPSource struct {
	url    *url.URL
	client *http.Client
	header http.Header
}

// NewHTTPSource creates a Source that fetches scores from srcURL.
func NewHTTPSource(srcURL string, options ...HTTPOption) (*HTTPSource, error) {
	opts, err := getHTTPOpts(options)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(srcURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", srcURL)
	}

	client := opts.client
	if opts.retryMax != 0 {
		rclient := &retryablehttp.Client{
			HTTPClient:   client,
			Logger:       retryLogger{},
			RetryWaitMin: opts.retryWaitMin,
			RetryWaitMax: opts.retryWaitMax,
			RetryMax:     opts.retryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			// Hand the last response back once retries are exhausted so
			// its status is reported.
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		}
		client = rclient.StandardClient()
	}

	return &HTTPSource{
		url:    u,
		client: client,
		header: opts.header,
	}, nil
}

// AddHeader adds a header to every subsequent request. It must not be called
// concurrently with FetchAll.
func (s *HTTPSource) AddHeader(key, value string) {
	if s.header == nil {
		s.header = make(http.Header)
	}
	s.header.Add(key, value)
}

func (s *HTTPSource) FetchAll(ctx context.Context) ([]ScoreRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, vals := range s.header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}
	req.Header.Add("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apierror.FromResponse(resp.StatusCode, body)
	}

	return decodeRecords(resp.Body)
}

// decodeRecords decodes a complete archive payload. The payload must be a
// single JSON array whose elements all carry an id and an xp.
func decodeRecords(r io.Reader) ([]ScoreRecord, error) {
	dec := json.NewDecoder(r)
	var fetched []*archiveRecord
	if err := dec.Decode(&fetched); err != nil {
		return nil, fmt.Errorf("cannot decode scores: %w", err)
	}
	if fetched == nil {
		return nil, errors.New("cannot decode scores: payload is not an array")
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, errors.New("cannot decode scores: unexpected data after array")
	}

	records := make([]ScoreRecord, len(fetched))
	for i, rec := range fetched {
		switch {
		case rec == nil:
			return nil, fmt.Errorf("cannot decode scores: record %d is null", i)
		case rec.ID == nil:
			return nil, fmt.Errorf("cannot decode scores: record %d has no id", i)
		case rec.XP == nil:
			return nil, fmt.Errorf("cannot decode scores: record %d has no xp", i)
		}
		records[i] = ScoreRecord{
			ID:    *rec.ID,
			Value: *rec.XP,
		}
	}
	return records, nil
}

func (s *HTTPSource) String() string {
	return s.url.String()
}

// retryLogger sends retryablehttp log output to the package logger.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Errorw(msg, keysAndValues...)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warnw(msg, keysAndValues...)
}
