package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/pkg/schema"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultMaxHTTPBody   = 10 << 20
	httpRequestType      = "httpRequest"
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypePlainText = "text/plain; charset=utf-8"
)

// HTTPRequest calls an external HTTP API. Data:
//
//	method        GET by default
//	url           absolute http(s) URL, required
//	query         map merged into the URL query
//	headers       map of header values
//	body          any; encoded per bodyEncoding (json, form or text)
//	auth          {"type": "bearer", "token"} | {"type": "basic", "username", "password"}
//	              | {"type": "apiKey", "header", "value"}
//	timeout       Go duration string
//
// Statuses below 400 take "success"; transport failures and 4xx/5xx take
// "error". Both carry statusCode, headers and body; JSON bodies are decoded.
type HTTPRequest struct {
	Client  *http.Client
	MaxBody int64
}

func (HTTPRequest) Type() string { return httpRequestType }

func (h HTTPRequest) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	data := in.Data()
	req, timeout, err := buildHTTPRequest(data)
	if err != nil {
		return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, err.Error()).WithNode(in.Node.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(ctx)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		in.logger().WarnContext(ctx, "http request failed", "node_id", in.Node.ID, "url", req.URL.Redacted(), "error", err)
		return schema.Outcome{
			Output: schema.OutputError,
			Data:   map[string]any{"message": err.Error(), "durationMs": time.Since(start).Milliseconds()},
		}, nil
	}
	defer resp.Body.Close()

	maxBody := h.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxHTTPBody
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return schema.Outcome{
			Output: schema.OutputError,
			Data:   map[string]any{"statusCode": resp.StatusCode, "message": err.Error()},
		}, nil
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	result := map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       decodeHTTPBody(resp.Header.Get("Content-Type"), raw),
		"durationMs": time.Since(start).Milliseconds(),
	}

	if resp.StatusCode >= 400 {
		result["message"] = resp.Status
		return schema.Outcome{Output: schema.OutputError, Data: result}, nil
	}
	return schema.Outcome{Output: schema.OutputSuccess, Data: result}, nil
}

func buildHTTPRequest(data map[string]any) (*http.Request, time.Duration, error) {
	rawURL := stringOr(data, "url", "")
	if rawURL == "" {
		return nil, 0, fmt.Errorf("httpRequest requires url")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, 0, fmt.Errorf("httpRequest: invalid url %q", rawURL)
	}
	if q := asMap(data["query"]); len(q) > 0 {
		values := u.Query()
		for k, v := range q {
			values.Set(k, expressions.Stringify(v))
		}
		u.RawQuery = values.Encode()
	}

	timeout := defaultHTTPTimeout
	if s := stringOr(data, "timeout", ""); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, 0, fmt.Errorf("httpRequest: invalid timeout %q", s)
		}
		timeout = d
	}

	body, contentType, err := encodeHTTPBody(data["body"], stringOr(data, "bodyEncoding", "json"))
	if err != nil {
		return nil, 0, err
	}

	method := strings.ToUpper(stringOr(data, "method", http.MethodGet))
	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, 0, fmt.Errorf("httpRequest: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range asMap(data["headers"]) {
		req.Header.Set(k, expressions.Stringify(v))
	}
	if err := applyHTTPAuth(req, asMap(data["auth"])); err != nil {
		return nil, 0, err
	}
	return req, timeout, nil
}

func encodeHTTPBody(body any, encoding string) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch encoding {
	case "json":
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("httpRequest: encode body: %w", err)
		}
		return bytes.NewReader(b), contentTypeJSON, nil
	case "form":
		m := asMap(body)
		if m == nil {
			return nil, "", fmt.Errorf("httpRequest: form body must be an object")
		}
		values := url.Values{}
		for k, v := range m {
			values.Set(k, expressions.Stringify(v))
		}
		return strings.NewReader(values.Encode()), contentTypeForm, nil
	case "text":
		return strings.NewReader(expressions.Stringify(body)), contentTypePlainText, nil
	}
	return nil, "", fmt.Errorf("httpRequest: unknown bodyEncoding %q", encoding)
}

func applyHTTPAuth(req *http.Request, auth map[string]any) error {
	if auth == nil {
		return nil
	}
	switch t := stringOr(auth, "type", ""); t {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+stringOr(auth, "token", ""))
	case "basic":
		req.SetBasicAuth(stringOr(auth, "username", ""), stringOr(auth, "password", ""))
	case "apiKey":
		header := stringOr(auth, "header", "")
		if header == "" {
			return fmt.Errorf("httpRequest: apiKey auth requires header")
		}
		req.Header.Set(header, stringOr(auth, "value", ""))
	default:
		return fmt.Errorf("httpRequest: unknown auth type %q", t)
	}
	return nil
}

func decodeHTTPBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
