package restyutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Dump writes every exchange of a resty client to its own file in a
// directory, for inspecting what a scrape actually received.
type Dump struct {
	directory string
	idcounter *uint64
}

func NewDump(dir string) (Dump, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return Dump{}, err
	}
	var idcounter uint64
	return Dump{directory: dir, idcounter: &idcounter}, nil
}

func (d Dump) Write(name string, contents string) {
	err := os.WriteFile(filepath.Join(d.directory, name), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http dump file", "name", name, "err", err)
	}
}

// Instrument makes client dump every response it receives. Files are named
// after a sequence number and the last segment of the request path.
func (d Dump) Instrument(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(d.idcounter, 1)
		name := "index"
		if res.Request.RawRequest != nil {
			if base := path.Base(res.Request.RawRequest.URL.Path); base != "/" && base != "." {
				name = base
			}
		}
		d.Write(fmt.Sprintf("%04d-%s.txt", id, name), FormatMessage(res))
		return nil
	})
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var lines []string
	for _, k := range keys {
		for _, v := range headers[k] {
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

// formatRequestBody renders the body of a request that has one. GET
// requests from resty carry a GetBody that yields a nil reader.
func formatRequestBody(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	if body == nil {
		return ""
	}
	defer body.Close()
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

// FormatMessage renders a request and its response as plain text.
func FormatMessage(res *resty.Response) string {
	var requestHeaders, requestBody string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
		requestBody = formatRequestBody(res.Request.RawRequest)
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		redirected, err := res.RawResponse.Location()
		if err == nil {
			responseUrl = redirected.String()
		}
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		requestBody,

		strconv.Itoa(res.StatusCode()), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
