package restyutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Release", "476")
		w.Write([]byte("<h1>Release 476</h1>"))
	}))
	t.Cleanup(server.Close)

	dir := filepath.Join(t.TempDir(), "dump")
	dump, err := NewDump(dir)
	require.NoError(t, err)

	client := resty.New()
	dump.Instrument(client)

	_, err = client.R().SetHeader("User-Agent", "sidebyside-test").Get(server.URL + "/release/release-476.html")
	require.NoError(t, err)
	_, err = client.R().Get(server.URL)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"0001-release-476.html.txt", "0002-index.txt"}, names)

	contents, err := os.ReadFile(filepath.Join(dir, "0001-release-476.html.txt"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "---- REQUEST ----\n\nGET "+server.URL+"/release/release-476.html")
	require.Contains(t, string(contents), "User-Agent: sidebyside-test")
	require.Contains(t, string(contents), "---- RESPONSE ----\n\n200 ")
	require.Contains(t, string(contents), "X-Release: 476")
	require.Contains(t, string(contents), "<h1>Release 476</h1>")
}

func TestFormatRequestBody(t *testing.T) {
	withBody, err := http.NewRequest(http.MethodPost, "https://trino.io/search", strings.NewReader("q=hive"))
	require.NoError(t, err)

	nilReader, err := http.NewRequest(http.MethodGet, "https://trino.io/docs/current/release.html", nil)
	require.NoError(t, err)
	nilReader.Body = io.NopCloser(strings.NewReader(""))
	nilReader.GetBody = func() (io.ReadCloser, error) { return nil, nil }

	noBody, err := http.NewRequest(http.MethodGet, "https://trino.io/docs/current/release.html", http.NoBody)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		req      *http.Request
		expected string
	}{
		{name: "post body", req: withBody, expected: "q=hive"},
		{name: "get body returns nil", req: nilReader, expected: ""},
		{name: "no body", req: noBody, expected: ""},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, formatRequestBody(test.req))
		})
	}
}
