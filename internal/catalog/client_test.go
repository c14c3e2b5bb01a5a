package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vac-tools/vacsync/internal/config"
	"github.com/vac-tools/vacsync/pkg/models"
)

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"oaci":"LFPG","city":"Paris","version":"2025-07-10","url":"/charts/LFPG.pdf"},
			{"oaci":"LFBD","city":"Bordeaux","version":"2025-06-12","url":"/charts/LFBD.pdf"}
		]`))
	}))
	defer server.Close()

	client := New(server.URL, config.FormatJSON, 5*time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Fetch() returned %d records; want 2", len(records))
	}
	if records[0].OACI != "LFPG" || records[0].RemoteVersion != "2025-07-10" {
		t.Errorf("records[0] = %#v; want LFPG at 2025-07-10", records[0])
	}
	if records[0].PDFURL != server.URL+"/charts/LFPG.pdf" {
		t.Errorf("PDFURL = %s; want relative link resolved against the catalog URL", records[0].PDFURL)
	}
}

func TestFetchJSONDuplicatesKeepFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"oaci":"LFPG","city":"Paris","version":"v1","url":"/a.pdf"},
			{"oaci":"LFPG","city":"Paris","version":"v2","url":"/b.pdf"}
		]`))
	}))
	defer server.Close()

	client := New(server.URL, config.FormatJSON, 5*time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if len(records) != 1 || records[0].RemoteVersion != "v1" {
		t.Errorf("Fetch() = %#v; want single LFPG at v1", records)
	}
}

func TestFetchHTML(t *testing.T) {
	page := `<html><body><table>
		<tr><th>OACI</th><th>City</th><th>Date</th></tr>
		<tr><td>LFPG</td><td>Paris Charles de Gaulle</td><td>10 JUL 2025</td><td><a href="/vac/LFPG.pdf">PDF</a></td></tr>
		<tr><td>LFMN</td><td>Nice</td><td>12 JUN 2025</td><td><a href="/vac/LFMN.pdf">PDF</a></td></tr>
	</table></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	client := New(server.URL, config.FormatHTML, 5*time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Fetch() returned %d records; want 2", len(records))
	}
	want := models.ChartRecord{
		OACI:          "LFPG",
		City:          "Paris Charles de Gaulle",
		RemoteVersion: "10 JUL 2025",
		PDFURL:        server.URL + "/vac/LFPG.pdf",
	}
	if records[0] != want {
		t.Errorf("records[0] = %#v; want %#v", records[0], want)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:   "malformed JSON",
			format: config.FormatJSON,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{not json`))
			},
			wantErr: models.ErrParse,
		},
		{
			name:   "JSON entry missing url",
			format: config.FormatJSON,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"oaci":"LFPG","city":"Paris","version":"v1"}]`))
			},
			wantErr: models.ErrParse,
		},
		{
			name:   "HTML page without chart rows",
			format: config.FormatHTML,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html><body><p>maintenance</p></body></html>`))
			},
			wantErr: models.ErrParse,
		},
		{
			name:   "server error",
			format: config.FormatJSON,
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: models.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := New(server.URL, tt.format, 5*time.Second)
			_, err := client.Fetch(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := New(server.URL, config.FormatJSON, 2*time.Second)
	_, err := client.Fetch(context.Background())
	if !errors.Is(err, models.ErrNetwork) {
		t.Errorf("Fetch() against closed server = %v; want ErrNetwork", err)
	}
}
