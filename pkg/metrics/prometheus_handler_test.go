package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusHTTPHandler(t *testing.T) {
	FetchOperationsTotal.Reset()
	TokenRefreshesTotal.Reset()

	FetchOperationsTotal.WithLabelValues("list", "success").Add(7)
	TokenRefreshesTotal.WithLabelValues("failure").Add(2)

	handler := promhttp.Handler()
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	bodyStr := string(body)

	if !strings.Contains(bodyStr, `hato_fetch_operations_total{operation="list",result="success"} 7`) {
		t.Error("Expected hato_fetch_operations_total with value 7 in response")
	}
	if !strings.Contains(bodyStr, `hato_token_refreshes_total{result="failure"} 2`) {
		t.Error("Expected hato_token_refreshes_total with value 2 in response")
	}
}

func TestGatheredMetricLabels(t *testing.T) {
	ConnectAttemptsTotal.Reset()
	ConnectAttemptsTotal.WithLabelValues("success").Inc()
	ConnectAttemptsTotal.WithLabelValues("failure").Add(3)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "hato_imap_connect_attempts_total" {
			family = f
			break
		}
	}
	if family == nil {
		t.Fatal("hato_imap_connect_attempts_total not found in gathered families")
	}

	values := map[string]float64{}
	for _, m := range family.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "result" {
				values[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}

	if values["success"] != 1 {
		t.Errorf("Expected success counter 1, got %v", values["success"])
	}
	if values["failure"] != 3 {
		t.Errorf("Expected failure counter 3, got %v", values["failure"])
	}
}
