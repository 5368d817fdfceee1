package ga4

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bizpulse/internal/models"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

const (
	metricSessions  = "sessions"
	metricUsers     = "totalUsers"
	metricPageviews = "screenPageViews"

	dateLayout = "2006-01-02"
)

// Client pulls daily traffic metrics from the GA4 Data API.
type Client struct {
	service *analyticsdata.Service
	limiter *rate.Limiter
}

// NewClient builds a client authenticated with a service account key file.
func NewClient(ctx context.Context, credentialsFile string, rps float64, burst int) (*Client, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, analyticsdata.AnalyticsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewClientWithOptions(ctx, rps, burst, option.WithHTTPClient(config.Client(ctx)))
}

// NewClientWithOptions builds a client with explicit transport options.
func NewClientWithOptions(ctx context.Context, rps float64, burst int, opts ...option.ClientOption) (*Client, error) {
	srv, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Analytics Data service: %w", err)
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{service: srv, limiter: rate.NewLimiter(limit, burst)}, nil
}

// GetBasicMetrics returns sessions, users and pageviews per day for the window.
// Dates are YYYY-MM-DD and inclusive.
func (c *Client) GetBasicMetrics(ctx context.Context, propertyID, startDate, endDate string) ([]models.GA4DailyMetrics, error) {
	propertyID = strings.TrimPrefix(strings.TrimSpace(propertyID), "properties/")
	if propertyID == "" {
		return nil, errors.New("ga4 property id is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ga4 rate limiter: %w", err)
	}

	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: startDate, EndDate: endDate}},
		Dimensions: []*analyticsdata.Dimension{{Name: "date"}},
		Metrics: []*analyticsdata.Metric{
			{Name: metricSessions},
			{Name: metricUsers},
			{Name: metricPageviews},
		},
		KeepEmptyRows: true,
	}

	resp, err := c.service.Properties.RunReport("properties/"+propertyID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("ga4 run report for property %s: %w", propertyID, err)
	}
	return parseReport(resp)
}

func parseReport(resp *analyticsdata.RunReportResponse) ([]models.GA4DailyMetrics, error) {
	index := make(map[string]int, len(resp.MetricHeaders))
	for i, h := range resp.MetricHeaders {
		index[h.Name] = i
	}

	out := make([]models.GA4DailyMetrics, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.DimensionValues) == 0 {
			continue
		}
		date, err := normalizeDate(row.DimensionValues[0].Value)
		if err != nil {
			return nil, err
		}
		day := models.GA4DailyMetrics{Date: date}
		if day.Sessions, err = metricValue(row, index, metricSessions); err != nil {
			return nil, err
		}
		if day.Users, err = metricValue(row, index, metricUsers); err != nil {
			return nil, err
		}
		if day.Pageviews, err = metricValue(row, index, metricPageviews); err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

func metricValue(row *analyticsdata.Row, index map[string]int, name string) (*float64, error) {
	i, ok := index[name]
	if !ok || i >= len(row.MetricValues) || row.MetricValues[i] == nil || row.MetricValues[i].Value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(row.MetricValues[i].Value, 64)
	if err != nil {
		return nil, fmt.Errorf("ga4 metric %s: %w", name, err)
	}
	return &v, nil
}

// GA4 отдает дату в формате YYYYMMDD
func normalizeDate(raw string) (string, error) {
	for _, layout := range []string{"20060102", dateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("ga4 date %q is not YYYYMMDD", raw)
}

// Yesterday returns the previous UTC calendar day as YYYY-MM-DD.
func Yesterday(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}
