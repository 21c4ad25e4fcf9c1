package platform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/taspa/console/internal/errors"
)

// Scraper services a job can run on.
var ScrapeServices = []string{"vk", "instagram", "tiktok"}

// Job is a scraping job.
type Job struct {
	ID          int    `json:"id"`
	ServiceName string `json:"service_name"`
	DirectionID *int   `json:"direction_id,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// JobStart is the body of POST /scrape/start.
type JobStart struct {
	ServiceName string `json:"service_name"`
	DirectionID int    `json:"direction_id"`
}

// ListJobs returns recent scraping jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	raw, err := c.Request(ctx, "/scrape/jobs", RequestOptions{})
	if err != nil {
		return nil, err
	}

	var jobs []Job
	if err := Decode(raw, SchemaJobList, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// StartJob queues a scraping job for a direction.
func (c *Client) StartJob(ctx context.Context, service string, directionID int) (*Job, error) {
	if err := checkService(service); err != nil {
		return nil, err
	}
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}

	raw, err := c.Request(ctx, "/scrape/start", RequestOptions{
		Method: http.MethodPost,
		Body:   JobStart{ServiceName: service, DirectionID: directionID},
	})
	if err != nil {
		return nil, err
	}

	var job Job
	if err := Decode(raw, SchemaJob, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// StopJob stops a running job.
func (c *Client) StopJob(ctx context.Context, id int) error {
	_, err := c.Request(ctx, fmt.Sprintf("/scrape/jobs/%d/stop", id), RequestOptions{Method: http.MethodPost})
	return err
}

// ScrapeConfig is the runtime configuration of one scraper service.
type ScrapeConfig struct {
	Proxies        []string `json:"proxies"`
	APIKey         *string  `json:"api_key"`
	RequestsPerMin *int     `json:"requests_per_min"`
	Concurrency    *int     `json:"concurrency"`
}

// ScrapeConfigUpdate is the body of PUT /scrape/config/{service}. Nil fields
// are left unchanged; a non-nil empty Proxies clears the list.
type ScrapeConfigUpdate struct {
	Proxies        *[]string `json:"proxies,omitempty"`
	APIKey         *string   `json:"api_key,omitempty"`
	RequestsPerMin *int      `json:"requests_per_min,omitempty"`
	Concurrency    *int      `json:"concurrency,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ScrapeConfigUpdate) Empty() bool {
	return u.Proxies == nil && u.APIKey == nil && u.RequestsPerMin == nil && u.Concurrency == nil
}

// ScrapeConfig returns the configuration of a scraper service.
func (c *Client) ScrapeConfig(ctx context.Context, service string) (*ScrapeConfig, error) {
	if err := checkService(service); err != nil {
		return nil, err
	}
	raw, err := c.Request(ctx, "/scrape/config/"+service, RequestOptions{})
	if err != nil {
		return nil, err
	}
	return decodeScrapeConfig(raw)
}

// UpdateScrapeConfig changes the fields set in update and returns the
// resulting configuration.
func (c *Client) UpdateScrapeConfig(ctx context.Context, service string, update ScrapeConfigUpdate) (*ScrapeConfig, error) {
	if err := checkService(service); err != nil {
		return nil, err
	}
	if update.Empty() {
		return nil, errors.New(errors.ErrCodeInputRequired, "nothing to update").
			WithSuggestion("Pass at least one of --proxy, --clear-proxies, --api-key, --rpm, --concurrency")
	}
	for name, v := range map[string]*int{"requests per minute": update.RequestsPerMin, "concurrency": update.Concurrency} {
		if v != nil && *v <= 0 {
			return nil, errors.New(errors.ErrCodeInputInvalid, name+" must be positive")
		}
	}

	raw, err := c.Request(ctx, "/scrape/config/"+service, RequestOptions{Method: http.MethodPut, Body: update})
	if err != nil {
		return nil, err
	}
	return decodeScrapeConfig(raw)
}

func decodeScrapeConfig(raw []byte) (*ScrapeConfig, error) {
	var cfg ScrapeConfig
	if err := Decode(raw, SchemaScrapeConfig, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkService(service string) error {
	if oneOf(service, ScrapeServices) {
		return nil
	}
	return errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown scraper service %q", service)).
		WithSuggestion("Use one of: vk, instagram, tiktok")
}
