package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/taspa/console/internal/errors"
)

// Source types a direction can collect from.
var SourceTypes = []string{"vk_group", "instagram_account", "tiktok_account"}

// Direction is a named group of sources analysed together.
type Direction struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Source is one social account or group attached to a direction.
type Source struct {
	ID               int    `json:"id"`
	DirectionID      int    `json:"direction_id"`
	SourceType       string `json:"source_type"`
	SourceIdentifier string `json:"source_identifier"`
}

// ListDirections returns all directions.
func (c *Client) ListDirections(ctx context.Context) ([]Direction, error) {
	raw, err := c.Request(ctx, "/directions", RequestOptions{})
	if err != nil {
		return nil, err
	}

	var directions []Direction
	if err := Decode(raw, SchemaDirectionList, &directions); err != nil {
		return nil, err
	}
	return directions, nil
}

// CreateDirection creates a direction named name.
func (c *Client) CreateDirection(ctx context.Context, name string) (*Direction, error) {
	return c.directionCall(ctx, http.MethodPost, "/directions", name)
}

// RenameDirection renames a direction.
func (c *Client) RenameDirection(ctx context.Context, id int, name string) (*Direction, error) {
	return c.directionCall(ctx, http.MethodPut, fmt.Sprintf("/directions/%d", id), name)
}

func (c *Client) directionCall(ctx context.Context, method, path, name string) (*Direction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewRequiredError("direction name")
	}

	raw, err := c.Request(ctx, path, RequestOptions{
		Method: method,
		Body:   map[string]string{"name": name},
	})
	if err != nil {
		return nil, err
	}

	var d Direction
	if err := Decode(raw, SchemaDirection, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDirection deletes a direction and its sources.
func (c *Client) DeleteDirection(ctx context.Context, id int) error {
	_, err := c.Request(ctx, fmt.Sprintf("/directions/%d", id), RequestOptions{Method: http.MethodDelete})
	return err
}

// ListSources returns the sources of a direction.
func (c *Client) ListSources(ctx context.Context, directionID int) ([]Source, error) {
	raw, err := c.Request(ctx, fmt.Sprintf("/directions/%d/sources", directionID), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var sources []Source
	if err := Decode(raw, SchemaSourceList, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// CreateSource attaches a source to a direction.
func (c *Client) CreateSource(ctx context.Context, directionID int, sourceType, identifier string) (*Source, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.NewRequiredError("source identifier")
	}
	if !validSourceType(sourceType) {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown source type %q", sourceType)).
			WithSuggestion("Use one of: " + strings.Join(SourceTypes, ", "))
	}

	raw, err := c.Request(ctx, fmt.Sprintf("/directions/%d/sources", directionID), RequestOptions{
		Method: http.MethodPost,
		Body: map[string]string{
			"source_type":       sourceType,
			"source_identifier": identifier,
		},
	})
	if err != nil {
		return nil, err
	}

	var s Source
	if err := Decode(raw, SchemaSource, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSource detaches a source from a direction.
func (c *Client) DeleteSource(ctx context.Context, directionID, sourceID int) error {
	_, err := c.Request(ctx, fmt.Sprintf("/directions/%d/sources/%d", directionID, sourceID),
		RequestOptions{Method: http.MethodDelete})
	return err
}

func validSourceType(t string) bool {
	for _, s := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}
