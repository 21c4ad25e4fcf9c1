package platform

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/taspa/console/internal/errors"
)

//go:embed api.yaml
var apiDocument []byte

// Schema names in api.yaml that responses are checked against.
const (
	SchemaToken         = "TokenResponse"
	SchemaIdentity      = "Identity"
	SchemaAccount       = "Account"
	SchemaAccountList   = "AccountList"
	SchemaDirection     = "Direction"
	SchemaDirectionList = "DirectionList"
	SchemaSource        = "Source"
	SchemaSourceList    = "SourceList"
	SchemaJob           = "Job"
	SchemaJobList       = "JobList"
	SchemaScrapeConfig  = "ScrapeConfig"

	SchemaVKSummary         = "VKSummary"
	SchemaCountList         = "CountList"
	SchemaVKGroupPage       = "VKGroupPage"
	SchemaVKMemberPage      = "VKMemberPage"
	SchemaSocialAccountPage = "SocialAccountPage"
	SchemaExportResult      = "ExportResult"
)

var (
	docOnce sync.Once
	doc     *openapi3.T
	docErr  error
)

// Document returns the parsed and validated API description.
func Document() (*openapi3.T, error) {
	docOnce.Do(func() {
		loader := openapi3.NewLoader()
		d, err := loader.LoadFromData(apiDocument)
		if err != nil {
			docErr = fmt.Errorf("failed to load API description: %w", err)
			return
		}
		if err := d.Validate(context.Background()); err != nil {
			docErr = fmt.Errorf("invalid API description: %w", err)
			return
		}
		doc = d
	})
	return doc, docErr
}

// Decode checks raw against the named component schema and unmarshals it into
// out. Both a schema mismatch and a decode failure are reported as HTTP-003.
func Decode(raw json.RawMessage, schema string, out any) error {
	if len(raw) == 0 {
		return errors.NewSchemaError(schema, fmt.Errorf("empty body"))
	}

	d, err := Document()
	if err != nil {
		return errors.NewSchemaError(schema, err)
	}
	ref, ok := d.Components.Schemas[schema]
	if !ok || ref.Value == nil {
		return errors.NewSchemaError(schema, fmt.Errorf("unknown schema %q", schema))
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return errors.NewSchemaError(schema, err)
	}
	if err := ref.Value.VisitJSON(generic); err != nil {
		return errors.NewSchemaError(schema, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewSchemaError(schema, err)
	}
	return nil
}
