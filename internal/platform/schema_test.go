package platform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taspa/console/internal/errors"
)

func TestDocument(t *testing.T) {
	doc, err := Document()
	require.NoError(t, err)

	for _, name := range []string{
		SchemaToken, SchemaIdentity, SchemaAccount, SchemaAccountList,
		SchemaDirection, SchemaDirectionList, SchemaSource, SchemaSourceList,
		SchemaJob, SchemaJobList, SchemaScrapeConfig,
		SchemaVKSummary, SchemaCountList, SchemaVKGroupPage, SchemaVKMemberPage,
		SchemaSocialAccountPage, SchemaExportResult,
	} {
		assert.Contains(t, doc.Components.Schemas, name)
	}
	assert.NotNil(t, doc.Paths.Find("/auth/refresh"))
	assert.NotNil(t, doc.Paths.Find("/auth/me"))
	assert.NotNil(t, doc.Paths.Find("/analytics/vk/summary/{id}"))
	assert.NotNil(t, doc.Paths.Find("/scrape/config/{service}"))
}

func TestDecode_Identity(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "minimal", body: `{"email":"a@b.com","roles":["user"]}`},
		{name: "full", body: `{"id":3,"email":"a@b.com","roles":["admin","developer"],"first_name":"Ada","last_name":null,"is_active":true}`},
		{name: "empty roles", body: `{"email":"a@b.com","roles":[]}`},
		{name: "missing email", body: `{"roles":["user"]}`, wantErr: true},
		{name: "empty email", body: `{"email":"","roles":["user"]}`, wantErr: true},
		{name: "missing roles", body: `{"email":"a@b.com"}`, wantErr: true},
		{name: "roles not array", body: `{"email":"a@b.com","roles":"admin"}`, wantErr: true},
		{name: "unknown role", body: `{"email":"a@b.com","roles":["root"]}`, wantErr: true},
		{name: "numeric name", body: `{"email":"a@b.com","roles":["user"],"first_name":7}`, wantErr: true},
		{name: "not an object", body: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id Identity
			err := Decode(json.RawMessage(tt.body), SchemaIdentity, &id)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeHTTPSchema, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@b.com", id.Email)
		})
	}
}

func TestDecode_Token(t *testing.T) {
	var tr TokenResponse
	require.NoError(t, Decode(json.RawMessage(`{"access_token":"T1","token_type":"bearer","roles":["user"]}`), SchemaToken, &tr))
	assert.Equal(t, "T1", tr.AccessToken)

	err := Decode(json.RawMessage(`{"access_token":""}`), SchemaToken, &tr)
	assert.Equal(t, errors.ErrCodeHTTPSchema, errors.CodeOf(err))
}

func TestDecode_EmptyAndUnknown(t *testing.T) {
	err := Decode(nil, SchemaIdentity, nil)
	assert.Equal(t, errors.ErrCodeHTTPSchema, errors.CodeOf(err))

	err = Decode(json.RawMessage(`{}`), "Nope", nil)
	assert.Equal(t, errors.ErrCodeHTTPSchema, errors.CodeOf(err))
}
