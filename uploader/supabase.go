// Package uploader upserts Profiles into a Supabase table through its
// PostgREST endpoint.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"celeb-dna-collector/dna"
)

// DefaultTable is the table Profiles are upserted into.
const DefaultTable = "celeb_makeup_dna"

// ConflictKey is the column the upsert resolves conflicts on.
const ConflictKey = "celeb_id"

// ErrUpsert reports a transport, auth or server failure while upserting.
var ErrUpsert = errors.New("supabase upsert failed")

// Uploader is an idempotent store for Profiles keyed by subject ID.
type Uploader interface {
	Upsert(ctx context.Context, p *dna.Profile) (json.RawMessage, error)
}

type supabaseUploader struct {
	baseURL string
	key     string
	table   string
	client  *http.Client
}

// NewSupabase creates an Uploader for the project at baseURL.
func NewSupabase(baseURL, key, table string, client *http.Client) Uploader {
	if table == "" {
		table = DefaultTable
	}
	return &supabaseUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		table:   table,
		client:  client,
	}
}

// Upsert inserts p or merges it into the existing row with the same
// celeb_id, returning the stored row.
func (u *supabaseUploader) Upsert(ctx context.Context, p *dna.Profile) (json.RawMessage, error) {
	if p == nil || p.SubjectID == "" {
		return nil, fmt.Errorf("%w: record has no %s", ErrUpsert, ConflictKey)
	}

	slog.Info("uploading profile", "subject_id", p.SubjectID, "table", u.table)

	body, err := json.Marshal([]*dna.Profile{p})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s: %w", ErrUpsert, p.SubjectID, err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", u.baseURL, url.PathEscape(u.table), ConflictKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrUpsert, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", u.key)
	req.Header.Set("Authorization", "Bearer "+u.key)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpsert, p.SubjectID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUpsert, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUpsert, p.SubjectID, resp.StatusCode, string(respBody))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(respBody, &rows); err != nil || len(rows) == 0 {
		// return=representation was ignored; the request still succeeded.
		slog.Info("uploaded profile", "subject_id", p.SubjectID)
		return body[1 : len(body)-1], nil
	}

	slog.Info("uploaded profile", "subject_id", p.SubjectID)
	return rows[0], nil
}
