package vectorindex

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad point"), false},
		{"not found", status.Error(codes.NotFound, "no collection"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestClassifyPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid argument", status.Error(codes.InvalidArgument, "bad vector width"), apperr.ErrInvalidInput},
		{"failed precondition", status.Error(codes.FailedPrecondition, "collection locked"), apperr.ErrInvalidInput},
		{"out of range", status.Error(codes.OutOfRange, "offset"), apperr.ErrInvalidInput},
		{"internal", status.Error(codes.Internal, "server bug"), apperr.ErrUpstreamUnavailable},
		{"plain error", errors.New("boom"), apperr.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("upsert", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), "upsert")
		})
	}
}

func TestPayloadIndexRequestsCoverFilterFields(t *testing.T) {
	q := &QdrantIndex{cfg: config.QdrantConfig{Collection: "docs"}}

	reqs := q.payloadIndexRequests()
	require.Len(t, reqs, 4)

	byField := make(map[string]*qdrant.CreateFieldIndexCollection, len(reqs))
	for _, req := range reqs {
		assert.Equal(t, "docs", req.CollectionName)
		byField[req.FieldName] = req
	}

	for _, field := range []string{PayloadCollectionID, PayloadResourceID, PayloadChunkID} {
		req, ok := byField[field]
		require.True(t, ok, "missing keyword index for %s", field)
		assert.Equal(t, qdrant.FieldType_FieldTypeKeyword, req.GetFieldType())
	}

	text, ok := byField[PayloadText]
	require.True(t, ok, "missing text index")
	assert.Equal(t, qdrant.FieldType_FieldTypeText, text.GetFieldType())
	params := text.GetFieldIndexParams().GetTextIndexParams()
	require.NotNil(t, params)
	assert.Equal(t, qdrant.TokenizerType_Word, params.GetTokenizer())
	assert.True(t, params.GetLowercase())
}
